package uart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
)

// mockPort is a thread-safe in-memory Port.
// Reads are fed through the rx channel and time out like a real port.
type mockPort struct {
	rx          chan []byte
	readTimeout time.Duration

	mu         sync.Mutex
	written    []byte
	writeErr   error
	maxWrite   int // 0 means unlimited
	readErr    error
	readErrors int
	closed     bool
}

func newMockPort() *mockPort {
	return &mockPort{rx: make(chan []byte, 16), readTimeout: 5 * time.Millisecond}
}

func (p *mockPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if p.readErr != nil && p.readErrors > 0 {
		p.readErrors--
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	timeout := p.readTimeout
	p.mu.Unlock()

	select {
	case data := <-p.rx:
		return copy(buf, data), nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (p *mockPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	n := len(data)
	if p.maxWrite > 0 && n > p.maxWrite {
		n = p.maxWrite
	}
	p.written = append(p.written, data[:n]...)
	return n, nil
}

func (p *mockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *mockPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

func (p *mockPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

// mockForwarder records forwarded messages.
type mockForwarder struct {
	mu   sync.Mutex
	sent []string
	ch   chan string
}

func newMockForwarder() *mockForwarder {
	return &mockForwarder{ch: make(chan string, 16)}
}

func (f *mockForwarder) Send(message string) {
	f.mu.Lock()
	f.sent = append(f.sent, message)
	f.mu.Unlock()
	f.ch <- message
}

func (f *mockForwarder) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestBridge(t *testing.T, port *mockPort, cfg Config) *Bridge {
	t.Helper()
	cfg.PollInterval = time.Millisecond
	b, err := NewBridge(Options{Port: port, Config: cfg})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// ===== Construction =====

func TestNewBridge_RequiresPort(t *testing.T) {
	if _, err := NewBridge(Options{}); !errors.Is(err, ErrNoPort) {
		t.Errorf("NewBridge() error = %v, want ErrNoPort", err)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.BaudRate != DefaultBaudRate || cfg.DataBits != DefaultDataBits {
		t.Errorf("defaults = %d/%d, want %d/%d", cfg.BaudRate, cfg.DataBits, DefaultBaudRate, DefaultDataBits)
	}
	if cfg.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want %v", cfg.ReadTimeout, DefaultReadTimeout)
	}
	if cfg.ReadBufferSize != DefaultReadBufferSize {
		t.Errorf("ReadBufferSize = %d, want %d", cfg.ReadBufferSize, DefaultReadBufferSize)
	}
}

// ===== Writes =====

func TestBridge_WriteStatus(t *testing.T) {
	port := newMockPort()
	b := newTestBridge(t, port, Config{})

	if err := b.WriteStatus(1, "A12"); err != nil {
		t.Fatalf("WriteStatus() error = %v", err)
	}

	if got := port.Written(); got != "op:1,lc:A12\r\n" {
		t.Errorf("written = %q, want %q", got, "op:1,lc:A12\r\n")
	}
	if s := b.Stats(); s.StatusLinesTx != 1 || s.BytesTx != uint64(len("op:1,lc:A12\r\n")) {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBridge_WriteCommand_NoTerminator(t *testing.T) {
	port := newMockPort()
	b := newTestBridge(t, port, Config{})

	if err := b.WriteCommand("turn around"); err != nil {
		t.Fatalf("WriteCommand() error = %v", err)
	}
	if got := port.Written(); got != "turn around" {
		t.Errorf("written = %q, want %q", got, "turn around")
	}
}

func TestBridge_WriteLoopsOverShortWrites(t *testing.T) {
	port := newMockPort()
	port.maxWrite = 3
	b := newTestBridge(t, port, Config{})

	if err := b.WriteStatus(2, "B7"); err != nil {
		t.Fatalf("WriteStatus() error = %v", err)
	}
	if got := port.Written(); got != "op:2,lc:B7\r\n" {
		t.Errorf("written = %q, want full line", got)
	}
}

func TestBridge_WriteFailureNotRetried(t *testing.T) {
	port := newMockPort()
	port.writeErr = errors.New("device unplugged")
	b := newTestBridge(t, port, Config{})

	if err := b.WriteStatus(1, "A12"); err == nil {
		t.Fatal("WriteStatus() expected error, got nil")
	}
	if s := b.Stats(); s.WriteErrors != 1 || s.StatusLinesTx != 0 {
		t.Errorf("Stats() = %+v, want one write error and no lines", s)
	}
}

func TestBridge_WriteAfterClose(t *testing.T) {
	port := newMockPort()
	b := newTestBridge(t, port, Config{})
	b.Close()

	if err := b.WriteCommand("stop"); !errors.Is(err, ErrPortClosed) {
		t.Errorf("WriteCommand() after Close error = %v, want ErrPortClosed", err)
	}
}

func TestBridge_ConcurrentWritesDoNotInterleave(t *testing.T) {
	port := newMockPort()
	port.maxWrite = 2
	b := newTestBridge(t, port, Config{})

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.WriteStatus(i, "LC")
		}()
	}
	wg.Wait()

	lines := strings.SplitAfter(port.Written(), "\r\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "op:") || !strings.HasSuffix(line, ",lc:LC\r\n") {
			t.Errorf("interleaved line %q", line)
		}
	}
}

// ===== Start / poll loop =====

func TestBridge_StartWritesGreeting(t *testing.T) {
	port := newMockPort()
	b := newTestBridge(t, port, Config{Greeting: "AppCar Init OK\n"})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := port.Written(); got != "AppCar Init OK\n" {
		t.Errorf("written = %q, want greeting", got)
	}
	if err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestBridge_PollForwardsReceivedData(t *testing.T) {
	port := newMockPort()
	fwd := newMockForwarder()
	b := newTestBridge(t, port, Config{})
	b.SetForwarder(fwd)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	port.rx <- []byte("arrived\x00\x00")

	select {
	case got := <-fwd.ch:
		if got != "arrived" {
			t.Errorf("forwarded %q, want %q", got, "arrived")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for forwarded data")
	}

	if s := b.Stats(); s.ChunksRx != 1 || s.BytesRx != 9 || s.Forwarded != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBridge_PollSurvivesReadErrors(t *testing.T) {
	port := newMockPort()
	port.readErr = errors.New("framing error")
	port.readErrors = 3
	fwd := newMockForwarder()
	b := newTestBridge(t, port, Config{})
	b.SetForwarder(fwd)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	port.rx <- []byte("after errors")

	select {
	case got := <-fwd.ch:
		if got != "after errors" {
			t.Errorf("forwarded %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop stopped after read errors")
	}

	if got := b.Stats().ReadErrors; got != 3 {
		t.Errorf("ReadErrors = %d, want 3", got)
	}
}

func TestBridge_StopsOnContextCancel(t *testing.T) {
	port := newMockPort()
	b := newTestBridge(t, port, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop after cancel")
	}
}

func TestBridge_OnLineReceived(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []string
	}{
		{"plain text", []byte("hello"), []string{"hello"}},
		{"cut at NUL", []byte("ab\x00cd"), []string{"ab"}},
		{"leading NUL dropped", []byte("\x00abc"), nil},
		{"empty", nil, nil},
		{"binary kept", []byte{0x01, 0xFF, 0x7F}, []string{"\x01\xff\x7f"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd := newMockForwarder()
			b := newTestBridge(t, newMockPort(), Config{})
			b.SetForwarder(fwd)

			b.OnLineReceived(tt.data)

			got := fwd.Sent()
			if len(got) != len(tt.want) {
				t.Fatalf("forwarded %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("forwarded[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBridge_OnLineReceived_NoForwarder(t *testing.T) {
	b := newTestBridge(t, newMockPort(), Config{})
	b.OnLineReceived([]byte("dropped"))

	if got := b.Stats().Forwarded; got != 0 {
		t.Errorf("Forwarded = %d, want 0", got)
	}
}

func TestBridge_CloseTwice(t *testing.T) {
	b := newTestBridge(t, newMockPort(), Config{})
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// ===== Open =====

func TestBuildMode(t *testing.T) {
	tests := []struct {
		parity   string
		stopBits string
		wantPar  serial.Parity
		wantStop serial.StopBits
	}{
		{"N", "1", serial.NoParity, serial.OneStopBit},
		{"o", "2", serial.OddParity, serial.TwoStopBits},
		{"E", "1.5", serial.EvenParity, serial.OnePointFiveStopBits},
		{"M", "", serial.MarkParity, serial.OneStopBit},
		{"S", "1", serial.SpaceParity, serial.OneStopBit},
		{"", "", serial.NoParity, serial.OneStopBit},
	}

	for _, tt := range tests {
		mode := buildMode(Config{BaudRate: 115200, DataBits: 8, Parity: tt.parity, StopBits: tt.stopBits})
		if mode.BaudRate != 115200 || mode.DataBits != 8 {
			t.Errorf("mode = %+v, want 115200/8", mode)
		}
		if mode.Parity != tt.wantPar {
			t.Errorf("parity %q: got %v, want %v", tt.parity, mode.Parity, tt.wantPar)
		}
		if mode.StopBits != tt.wantStop {
			t.Errorf("stop bits %q: got %v, want %v", tt.stopBits, mode.StopBits, tt.wantStop)
		}
	}
}

func TestOpen(t *testing.T) {
	port := newMockPort()
	var gotName string
	var gotMode *serial.Mode

	origOpen := openSerial
	openSerial = func(name string, mode *serial.Mode) (Port, error) {
		gotName, gotMode = name, mode
		return port, nil
	}
	t.Cleanup(func() { openSerial = origOpen })

	p, err := Open(Config{Name: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if p != port {
		t.Error("Open() returned a different port")
	}
	if gotName != "/dev/ttyUSB0" || gotMode.BaudRate != DefaultBaudRate {
		t.Errorf("opened %q with %+v", gotName, gotMode)
	}
	if port.readTimeout != DefaultReadTimeout {
		t.Errorf("read timeout = %v, want %v", port.readTimeout, DefaultReadTimeout)
	}
}

func TestOpen_Failure(t *testing.T) {
	origOpen, origList := openSerial, listPorts
	openSerial = func(string, *serial.Mode) (Port, error) {
		return nil, errors.New("no such file")
	}
	listPorts = func() ([]string, error) { return []string{"/dev/ttyS0", "/dev/ttyACM0"}, nil }
	t.Cleanup(func() { openSerial, listPorts = origOpen, origList })

	_, err := Open(Config{Name: "/dev/missing"})
	if !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("Open() error = %v, want ErrOpenFailed", err)
	}
	if !strings.Contains(err.Error(), "/dev/ttyACM0") {
		t.Errorf("Open() error = %v, want available ports listed", err)
	}
}
