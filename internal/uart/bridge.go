package uart

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/parcel-bridge/internal/codec"
)

// Forwarder receives text read from the serial link.
// The TCP relay server implements it.
type Forwarder interface {
	Send(message string)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats holds serial bridge counters.
type Stats struct {
	BytesRx       uint64    `json:"bytes_rx"`
	BytesTx       uint64    `json:"bytes_tx"`
	ChunksRx      uint64    `json:"chunks_rx"`
	StatusLinesTx uint64    `json:"status_lines_tx"`
	CommandsTx    uint64    `json:"commands_tx"`
	Forwarded     uint64    `json:"forwarded"`
	ReadErrors    uint64    `json:"read_errors"`
	WriteErrors   uint64    `json:"write_errors"`
	LastActivity  time.Time `json:"last_activity"`
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Options configures a Bridge.
type Options struct {
	// Port is required.
	Port   Port
	Config Config

	// Forwarder may also be set later with SetForwarder.
	Forwarder Forwarder
	Logger    Logger
}

// Bridge polls the serial port and writes status lines and commands to it.
//
// Thread Safety:
//   - Writes are serialised by writeMu; WriteStatus and WriteCommand may be
//     called from any goroutine.
//   - The poll loop runs in a single background goroutine.
type Bridge struct {
	port Port
	cfg  Config

	writeMu sync.Mutex

	forwarder Forwarder
	fwdMu     sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	started   atomic.Bool
	done      *closeOnce
	wg        sync.WaitGroup
	closePort sync.Once
	closeErr  error

	bytesRx       atomic.Uint64
	bytesTx       atomic.Uint64
	chunksRx      atomic.Uint64
	statusLinesTx atomic.Uint64
	commandsTx    atomic.Uint64
	forwarded     atomic.Uint64
	readErrors    atomic.Uint64
	writeErrors   atomic.Uint64
	lastActivity  atomic.Int64
}

// NewBridge creates a serial bridge. It does not start polling.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Port == nil {
		return nil, ErrNoPort
	}

	return &Bridge{
		port:      opts.Port,
		cfg:       opts.Config.withDefaults(),
		forwarder: opts.Forwarder,
		logger:    opts.Logger,
		done:      newCloseOnce(),
	}, nil
}

// SetForwarder installs the destination for received serial data.
func (b *Bridge) SetForwarder(f Forwarder) {
	b.fwdMu.Lock()
	b.forwarder = f
	b.fwdMu.Unlock()
}

// SetLogger sets the logger for serial events.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// Start writes the greeting (if configured) and starts the poll loop.
// The loop stops when ctx is cancelled or Close is called.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if b.cfg.Greeting != "" {
		if err := b.write([]byte(b.cfg.Greeting)); err != nil {
			b.logWarn("serial greeting failed", "error", err)
		}
	}

	b.wg.Add(1)
	go b.pollLoop(ctx)

	b.logInfo("serial bridge started",
		"port", b.cfg.Name,
		"baud_rate", b.cfg.BaudRate,
		"read_timeout", b.cfg.ReadTimeout.String(),
	)
	return nil
}

// pollLoop performs a bounded-wait read followed by a short yield, forever.
func (b *Bridge) pollLoop(ctx context.Context) {
	defer b.wg.Done()

	buf := make([]byte, b.cfg.ReadBufferSize)

	for {
		if b.stopped(ctx) {
			return
		}

		n, err := b.port.Read(buf)
		if err != nil {
			if b.stopped(ctx) {
				return
			}
			b.readErrors.Add(1)
			b.logWarn("serial read failed", "error", err)
		} else if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			b.bytesRx.Add(uint64(n))
			b.chunksRx.Add(1)
			b.lastActivity.Store(time.Now().Unix())
			b.OnLineReceived(chunk)
		}

		if !b.yield(ctx) {
			return
		}
	}
}

// yield pauses for the poll interval. It returns false on shutdown.
func (b *Bridge) yield(ctx context.Context) bool {
	if b.cfg.PollInterval <= 0 {
		return !b.stopped(ctx)
	}
	t := time.NewTimer(b.cfg.PollInterval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-b.done.Done():
		return false
	case <-t.C:
		return true
	}
}

func (b *Bridge) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-b.done.Done():
		return true
	default:
		return false
	}
}

// OnLineReceived forwards a chunk read from the serial link. The chunk is
// treated as text ending at the first NUL byte and is forwarded verbatim,
// without framing or validation.
func (b *Bridge) OnLineReceived(data []byte) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if len(data) == 0 {
		return
	}

	b.fwdMu.RLock()
	fwd := b.forwarder
	b.fwdMu.RUnlock()

	if fwd == nil {
		b.logDebug("serial data received with no forwarder", "bytes", len(data))
		return
	}

	b.forwarded.Add(1)
	fwd.Send(string(data))
}

// WriteStatus writes a status line such as "op:1,lc:A12\r\n".
// Failures are logged and returned; they are not retried.
func (b *Bridge) WriteStatus(operation int, locationCode string) error {
	line := codec.EncodeStatusLine(operation, locationCode)
	if err := b.write([]byte(line)); err != nil {
		b.logWarn("serial status write failed", "operation", operation, "error", err)
		return err
	}
	b.statusLinesTx.Add(1)
	b.logDebug("serial status written", "operation", operation, "location_code", locationCode)
	return nil
}

// WriteCommand writes a literal command (no line terminator).
// Failures are logged and returned; they are not retried.
func (b *Bridge) WriteCommand(cmd string) error {
	if err := b.write([]byte(cmd)); err != nil {
		b.logWarn("serial command write failed", "command", cmd, "error", err)
		return err
	}
	b.commandsTx.Add(1)
	b.logInfo("serial command written", "command", cmd)
	return nil
}

// write sends all of data, looping over short writes.
func (b *Bridge) write(data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	select {
	case <-b.done.Done():
		return ErrPortClosed
	default:
	}

	for len(data) > 0 {
		n, err := b.port.Write(data)
		if n > 0 {
			b.bytesTx.Add(uint64(n))
			data = data[n:]
		}
		if err != nil {
			b.writeErrors.Add(1)
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			b.writeErrors.Add(1)
			return fmt.Errorf("serial write: no progress with %d bytes pending", len(data))
		}
	}
	b.lastActivity.Store(time.Now().Unix())
	return nil
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	var last time.Time
	if ts := b.lastActivity.Load(); ts > 0 {
		last = time.Unix(ts, 0)
	}
	return Stats{
		BytesRx:       b.bytesRx.Load(),
		BytesTx:       b.bytesTx.Load(),
		ChunksRx:      b.chunksRx.Load(),
		StatusLinesTx: b.statusLinesTx.Load(),
		CommandsTx:    b.commandsTx.Load(),
		Forwarded:     b.forwarded.Load(),
		ReadErrors:    b.readErrors.Load(),
		WriteErrors:   b.writeErrors.Load(),
		LastActivity:  last,
	}
}

// Close stops the poll loop and closes the port. It is safe to call twice.
func (b *Bridge) Close() error {
	b.closePort.Do(func() {
		b.done.Close()

		// No write may be in progress while the port closes.
		b.writeMu.Lock()
		b.closeErr = b.port.Close()
		b.writeMu.Unlock()
	})

	b.wg.Wait()
	return b.closeErr
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
