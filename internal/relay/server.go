package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/parcel-bridge/internal/codec"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/config"
)

// Defaults expected by the parcel station client.
const (
	DefaultAddr           = "0.0.0.0:5000"
	DefaultAck            = "Received ok!!!"
	DefaultReadBufferSize = 128
	DefaultWriteTimeout   = 2 * time.Second

	// Backoff bounds for transient accept failures.
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// RecordHandler receives every valid record read from the client.
// The parcel bridge implements it (MQTT publish + serial status line).
type RecordHandler interface {
	HandleRecord(rec codec.PackageRecord)
}

// RecordHandlerFunc adapts a function to RecordHandler.
type RecordHandlerFunc func(rec codec.PackageRecord)

// HandleRecord calls f(rec).
func (f RecordHandlerFunc) HandleRecord(rec codec.PackageRecord) { f(rec) }

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address in host:port form.
	Addr string

	ReadBufferSize int

	// Ack is written back after every read, valid record or not.
	Ack string

	// WriteTimeout bounds a single Send.
	WriteTimeout time.Duration

	Handler RecordHandler
	Logger  Logger
}

// FromConfig builds Options from the file configuration.
func FromConfig(c config.TCPConfig) Options {
	return Options{
		Addr:           net.JoinHostPort(c.Host, fmt.Sprint(c.Port)),
		ReadBufferSize: c.ReadBufferSize,
		Ack:            c.Ack,
		WriteTimeout:   time.Duration(c.WriteTimeout) * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	if o.Ack == "" {
		o.Ack = DefaultAck
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Stats holds relay counters.
type Stats struct {
	State            string `json:"state"`
	ClientConnected  bool   `json:"client_connected"`
	ClientAddr       string `json:"client_addr,omitempty"`
	Accepted         uint64 `json:"accepted"`
	Evicted          uint64 `json:"evicted"`
	RecordsValid     uint64 `json:"records_valid"`
	RecordsMalformed uint64 `json:"records_malformed"`
	BytesRx          uint64 `json:"bytes_rx"`
	BytesTx          uint64 `json:"bytes_tx"`
	SendErrors       uint64 `json:"send_errors"`
	SendsDropped     uint64 `json:"sends_dropped"`
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

// Server is the single-client TCP relay.
//
// Thread Safety:
//   - connMu guards the active connection and every write to it.
//   - Send may be called from any goroutine.
//   - HandleRecord is called from the read loop goroutine, outside connMu.
type Server struct {
	opts Options

	listener net.Listener
	listenMu sync.RWMutex

	// conn is the single active client. Writes happen under connMu.
	conn   net.Conn
	connMu sync.Mutex

	handler   RecordHandler
	handlerMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	state   atomic.Int32
	started atomic.Bool
	done    *closeOnce
	wg      sync.WaitGroup

	accepted         atomic.Uint64
	evicted          atomic.Uint64
	recordsValid     atomic.Uint64
	recordsMalformed atomic.Uint64
	bytesRx          atomic.Uint64
	bytesTx          atomic.Uint64
	sendErrors       atomic.Uint64
	sendsDropped     atomic.Uint64
}

// NewServer creates a relay server. It does not listen until Start.
func NewServer(opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		opts:    opts,
		handler: opts.Handler,
		logger:  opts.Logger,
		done:    newCloseOnce(),
	}
}

// SetHandler installs the record handler.
func (s *Server) SetHandler(h RecordHandler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// SetLogger sets the logger for relay events.
func (s *Server) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Start listens on the configured address and runs the accept loop in the
// background. Cancelling ctx shuts the server down like Close.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-s.done.Done():
		return ErrServerClosed
	default:
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("relay listen %s: %w", s.opts.Addr, err)
	}

	s.listenMu.Lock()
	s.listener = ln
	s.listenMu.Unlock()
	s.setState(StateListening)

	s.wg.Add(1)
	go s.acceptLoop(ln)

	go func() {
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-s.done.Done():
		}
	}()

	s.logInfo("tcp relay listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.listenMu.RLock()
	defer s.listenMu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

// ClientConnected reports whether a client is currently active.
func (s *Server) ClientConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	backoff := time.Duration(0)
	for {
		if s.isClosed() {
			return
		}
		s.connMu.Lock()
		if s.conn == nil {
			s.setState(StateAccepting)
		}
		s.connMu.Unlock()

		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			s.logWarn("tcp accept failed", "error", err, "retry_in", backoff.String())

			select {
			case <-s.done.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		s.adopt(conn)
	}
}

// adopt makes conn the active client, evicting the previous one first.
func (s *Server) adopt(conn net.Conn) {
	s.connMu.Lock()
	if s.isClosed() {
		s.connMu.Unlock()
		_ = conn.Close()
		return
	}

	if old := s.conn; old != nil {
		s.setState(StateClosing)
		s.conn = nil
		_ = old.Close()
		s.evicted.Add(1)
		s.logInfo("tcp client evicted", "client", old.RemoteAddr().String(), "by", conn.RemoteAddr().String())
	}

	s.conn = conn
	s.setState(StateConnected)
	s.connMu.Unlock()

	s.accepted.Add(1)
	s.logInfo("tcp client connected", "client", conn.RemoteAddr().String())

	s.wg.Add(1)
	go s.readLoop(conn)
}

// readLoop reads from conn until it closes, errors or is superseded.
func (s *Server) readLoop(conn net.Conn) {
	defer s.wg.Done()

	buf := make([]byte, s.opts.ReadBufferSize)
	for {
		s.markReading(conn)

		n, err := conn.Read(buf)
		if n > 0 {
			s.bytesRx.Add(uint64(n))
			s.handleRead(conn, string(buf[:n]))
		}

		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, io.EOF):
			s.logInfo("tcp client disconnected", "client", conn.RemoteAddr().String())
		case s.isClosed() || !s.owns(conn):
			// Closed by eviction or shutdown.
		default:
			s.logWarn("tcp read failed", "client", conn.RemoteAddr().String(), "error", err)
		}

		s.release(conn)
		return
	}
}

// handleRead acknowledges one read and dispatches it as a record.
// The ack goes out before validation, for valid and malformed input alike.
func (s *Server) handleRead(conn net.Conn, data string) {
	s.connMu.Lock()
	if s.conn == conn {
		s.writeLocked(s.opts.Ack)
	}
	s.connMu.Unlock()

	rec, err := codec.DecodeRecord(data)
	if err != nil {
		s.recordsMalformed.Add(1)
		s.logWarn("malformed record dropped", "error", err, "bytes", len(data))
		return
	}
	s.recordsValid.Add(1)
	s.logDebug("record received", "operation", rec.Operation, "location_code", rec.LocationCode)

	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()
	if h != nil {
		h.HandleRecord(rec)
	}
}

func (s *Server) markReading(conn net.Conn) {
	s.connMu.Lock()
	if s.conn == conn {
		s.setState(StateReading)
	}
	s.connMu.Unlock()
}

func (s *Server) owns(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn == conn
}

// release closes conn and clears the slot if conn still owns it.
func (s *Server) release(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	_ = conn.Close()
	if s.conn != conn {
		return
	}
	s.setState(StateClosing)
	s.conn = nil
	if !s.isClosed() {
		s.setState(StateAccepting)
	}
}

// Send writes message to the active client. With no client the message is
// dropped. A write failure closes and clears the connection. Errors are
// logged, never returned.
func (s *Server) Send(message string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.writeLocked(message)
}

// writeLocked writes all of message to s.conn. connMu must be held.
func (s *Server) writeLocked(message string) {
	conn := s.conn
	if conn == nil {
		s.sendsDropped.Add(1)
		s.logWarn("tcp send dropped", "error", ErrNotConnected, "bytes", len(message))
		return
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		s.logDebug("set write deadline failed", "error", err)
	}

	data := []byte(message)
	for len(data) > 0 {
		n, err := conn.Write(data)
		if n > 0 {
			s.bytesTx.Add(uint64(n))
			data = data[n:]
		}
		if err == nil && n == 0 {
			err = ErrShortWrite
		}
		if err != nil {
			s.sendErrors.Add(1)
			s.logWarn("tcp send failed, closing client", "client", conn.RemoteAddr().String(), "error", err)
			s.setState(StateClosing)
			_ = conn.Close()
			s.conn = nil
			if !s.isClosed() {
				s.setState(StateAccepting)
			}
			return
		}
	}
}

// Stats returns a snapshot of the relay counters.
func (s *Server) Stats() Stats {
	st := Stats{
		State:            s.State().String(),
		Accepted:         s.accepted.Load(),
		Evicted:          s.evicted.Load(),
		RecordsValid:     s.recordsValid.Load(),
		RecordsMalformed: s.recordsMalformed.Load(),
		BytesRx:          s.bytesRx.Load(),
		BytesTx:          s.bytesTx.Load(),
		SendErrors:       s.sendErrors.Load(),
		SendsDropped:     s.sendsDropped.Load(),
	}

	s.connMu.Lock()
	if s.conn != nil {
		st.ClientConnected = true
		st.ClientAddr = s.conn.RemoteAddr().String()
	}
	s.connMu.Unlock()

	return st
}

// Close stops accepting, closes the active client and waits for the
// accept and read goroutines to exit.
func (s *Server) Close() error {
	err := s.shutdown()
	s.wg.Wait()
	return err
}

func (s *Server) shutdown() error {
	s.done.Close()

	var err error
	s.listenMu.Lock()
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = fmt.Errorf("relay close listener: %w", cerr)
		}
	}
	s.listenMu.Unlock()

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.setState(StateClosed)
	s.connMu.Unlock()

	return err
}

func (s *Server) isClosed() bool {
	select {
	case <-s.done.Done():
		return true
	default:
		return false
	}
}

func (s *Server) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Server) logDebug(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (s *Server) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (s *Server) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
