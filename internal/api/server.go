package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/parcel-bridge/internal/bridges/parcel"
	"github.com/nerrad567/parcel-bridge/internal/codec"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/config"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/parcel-bridge/internal/relay"
	"github.com/nerrad567/parcel-bridge/internal/uart"
	"github.com/nerrad567/parcel-bridge/internal/voice"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BridgeController is the part of the parcel bridge the API drives.
// *parcel.Bridge implements it.
type BridgeController interface {
	HandleVoiceText(text string) (voice.Action, error)
	Drive(m codec.Motion) error
	Stats() parcel.Stats
	IsConnected() bool
}

// RelayStatus reports TCP relay statistics. *relay.Server implements it.
type RelayStatus interface {
	Stats() relay.Stats
}

// SerialStatus reports serial statistics. *uart.Bridge implements it.
type SerialStatus interface {
	Stats() uart.Stats
}

// BrokerStatus reports broker client state. *mqtt.Client implements it.
type BrokerStatus interface {
	SubscriptionCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Bridge BridgeController

	// Relay, Serial and Broker are optional; Serial is nil when the serial
	// link is disabled.
	Relay  RelayStatus
	Serial SerialStatus
	Broker BrokerStatus

	Version string
}

// Server is the HTTP API server for the parcel bridge.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    BridgeController
	relay     RelayStatus
	serial    SerialStatus
	broker    BrokerStatus
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		relay:     deps.Relay,
		serial:    deps.Serial,
		broker:    deps.Broker,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves HTTP in a background goroutine.
// A bind failure (port in use, etc.) is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
