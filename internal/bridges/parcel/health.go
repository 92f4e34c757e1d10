package parcel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/parcel-bridge/internal/relay"
	"github.com/nerrad567/parcel-bridge/internal/uart"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher publishes retained health messages. *mqtt.Client
// implements it.
type HealthPublisher interface {
	PublishRetained(topic string, payload []byte) error
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

// BridgeStatus reports bridge counters. *Bridge implements it.
type BridgeStatus interface {
	Stats() Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Topic is the retained health topic. It must not be the online/offline
	// status topic, whose payload has a different shape.
	Topic string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher

	// Relay, Serial, Bridge and Telemetry are optional.
	Relay     RelayStatus
	Serial    SerialStatus
	Bridge    BridgeStatus
	Telemetry Telemetry
}

// HealthReporter publishes a retained HealthMessage at a fixed interval and
// writes the same counters to telemetry.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Call Start to begin.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}

	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start publishes a "starting" status and begins periodic reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	if err := h.publishStatus(HealthStarting, "bridge starting"); err != nil {
		h.logError("failed to publish starting status", err)
	}

	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishNow publishes the current health status immediately and records
// telemetry.
func (h *HealthReporter) PublishNow() error {
	h.writeTelemetry()
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	return HealthHealthy, ""
}

// Message builds the health message for status.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		BridgeID:      h.cfg.BridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}

	if h.cfg.Publisher != nil {
		msg.MQTTConnected = h.cfg.Publisher.IsConnected()
	}
	if h.cfg.Relay != nil {
		st := h.cfg.Relay.Stats()
		msg.Relay = &st
		msg.TCPClientConnected = st.ClientConnected
	}
	if h.cfg.Serial != nil {
		st := h.cfg.Serial.Stats()
		msg.Serial = &st
	}
	if h.cfg.Bridge != nil {
		st := h.cfg.Bridge.Stats()
		msg.Statistics = &st
	}

	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil || h.cfg.Topic == "" {
		return nil
	}

	payload, err := json.Marshal(h.Message(status, reason))
	if err != nil {
		return err
	}

	return h.cfg.Publisher.PublishRetained(h.cfg.Topic, payload)
}

// writeTelemetry mirrors the component counters to the time-series store.
func (h *HealthReporter) writeTelemetry() {
	t := h.cfg.Telemetry
	if t == nil {
		return
	}

	if h.cfg.Relay != nil {
		s := h.cfg.Relay.Stats()
		t.WriteComponentStats("relay", map[string]any{
			"client_connected":  s.ClientConnected,
			"accepted":          s.Accepted,
			"evicted":           s.Evicted,
			"records_valid":     s.RecordsValid,
			"records_malformed": s.RecordsMalformed,
			"bytes_rx":          s.BytesRx,
			"bytes_tx":          s.BytesTx,
			"send_errors":       s.SendErrors,
		})
	}
	if h.cfg.Serial != nil {
		s := h.cfg.Serial.Stats()
		t.WriteComponentStats("serial", map[string]any{
			"bytes_rx":     s.BytesRx,
			"bytes_tx":     s.BytesTx,
			"chunks_rx":    s.ChunksRx,
			"status_lines": s.StatusLinesTx,
			"commands":     s.CommandsTx,
			"read_errors":  s.ReadErrors,
			"write_errors": s.WriteErrors,
		})
	}
	if h.cfg.Bridge != nil {
		s := h.cfg.Bridge.Stats()
		t.WriteComponentStats("mqtt", map[string]any{
			"connected":         h.cfg.Publisher != nil && h.cfg.Publisher.IsConnected(),
			"events_received":   s.EventsReceived,
			"events_dropped":    s.EventsDropped,
			"parse_errors":      s.ParseErrors,
			"records_published": s.RecordsPublished,
			"publish_failures":  s.PublishFailures,
			"alerts_raised":     s.AlertsRaised,
			"lookups_published": s.LookupsPublished,
		})
	}
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
