package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/parcel-bridge/internal/bridges/parcel"
	"github.com/nerrad567/parcel-bridge/internal/relay"
	"github.com/nerrad567/parcel-bridge/internal/uart"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Relay         *relay.Stats   `json:"relay,omitempty"`
	Serial        *uart.Stats    `json:"serial,omitempty"`
	Bridge        parcel.Stats   `json:"bridge"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// handleMetrics returns runtime and bridge metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT:   MQTTMetrics{Connected: s.bridge.IsConnected()},
		Bridge: s.bridge.Stats(),
	}

	if s.broker != nil {
		metrics.MQTT.Subscriptions = s.broker.SubscriptionCount()
	}
	if s.relay != nil {
		st := s.relay.Stats()
		metrics.Relay = &st
	}
	if s.serial != nil {
		st := s.serial.Stats()
		metrics.Serial = &st
	}

	writeJSON(w, http.StatusOK, metrics)
}
