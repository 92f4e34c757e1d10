package parcel

import (
	"time"

	"github.com/nerrad567/parcel-bridge/internal/relay"
	"github.com/nerrad567/parcel-bridge/internal/uart"
)

// Event is one message delivered by the broker.
type Event struct {
	Topic   string
	Payload []byte
}

// EffectKind is what the bridge does in response to an Event.
type EffectKind int

const (
	// EffectNone ignores the event.
	EffectNone EffectKind = iota

	// EffectSerialStatus writes a status line to the controller board.
	EffectSerialStatus

	// EffectAlert raises the fixed "not found" alert.
	EffectAlert
)

func (k EffectKind) String() string {
	switch k {
	case EffectSerialStatus:
		return "serial_status"
	case EffectAlert:
		return "alert"
	default:
		return "none"
	}
}

// Effect is the outcome of routing an Event.
type Effect struct {
	Kind EffectKind

	// Operation and LocationCode are set for EffectSerialStatus.
	Operation    int
	LocationCode string
}

// Alert is the fixed notification raised for a "not found" notice.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Mood    string `json:"mood"`
	Sound   string `json:"sound"`
}

// Default alert text and presentation.
const (
	DefaultAlertTitle   = "错误"
	DefaultAlertMessage = "手机尾号不正确，请输入正确的手机尾号"
	DefaultAlertMood    = "sad"
	DefaultAlertSound   = "exclamation"
)

// DefaultAlert returns the built-in "not found" alert.
func DefaultAlert() Alert {
	return Alert{
		Title:   DefaultAlertTitle,
		Message: DefaultAlertMessage,
		Mood:    DefaultAlertMood,
		Sound:   DefaultAlertSound,
	}
}

// Stats holds the bridge's own counters.
type Stats struct {
	EventsReceived   uint64 `json:"events_received"`
	EventsDropped    uint64 `json:"events_dropped"`
	ParseErrors      uint64 `json:"parse_errors"`
	RecordsPublished uint64 `json:"records_published"`
	PublishFailures  uint64 `json:"publish_failures"`
	StatusLines      uint64 `json:"status_lines"`
	SerialFailures   uint64 `json:"serial_failures"`
	AlertsRaised     uint64 `json:"alerts_raised"`
	LookupsPublished uint64 `json:"lookups_published"`
	LookupsThrottled uint64 `json:"lookups_throttled"`
	TurnArounds      uint64 `json:"turn_arounds"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the broker connection is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published, retained, to the health topic.
// QoS: 1, Retained: Yes
type HealthMessage struct {
	BridgeID      string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	MQTTConnected      bool `json:"mqtt_connected"`
	TCPClientConnected bool `json:"tcp_client_connected"`

	Relay      *relay.Stats `json:"relay,omitempty"`
	Serial     *uart.Stats  `json:"serial,omitempty"`
	Statistics *Stats       `json:"statistics,omitempty"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}
