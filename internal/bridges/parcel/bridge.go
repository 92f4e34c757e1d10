package parcel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/nerrad567/parcel-bridge/internal/codec"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/config"
	"github.com/nerrad567/parcel-bridge/internal/voice"
)

// Bridge operation constants.
const (
	// defaultEventBuffer bounds the inbound event queue.
	defaultEventBuffer = 64

	// defaultQoS is "at least once" for both directions.
	defaultQoS = 1
)

// Event names written to telemetry.
const (
	eventAlert          = "alert_raised"
	eventLookup         = "lookup_published"
	eventLookupThrottle = "lookup_throttled"
	eventTurnAround     = "turn_around"
)

// MQTTClient is the broker interface the bridge needs.
// main.go adapts *mqtt.Client to it.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// PublishWithID is Publish that also returns the broker message id.
	PublishWithID(topic string, payload []byte, qos byte, retained bool) (uint16, error)

	// Subscribe registers a handler for a topic filter.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// SerialWriter writes to the controller board. *uart.Bridge implements it.
type SerialWriter interface {
	WriteStatus(operation int, locationCode string) error
	WriteCommand(cmd string) error
}

// Telemetry receives counters and event counts, already tagged with the
// bridge ID. *influxdb.Client implements it.
type Telemetry interface {
	WriteEvent(event string)
	WriteComponentStats(component string, fields map[string]any)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds the bridge settings.
type Config struct {
	BridgeID      string
	InboundTopic  string
	OutboundTopic string

	// QoS applies to the subscription and to publishes. Zero means 1.
	QoS         byte
	EventBuffer int

	Alert Alert

	TriggerPhrase string
	TailMarker    string

	// LookupRate is lookups per second; 0 disables throttling.
	LookupRate  float64
	LookupBurst int
}

// ConfigFrom extracts the bridge settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BridgeID:      cfg.Bridge.ID,
		InboundTopic:  cfg.MQTT.Topics.Inbound,
		OutboundTopic: cfg.MQTT.Topics.Outbound,
		QoS:           byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2 by config.Validate
		EventBuffer:   cfg.Bridge.EventBuffer,
		Alert: Alert{
			Title:   cfg.Alert.Title,
			Message: cfg.Alert.Message,
			Mood:    cfg.Alert.Mood,
			Sound:   cfg.Alert.Sound,
		},
		TriggerPhrase: cfg.Voice.TriggerPhrase,
		TailMarker:    cfg.Voice.TailMarker,
		LookupRate:    cfg.Voice.LookupRate,
		LookupBurst:   cfg.Voice.LookupBurst,
	}
}

func (c Config) withDefaults() Config {
	if c.QoS == 0 {
		c.QoS = defaultQoS
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	def := DefaultAlert()
	if c.Alert.Title == "" {
		c.Alert.Title = def.Title
	}
	if c.Alert.Message == "" {
		c.Alert.Message = def.Message
	}
	if c.Alert.Mood == "" {
		c.Alert.Mood = def.Mood
	}
	if c.Alert.Sound == "" {
		c.Alert.Sound = def.Sound
	}
	if c.TriggerPhrase == "" {
		c.TriggerPhrase = voice.DefaultTriggerPhrase
	}
	if c.TailMarker == "" {
		c.TailMarker = voice.DefaultTailMarker
	}
	if c.LookupBurst <= 0 {
		c.LookupBurst = 1
	}
	return c
}

// BridgeOptions holds the collaborators for a bridge.
type BridgeOptions struct {
	Config Config

	// MQTTClient is required.
	MQTTClient MQTTClient

	// Serial may be nil when the serial link is disabled; serial effects
	// are then logged and skipped.
	Serial SerialWriter

	// Alerts defaults to a LogAlertSink on Logger.
	Alerts AlertSink

	// Telemetry is optional.
	Telemetry Telemetry

	Logger Logger
}

// Bridge routes traffic between the broker, the TCP relay and the serial
// link.
//
// Thread Safety: All methods are safe for concurrent use. Broker events are
// applied one at a time by a single event loop.
type Bridge struct {
	cfg       Config
	mqtt      MQTTClient
	serial    SerialWriter
	alerts    AlertSink
	telemetry Telemetry
	matcher   *voice.Matcher
	limiter   *rate.Limiter

	events chan Event

	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	eventsReceived   atomic.Uint64
	eventsDropped    atomic.Uint64
	parseErrors      atomic.Uint64
	recordsPublished atomic.Uint64
	publishFailures  atomic.Uint64
	statusLines      atomic.Uint64
	serialFailures   atomic.Uint64
	alertsRaised     atomic.Uint64
	lookupsPublished atomic.Uint64
	lookupsThrottled atomic.Uint64
	turnArounds      atomic.Uint64
}

// NewBridge creates a new bridge. Call Start to subscribe.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, ErrNoMQTTClient
	}

	cfg := opts.Config.withDefaults()

	matcher, err := voice.NewMatcher(cfg.TriggerPhrase, cfg.TailMarker)
	if err != nil {
		return nil, fmt.Errorf("creating command matcher: %w", err)
	}

	limit := rate.Inf
	if cfg.LookupRate > 0 {
		limit = rate.Limit(cfg.LookupRate)
	}

	alerts := opts.Alerts
	if alerts == nil {
		alerts = LogAlertSink{Logger: opts.Logger}
	}

	return &Bridge{
		cfg:       cfg,
		mqtt:      opts.MQTTClient,
		serial:    opts.Serial,
		alerts:    alerts,
		telemetry: opts.Telemetry,
		matcher:   matcher,
		limiter:   rate.NewLimiter(limit, cfg.LookupBurst),
		events:    make(chan Event, cfg.EventBuffer),
		done:      make(chan struct{}),
		logger:    opts.Logger,
	}, nil
}

// SetLogger sets the logger for bridge events.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// Start runs the event loop and subscribes to the inbound topic.
// Resubscription after a reconnect is handled by the broker client.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	b.wg.Add(1)
	go b.eventLoop(ctx)

	if err := b.mqtt.Subscribe(b.cfg.InboundTopic, b.cfg.QoS, b.enqueue); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.cfg.InboundTopic, err)
	}

	b.logInfo("parcel bridge started",
		"bridge_id", b.cfg.BridgeID,
		"inbound", b.cfg.InboundTopic,
		"outbound", b.cfg.OutboundTopic,
	)
	return nil
}

// Stop ends the event loop. Queued events are discarded.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.logInfo("parcel bridge stopped")
	})
}

// enqueue is the subscription handler. It never blocks the broker client.
func (b *Bridge) enqueue(topic string, payload []byte) {
	b.eventsReceived.Add(1)

	select {
	case b.events <- Event{Topic: topic, Payload: payload}:
	default:
		b.eventsDropped.Add(1)
		b.logWarn("event queue full, dropping message", "topic", topic)
	}
}

func (b *Bridge) eventLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev := <-b.events:
			b.HandleEvent(ev)
		}
	}
}

// HandleEvent routes one broker event and applies its effect.
func (b *Bridge) HandleEvent(ev Event) {
	effect, err := Route(b.cfg.InboundTopic, ev)
	if err != nil {
		b.parseErrors.Add(1)
		b.logWarn("inbound message dropped", "topic", ev.Topic, "error", err)
		return
	}

	switch effect.Kind {
	case EffectSerialStatus:
		b.writeStatus(effect.Operation, effect.LocationCode)
	case EffectAlert:
		b.raiseAlert()
	default:
		b.logDebug("inbound message ignored", "topic", ev.Topic)
	}
}

func (b *Bridge) raiseAlert() {
	a := b.cfg.Alert
	b.alertsRaised.Add(1)
	b.alerts.Alert(a.Title, a.Message, a.Mood, a.Sound)
	b.recordEvent(eventAlert)
}

// HandleRecord publishes a record read by the TCP relay and writes its
// status line to the controller board.
func (b *Bridge) HandleRecord(rec codec.PackageRecord) {
	payload, err := codec.EncodeRecord(rec)
	if err != nil {
		b.logError("encoding record failed", err)
		return
	}

	if b.publish(b.cfg.OutboundTopic, payload) == nil {
		b.recordsPublished.Add(1)
	}
	b.writeStatus(rec.Operation, rec.LocationCode)
}

// HandleVoiceText matches free text from the speech-recognition pipeline
// and carries out the resulting action.
//
//   - TurnAround writes the "turn around" command to the serial link.
//   - Lookup publishes a lookup request, subject to the rate limit.
//   - NoMatch is ignored.
//
// The returned action is what the text matched. A non-nil error means the
// action was not carried out: ErrLookupThrottled when the rate limit dropped
// a lookup, otherwise the publish or serial failure.
func (b *Bridge) HandleVoiceText(text string) (voice.Action, error) {
	action := b.matcher.Match(text)

	var err error
	switch action.Kind {
	case voice.TurnAround:
		b.turnArounds.Add(1)
		b.recordEvent(eventTurnAround)
		if err = b.Drive(codec.MotionTurnAround); err != nil {
			b.logWarn("turn around not sent", "error", err)
		}
	case voice.Lookup:
		err = b.publishLookup(action.TailNumber)
	default:
		b.logDebug("voice text ignored", "chars", len([]rune(text)))
	}

	return action, err
}

func (b *Bridge) publishLookup(tail string) error {
	if !b.limiter.Allow() {
		b.lookupsThrottled.Add(1)
		b.recordEvent(eventLookupThrottle)
		b.logWarn("lookup dropped", "error", ErrLookupThrottled)
		return ErrLookupThrottled
	}

	payload, err := codec.EncodeLookup(tail)
	if err != nil {
		b.logError("encoding lookup failed", err)
		return err
	}
	if err := b.publish(b.cfg.OutboundTopic, payload); err != nil {
		return err
	}
	b.lookupsPublished.Add(1)
	b.recordEvent(eventLookup)
	return nil
}

// Drive writes a motion command to the controller board.
func (b *Bridge) Drive(m codec.Motion) error {
	if b.serial == nil {
		return ErrSerialUnavailable
	}
	if err := b.serial.WriteCommand(m.String()); err != nil {
		b.serialFailures.Add(1)
		return fmt.Errorf("drive %q: %w", m, err)
	}
	return nil
}

// publish sends payload fire-and-forget. Failures are logged, never retried.
func (b *Bridge) publish(topic string, payload []byte) error {
	id, err := b.mqtt.PublishWithID(topic, payload, b.cfg.QoS, false)
	if err != nil {
		b.publishFailures.Add(1)
		b.logWarn("publish failed", "topic", topic, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.logInfo("published", "topic", topic, "msg_id", id, "bytes", len(payload))
	return nil
}

func (b *Bridge) writeStatus(operation int, locationCode string) {
	if b.serial == nil {
		b.logWarn("serial link disabled, status line skipped", "operation", operation)
		return
	}
	if err := b.serial.WriteStatus(operation, locationCode); err != nil {
		b.serialFailures.Add(1)
		return
	}
	b.statusLines.Add(1)
}

func (b *Bridge) recordEvent(event string) {
	if b.telemetry != nil {
		b.telemetry.WriteEvent(event)
	}
}

// HandleConnect logs a broker (re)connection.
func (b *Bridge) HandleConnect() {
	b.logInfo("MQTT connected", "inbound", b.cfg.InboundTopic)
}

// HandleDisconnect logs a lost broker connection. Reconnection belongs to
// the broker client.
func (b *Bridge) HandleDisconnect(err error) {
	b.logWarn("MQTT disconnected", "error", err)
}

// IsConnected reports the broker connection state.
func (b *Bridge) IsConnected() bool {
	return b.mqtt.IsConnected()
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		EventsReceived:   b.eventsReceived.Load(),
		EventsDropped:    b.eventsDropped.Load(),
		ParseErrors:      b.parseErrors.Load(),
		RecordsPublished: b.recordsPublished.Load(),
		PublishFailures:  b.publishFailures.Load(),
		StatusLines:      b.statusLines.Load(),
		SerialFailures:   b.serialFailures.Load(),
		AlertsRaised:     b.alertsRaised.Load(),
		LookupsPublished: b.lookupsPublished.Load(),
		LookupsThrottled: b.lookupsThrottled.Load(),
		TurnArounds:      b.turnArounds.Load(),
	}
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

func (b *Bridge) logError(msg string, err error) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}
