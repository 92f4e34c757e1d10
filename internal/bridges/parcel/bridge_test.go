package parcel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/parcel-bridge/internal/codec"
	"github.com/nerrad567/parcel-bridge/internal/voice"
)

const (
	testInbound  = "topic/esp32_rx"
	testOutbound = "topic/esp32_tx"
	testHealth   = "topic/esp32_health"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu           sync.Mutex
	published    []mockPublish
	subs         []mockSubscription
	connected    bool
	publishError error
	nextID       uint16
	handlers     map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	_, err := m.PublishWithID(topic, payload, qos, retained)
	return err
}

func (m *MockMQTTClient) PublishWithID(topic string, payload []byte, qos byte, retained bool) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return 0, m.publishError
	}
	m.nextID++
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return m.nextID, nil
}

// PublishRetained records a retained publish at QoS 1, the configured default.
func (m *MockMQTTClient) PublishRetained(topic string, payload []byte) error {
	return m.Publish(topic, payload, 1, true)
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

func (m *MockMQTTClient) SetPublishError(err error) {
	m.mu.Lock()
	m.publishError = err
	m.mu.Unlock()
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockSubscription(nil), m.subs...)
}

// SimulateMessage simulates receiving an MQTT message on a topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

// mockSerial implements SerialWriter for testing.
type mockSerial struct {
	mu       sync.Mutex
	statuses []string
	commands []string
	err      error
	ch       chan string
}

func newMockSerial() *mockSerial {
	return &mockSerial{ch: make(chan string, 16)}
}

func (s *mockSerial) WriteStatus(operation int, locationCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	line := codec.EncodeStatusLine(operation, locationCode)
	s.statuses = append(s.statuses, line)
	s.ch <- line
	return nil
}

func (s *mockSerial) WriteCommand(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.commands = append(s.commands, cmd)
	return nil
}

func (s *mockSerial) Statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

func (s *mockSerial) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// mockAlertSink records alerts.
type mockAlertSink struct {
	mu     sync.Mutex
	alerts []Alert
	ch     chan Alert
}

func newMockAlertSink() *mockAlertSink {
	return &mockAlertSink{ch: make(chan Alert, 16)}
}

func (a *mockAlertSink) Alert(title, message, mood, sound string) {
	alert := Alert{Title: title, Message: message, Mood: mood, Sound: sound}
	a.mu.Lock()
	a.alerts = append(a.alerts, alert)
	a.mu.Unlock()
	a.ch <- alert
}

func (a *mockAlertSink) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

// mockTelemetry records telemetry writes.
type mockTelemetry struct {
	mu     sync.Mutex
	events []string
	stats  map[string]map[string]any
}

func newMockTelemetry() *mockTelemetry {
	return &mockTelemetry{stats: make(map[string]map[string]any)}
}

func (m *mockTelemetry) WriteEvent(event string) {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
}

func (m *mockTelemetry) WriteComponentStats(component string, fields map[string]any) {
	m.mu.Lock()
	m.stats[component] = fields
	m.mu.Unlock()
}

func (m *mockTelemetry) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// recordingLogger counts log calls per level.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

func testConfig() Config {
	return Config{
		BridgeID:      "parcelbridge-test",
		InboundTopic:  testInbound,
		OutboundTopic: testOutbound,
		QoS:           1,
	}
}

type testRig struct {
	bridge    *Bridge
	mqtt      *MockMQTTClient
	serial    *mockSerial
	alerts    *mockAlertSink
	telemetry *mockTelemetry
}

func newTestRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	rig := &testRig{
		mqtt:      NewMockMQTTClient(),
		serial:    newMockSerial(),
		alerts:    newMockAlertSink(),
		telemetry: newMockTelemetry(),
	}

	b, err := NewBridge(BridgeOptions{
		Config:     cfg,
		MQTTClient: rig.mqtt,
		Serial:     rig.serial,
		Alerts:     rig.alerts,
		Telemetry:  rig.telemetry,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	t.Cleanup(b.Stop)
	rig.bridge = b
	return rig
}

// ===== Construction =====

func TestNewBridge_RequiresMQTTClient(t *testing.T) {
	if _, err := NewBridge(BridgeOptions{}); !errors.Is(err, ErrNoMQTTClient) {
		t.Errorf("NewBridge() error = %v, want ErrNoMQTTClient", err)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.QoS != 1 {
		t.Errorf("QoS = %d, want 1", cfg.QoS)
	}
	if cfg.EventBuffer != defaultEventBuffer {
		t.Errorf("EventBuffer = %d, want %d", cfg.EventBuffer, defaultEventBuffer)
	}
	if cfg.Alert != DefaultAlert() {
		t.Errorf("Alert = %+v, want %+v", cfg.Alert, DefaultAlert())
	}
	if cfg.TriggerPhrase != voice.DefaultTriggerPhrase || cfg.TailMarker != voice.DefaultTailMarker {
		t.Errorf("phrases = %q/%q", cfg.TriggerPhrase, cfg.TailMarker)
	}
}

func TestDefaultAlert(t *testing.T) {
	a := DefaultAlert()
	want := Alert{
		Title:   "错误",
		Message: "手机尾号不正确，请输入正确的手机尾号",
		Mood:    "sad",
		Sound:   "exclamation",
	}
	if a != want {
		t.Errorf("DefaultAlert() = %+v, want %+v", a, want)
	}
}

// ===== Route =====

func TestRoute(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    Effect
		wantErr bool
	}{
		{
			name:    "found with location",
			topic:   testInbound,
			payload: `{"operation":1,"location_code":"A12"}`,
			want:    Effect{Kind: EffectSerialStatus, Operation: 1, LocationCode: "A12"},
		},
		{
			name:    "found without location",
			topic:   testInbound,
			payload: `{"operation":1}`,
			want:    Effect{Kind: EffectNone},
		},
		{
			name:    "not found notice",
			topic:   testInbound,
			payload: `{"operation":2,"reason":"not_found"}`,
			want:    Effect{Kind: EffectAlert},
		},
		{
			name:    "other notice",
			topic:   testInbound,
			payload: `{"operation":2,"reason":"other"}`,
			want:    Effect{Kind: EffectNone},
		},
		{
			name:    "unknown operation",
			topic:   testInbound,
			payload: `{"operation":7,"location_code":"A12"}`,
			want:    Effect{Kind: EffectNone},
		},
		{
			name:    "missing operation",
			topic:   testInbound,
			payload: `{"reason":"not_found"}`,
			want:    Effect{Kind: EffectNone},
		},
		{
			name:    "wrong topic",
			topic:   "topic/other",
			payload: `{"operation":2,"reason":"not_found"}`,
			want:    Effect{Kind: EffectNone},
		},
		{
			name:    "invalid json",
			topic:   testInbound,
			payload: `not json`,
			want:    Effect{Kind: EffectNone},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Route(testInbound, Event{Topic: tt.topic, Payload: []byte(tt.payload)})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Route() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, codec.ErrParse) {
				t.Errorf("Route() error = %v, want ErrParse", err)
			}
			if got != tt.want {
				t.Errorf("Route() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRoute_WildcardInbound(t *testing.T) {
	got, err := Route("topic/+", Event{Topic: "topic/esp32_rx", Payload: []byte(`{"operation":2,"reason":"not_found"}`)})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if got.Kind != EffectAlert {
		t.Errorf("Route() kind = %v, want alert", got.Kind)
	}
}

func TestEffectKind_String(t *testing.T) {
	if EffectNone.String() != "none" || EffectSerialStatus.String() != "serial_status" || EffectAlert.String() != "alert" {
		t.Error("unexpected EffectKind names")
	}
}

// ===== Inbound events =====

func TestBridge_StartSubscribesInbound(t *testing.T) {
	rig := newTestRig(t, testConfig())

	if err := rig.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	subs := rig.mqtt.GetSubscriptions()
	if len(subs) != 1 || subs[0].Topic != testInbound || subs[0].QoS != 1 {
		t.Errorf("subscriptions = %+v, want %s at QoS 1", subs, testInbound)
	}

	if err := rig.bridge.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestBridge_NotFoundRaisesExactlyOneAlert(t *testing.T) {
	rig := newTestRig(t, testConfig())
	if err := rig.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rig.mqtt.SimulateMessage(testInbound, []byte(`{"operation":2,"reason":"not_found"}`))

	select {
	case a := <-rig.alerts.ch:
		if a != DefaultAlert() {
			t.Errorf("alert = %+v, want %+v", a, DefaultAlert())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for alert")
	}

	// A following ignored event proves the loop has moved past the alert.
	rig.mqtt.SimulateMessage(testInbound, []byte(`{"operation":2,"reason":"other"}`))
	waitFor(t, "second event", func() bool { return rig.bridge.Stats().EventsReceived == 2 })
	time.Sleep(20 * time.Millisecond)

	if got := rig.alerts.Count(); got != 1 {
		t.Errorf("alerts = %d, want exactly 1", got)
	}
	if got := rig.telemetry.Events(); len(got) != 1 || got[0] != eventAlert {
		t.Errorf("telemetry events = %v, want [%s]", got, eventAlert)
	}
}

func TestBridge_OtherReasonRaisesNoAlert(t *testing.T) {
	rig := newTestRig(t, testConfig())

	rig.bridge.HandleEvent(Event{Topic: testInbound, Payload: []byte(`{"operation":2,"reason":"other"}`)})

	if got := rig.alerts.Count(); got != 0 {
		t.Errorf("alerts = %d, want 0", got)
	}
}

func TestBridge_FoundWritesStatusLine(t *testing.T) {
	rig := newTestRig(t, testConfig())
	if err := rig.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rig.mqtt.SimulateMessage(testInbound, []byte(`{"operation":1,"location_code":"B07"}`))

	select {
	case line := <-rig.serial.ch:
		if line != "op:1,lc:B07\r\n" {
			t.Errorf("status line = %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for status line")
	}
}

func TestBridge_CustomAlert(t *testing.T) {
	cfg := testConfig()
	cfg.Alert = Alert{Title: "T", Message: "M", Mood: "happy", Sound: "ding"}
	rig := newTestRig(t, cfg)

	rig.bridge.HandleEvent(Event{Topic: testInbound, Payload: []byte(`{"operation":2,"reason":"not_found"}`)})

	a := <-rig.alerts.ch
	if a != cfg.Alert {
		t.Errorf("alert = %+v, want %+v", a, cfg.Alert)
	}
}

func TestBridge_ParseErrorDropped(t *testing.T) {
	rig := newTestRig(t, testConfig())

	rig.bridge.HandleEvent(Event{Topic: testInbound, Payload: []byte(`[1,2,3]`)})

	if got := rig.bridge.Stats().ParseErrors; got != 1 {
		t.Errorf("ParseErrors = %d, want 1", got)
	}
	if len(rig.serial.Statuses()) != 0 || rig.alerts.Count() != 0 {
		t.Error("parse error must have no side effects")
	}
}

func TestBridge_QueueFullDrops(t *testing.T) {
	cfg := testConfig()
	cfg.EventBuffer = 1
	rig := newTestRig(t, cfg)

	// Not started: nothing drains the queue.
	rig.bridge.enqueue(testInbound, []byte(`{}`))
	rig.bridge.enqueue(testInbound, []byte(`{}`))
	rig.bridge.enqueue(testInbound, []byte(`{}`))

	s := rig.bridge.Stats()
	if s.EventsReceived != 3 || s.EventsDropped != 2 {
		t.Errorf("Stats() = %+v, want 3 received and 2 dropped", s)
	}
}

func TestBridge_StopsOnContextCancel(t *testing.T) {
	rig := newTestRig(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	if err := rig.bridge.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		rig.bridge.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not stop")
	}
}

// ===== Records =====

func TestBridge_HandleRecord(t *testing.T) {
	rig := newTestRig(t, testConfig())

	rig.bridge.HandleRecord(codec.PackageRecord{
		Operation:     1,
		Name:          "Alice",
		ExpressNumber: "EXP001",
		LocationCode:  "A12",
		PhoneNumber:   "13800001111",
	})

	pubs := rig.mqtt.GetPublished()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pubs))
	}
	p := pubs[0]
	if p.Topic != testOutbound || p.QoS != 1 || p.Retained {
		t.Errorf("publish = %s qos=%d retained=%v", p.Topic, p.QoS, p.Retained)
	}

	var got map[string]any
	if err := json.Unmarshal(p.Payload, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got["operation"] != float64(1) || got["name"] != "Alice" || got["location_code"] != "A12" {
		t.Errorf("payload = %s", p.Payload)
	}

	if st := rig.serial.Statuses(); len(st) != 1 || st[0] != "op:1,lc:A12\r\n" {
		t.Errorf("serial = %q", st)
	}
	if s := rig.bridge.Stats(); s.RecordsPublished != 1 || s.StatusLines != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBridge_HandleRecord_PublishFailureStillWritesSerial(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.mqtt.SetPublishError(errors.New("not connected"))

	rig.bridge.HandleRecord(codec.PackageRecord{Operation: 2, LocationCode: "C3"})

	if s := rig.bridge.Stats(); s.PublishFailures != 1 || s.RecordsPublished != 0 {
		t.Errorf("Stats() = %+v", s)
	}
	if st := rig.serial.Statuses(); len(st) != 1 || st[0] != "op:2,lc:C3\r\n" {
		t.Errorf("serial = %q", st)
	}
}

func TestBridge_SerialFailureCounted(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.serial.err = errors.New("unplugged")

	rig.bridge.HandleRecord(codec.PackageRecord{Operation: 1, LocationCode: "A1"})

	if s := rig.bridge.Stats(); s.SerialFailures != 1 || s.StatusLines != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBridge_NoSerial(t *testing.T) {
	mq := NewMockMQTTClient()
	log := &recordingLogger{}
	b, err := NewBridge(BridgeOptions{Config: testConfig(), MQTTClient: mq, Logger: log})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	b.HandleRecord(codec.PackageRecord{Operation: 1, LocationCode: "A1"})

	if len(mq.GetPublished()) != 1 {
		t.Error("record should still be published without a serial link")
	}
	if err := b.Drive(codec.MotionStop); !errors.Is(err, ErrSerialUnavailable) {
		t.Errorf("Drive() error = %v, want ErrSerialUnavailable", err)
	}
}

// ===== Voice =====

func TestBridge_HandleVoiceText(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantKind     voice.Kind
		wantCommands []string
		wantPayload  string
	}{
		{
			name:         "turn around",
			text:         "我要转圈啦 随便别的字",
			wantKind:     voice.TurnAround,
			wantCommands: []string{"turn around"},
		},
		{
			name:        "lookup",
			text:        "帮我查一下尾号1234的快递",
			wantKind:    voice.Lookup,
			wantPayload: `{"operation":1,"phone_tail":"1234"}`,
		},
		{
			name:     "too few digits",
			text:     "尾号12",
			wantKind: voice.NoMatch,
		},
		{
			name:     "nothing",
			text:     "今天天气不错",
			wantKind: voice.NoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t, testConfig())

			action, err := rig.bridge.HandleVoiceText(tt.text)
			if err != nil {
				t.Fatalf("HandleVoiceText() error = %v", err)
			}
			if action.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", action.Kind, tt.wantKind)
			}

			cmds := rig.serial.Commands()
			if len(cmds) != len(tt.wantCommands) {
				t.Fatalf("commands = %q, want %q", cmds, tt.wantCommands)
			}
			for i := range cmds {
				if cmds[i] != tt.wantCommands[i] {
					t.Errorf("command[%d] = %q, want %q", i, cmds[i], tt.wantCommands[i])
				}
			}

			pubs := rig.mqtt.GetPublished()
			if tt.wantPayload == "" {
				if len(pubs) != 0 {
					t.Errorf("unexpected publish %s", pubs[0].Payload)
				}
				return
			}
			if len(pubs) != 1 || string(pubs[0].Payload) != tt.wantPayload {
				t.Errorf("published = %+v, want %s", pubs, tt.wantPayload)
			}
		})
	}
}

func TestBridge_LookupThrottled(t *testing.T) {
	cfg := testConfig()
	cfg.LookupRate = 0.001
	cfg.LookupBurst = 2
	rig := newTestRig(t, cfg)

	var throttled int
	for range 5 {
		action, err := rig.bridge.HandleVoiceText("尾号5678")
		if action.Kind != voice.Lookup {
			t.Fatalf("Kind = %v, want lookup", action.Kind)
		}
		switch {
		case errors.Is(err, ErrLookupThrottled):
			throttled++
		case err != nil:
			t.Fatalf("HandleVoiceText() error = %v", err)
		}
	}

	if throttled != 3 {
		t.Errorf("throttled %d lookups, want 3", throttled)
	}
	if got := len(rig.mqtt.GetPublished()); got != 2 {
		t.Errorf("published %d lookups, want 2 (burst)", got)
	}
	if s := rig.bridge.Stats(); s.LookupsThrottled != 3 || s.LookupsPublished != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBridge_LookupUnthrottledByDefault(t *testing.T) {
	rig := newTestRig(t, testConfig())

	for range 10 {
		if _, err := rig.bridge.HandleVoiceText("尾号5678"); err != nil {
			t.Fatalf("HandleVoiceText() error = %v", err)
		}
	}

	if got := len(rig.mqtt.GetPublished()); got != 10 {
		t.Errorf("published %d lookups, want 10", got)
	}
}

func TestBridge_LookupPublishFailureReturned(t *testing.T) {
	rig := newTestRig(t, testConfig())
	brokerErr := errors.New("not connected")
	rig.mqtt.SetPublishError(brokerErr)

	action, err := rig.bridge.HandleVoiceText("尾号5678")
	if action.Kind != voice.Lookup || action.TailNumber != "5678" {
		t.Errorf("action = %+v, want lookup 5678", action)
	}
	if !errors.Is(err, brokerErr) {
		t.Errorf("HandleVoiceText() error = %v, want broker error", err)
	}
	if s := rig.bridge.Stats(); s.LookupsPublished != 0 || s.PublishFailures != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestBridge_Drive(t *testing.T) {
	rig := newTestRig(t, testConfig())

	if err := rig.bridge.Drive(codec.MotionMoveForward); err != nil {
		t.Fatalf("Drive() error = %v", err)
	}
	if cmds := rig.serial.Commands(); len(cmds) != 1 || cmds[0] != "move forward" {
		t.Errorf("commands = %q", cmds)
	}

	rig.serial.err = errors.New("unplugged")
	if err := rig.bridge.Drive(codec.MotionStop); err == nil {
		t.Error("Drive() expected error on serial failure")
	}
}

// ===== Alert sinks =====

func TestLogAlertSink(t *testing.T) {
	log := &recordingLogger{}
	LogAlertSink{Logger: log}.Alert("t", "m", "sad", "exclamation")

	if w := log.Warns(); len(w) != 1 || w[0] != "parcel alert" {
		t.Errorf("warns = %q", w)
	}

	// Nil logger is a no-op.
	LogAlertSink{}.Alert("t", "m", "sad", "exclamation")
}

func TestAlertSinkFunc(t *testing.T) {
	var got Alert
	sink := AlertSinkFunc(func(title, message, mood, sound string) {
		got = Alert{title, message, mood, sound}
	})
	sink.Alert("a", "b", "c", "d")

	if got != (Alert{"a", "b", "c", "d"}) {
		t.Errorf("got %+v", got)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
