package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/parcel-bridge/internal/infrastructure/config"
)

func pointTags(p *write.Point) map[string]string {
	m := make(map[string]string)
	for _, tag := range p.TagList() {
		m[tag.Key] = tag.Value
	}
	return m
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush time.Duration
	}{
		{
			name:      "explicit batching",
			cfg:       config.InfluxDBConfig{Enabled: true, BatchSize: 50, FlushInterval: 3},
			wantBatch: 50,
			wantFlush: 3 * time.Second,
		},
		{
			name:      "non-positive batching uses defaults",
			cfg:       config.InfluxDBConfig{Enabled: true, BatchSize: -1, FlushInterval: 0},
			wantBatch: DefaultBatchSize,
			wantFlush: DefaultFlushInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := FromConfig(tt.cfg, "bridge-01").withDefaults()

			if o.BatchSize != tt.wantBatch || o.FlushInterval != tt.wantFlush {
				t.Errorf("batch = %d flush = %v, want %d %v", o.BatchSize, o.FlushInterval, tt.wantBatch, tt.wantFlush)
			}
			if o.BridgeID != "bridge-01" || !o.Enabled {
				t.Errorf("Options = %+v", o)
			}
			if o.StatsMeasurement != DefaultStatsMeasurement || o.EventsMeasurement != DefaultEventsMeasurement {
				t.Errorf("measurements = %q/%q", o.StatsMeasurement, o.EventsMeasurement)
			}
		})
	}
}

func TestStatsPoint(t *testing.T) {
	c := &Client{opts: Options{BridgeID: "bridge-01"}.withDefaults()}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	p := c.statsPoint("serial", map[string]any{"bytes_rx": 10, "read_errors": 2}, ts)

	if p.Name() != DefaultStatsMeasurement {
		t.Errorf("Name() = %q, want %q", p.Name(), DefaultStatsMeasurement)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}
	tags := pointTags(p)
	if tags["bridge_id"] != "bridge-01" || tags["component"] != "serial" {
		t.Errorf("tags = %v", tags)
	}
	if got := len(p.FieldList()); got != 2 {
		t.Errorf("field count = %d, want 2", got)
	}
}

func TestEventPoint_CustomMeasurement(t *testing.T) {
	c := &Client{opts: Options{BridgeID: "bridge-02", EventsMeasurement: "station_events"}.withDefaults()}

	p := c.eventPoint("alert_raised", time.Now())

	if p.Name() != "station_events" {
		t.Errorf("Name() = %q, want station_events", p.Name())
	}
	tags := pointTags(p)
	if tags["event"] != "alert_raised" || tags["bridge_id"] != "bridge-02" {
		t.Errorf("tags = %v", tags)
	}
	fields := p.FieldList()
	if len(fields) != 1 || fields[0].Key != "count" {
		t.Errorf("fields = %v, want single count field", fields)
	}
}
