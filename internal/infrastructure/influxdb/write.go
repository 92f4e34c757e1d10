package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteComponentStats writes one snapshot of a component's counters,
// tagged with the bridge ID and component name.
//
//	client.WriteComponentStats("serial", map[string]any{"bytes_rx": 512})
func (c *Client) WriteComponentStats(component string, fields map[string]any) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(c.statsPoint(component, fields, time.Now()))
}

// WriteEvent records one occurrence of event.
func (c *Client) WriteEvent(event string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(c.eventPoint(event, time.Now()))
}

func (c *Client) statsPoint(component string, fields map[string]any, ts time.Time) *write.Point {
	return write.NewPoint(c.opts.StatsMeasurement,
		map[string]string{"bridge_id": c.opts.BridgeID, "component": component},
		fields, ts)
}

func (c *Client) eventPoint(event string, ts time.Time) *write.Point {
	return write.NewPoint(c.opts.EventsMeasurement,
		map[string]string{"bridge_id": c.opts.BridgeID, "event": event},
		map[string]any{"count": 1}, ts)
}
