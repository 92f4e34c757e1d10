// Package influxdb writes parcel bridge telemetry to InfluxDB v2.
//
// Two measurements are written, both tagged with the bridge ID:
// per-component counter snapshots (relay, serial, mqtt) and one count
// point per bridge event (alert, lookup, turn around). Parcel record
// contents such as names and phone numbers never reach the store.
//
//	client, err := influxdb.Connect(ctx, influxdb.FromConfig(cfg.InfluxDB, cfg.Bridge.ID))
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteComponentStats("relay", map[string]any{"accepted": 3})
//	client.WriteEvent("alert_raised")
//
// Writes are batched by the influxdb-client-go write API and never block.
// Batch failures arrive asynchronously through SetOnError.
package influxdb
