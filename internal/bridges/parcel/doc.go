// Package parcel is the MQTT side of the parcel relay bridge.
//
// The Bridge connects three collaborators:
//   - the broker (MQTTClient): inbound actions arrive on the inbound topic,
//     parcel records and lookup requests leave on the outbound topic;
//   - the controller board (SerialWriter): status lines and motion commands;
//   - the local alert sink (AlertSink): user-facing "not found" alerts.
//
// Broker callbacks only enqueue an Event on a bounded channel. A single
// event loop drains it and applies the Effect computed by Route, which is a
// pure function of the event and the inbound topic.
//
// The TCP relay hands every valid record to HandleRecord. Free text from the
// speech-recognition pipeline goes through HandleVoiceText.
//
// HealthReporter publishes a retained HealthMessage to the health topic and
// mirrors the counters to InfluxDB when telemetry is configured.
package parcel
