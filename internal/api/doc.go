// Package api implements the HTTP status and control API for the parcel bridge.
//
// This package provides:
//   - GET /api/v1/health and /api/v1/metrics for monitoring
//   - POST /api/v1/voice, the ingestion point for recognised speech
//   - POST /api/v1/motion/{command} for driving the controller board
//
// The API binds to localhost by default and carries no authentication.
// Records and lookups still flow over the TCP relay and MQTT; the API
// only observes them and injects voice text and motion commands.
package api
