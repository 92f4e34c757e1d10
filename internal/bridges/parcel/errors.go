package parcel

import "errors"

// Domain errors for the parcel bridge.
var (
	// ErrNoMQTTClient is returned by NewBridge without a broker client.
	ErrNoMQTTClient = errors.New("parcel: MQTT client is required")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("parcel: bridge already started")

	// ErrSerialUnavailable is returned by Drive when no serial link is wired.
	ErrSerialUnavailable = errors.New("parcel: serial link unavailable")

	// ErrLookupThrottled is returned by HandleVoiceText when a lookup exceeds
	// the rate limit and is dropped.
	ErrLookupThrottled = errors.New("parcel: lookup throttled")
)
