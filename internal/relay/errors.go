package relay

import "errors"

// Domain errors for the relay server.
var (
	// ErrNotConnected means no client is connected. Send logs it; it is
	// never returned to callers.
	ErrNotConnected = errors.New("relay: no client connected")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("relay: already started")

	// ErrServerClosed is returned by Start after Close.
	ErrServerClosed = errors.New("relay: server closed")

	// ErrShortWrite is returned when a write makes no progress.
	ErrShortWrite = errors.New("relay: short write")
)
