package uart

import "errors"

// Domain errors for the serial bridge.
var (
	// ErrPortClosed is returned when writing after Close.
	ErrPortClosed = errors.New("uart: port closed")

	// ErrNoPort is returned when a Bridge is built without a port.
	ErrNoPort = errors.New("uart: no port configured")

	// ErrOpenFailed is returned when the serial device cannot be opened.
	ErrOpenFailed = errors.New("uart: open failed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("uart: already started")
)
