package codec

import "errors"

// Domain errors for the codec package.
var (
	// ErrMalformedRecord is returned when a framed record does not split
	// into exactly RecordFieldCount fields.
	ErrMalformedRecord = errors.New("codec: malformed record")

	// ErrParse is returned when an inbound JSON payload is not a JSON object.
	ErrParse = errors.New("codec: parse error")

	// ErrUnknownMotion is returned for a motion command the controller
	// board does not understand.
	ErrUnknownMotion = errors.New("codec: unknown motion command")
)
