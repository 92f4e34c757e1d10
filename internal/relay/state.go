package relay

// State is the lifecycle state of the client slot.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateAccepting
	StateConnected
	StateReading
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAccepting:
		return "accepting"
	case StateConnected:
		return "connected"
	case StateReading:
		return "reading"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
