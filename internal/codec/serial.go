package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeStatusLine formats the status line sent to the controller board,
// e.g. "op:1,lc:A12\r\n".
func EncodeStatusLine(operation int, locationCode string) string {
	return "op:" + strconv.Itoa(operation) + ",lc:" + locationCode + "\r\n"
}

// Motion is a literal command understood by the controller board.
// Commands are written without a line terminator.
type Motion string

// Motion commands.
const (
	MotionTurnAround   Motion = "turn around"
	MotionMoveForward  Motion = "move forward"
	MotionMoveBackward Motion = "move backward"
	MotionTurnLeft     Motion = "turn left"
	MotionTurnRight    Motion = "turn right"
	MotionStop         Motion = "stop"
)

var motionsByName = map[string]Motion{
	"turn_around":   MotionTurnAround,
	"move_forward":  MotionMoveForward,
	"move_backward": MotionMoveBackward,
	"turn_left":     MotionTurnLeft,
	"turn_right":    MotionTurnRight,
	"stop":          MotionStop,
}

// ParseMotion resolves a motion by name. Both the snake_case name
// ("turn_left") and the literal command ("turn left") are accepted,
// case-insensitively.
func ParseMotion(name string) (Motion, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if m, ok := motionsByName[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMotion, name)
}

// String returns the literal serial command.
func (m Motion) String() string {
	return string(m)
}
