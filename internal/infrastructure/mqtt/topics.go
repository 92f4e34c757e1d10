package mqtt

import (
	"fmt"
	"strings"
)

// Wildcards and separator of the MQTT topic syntax.
const (
	levelSeparator = "/"
	singleLevel    = "+"
	multiLevel     = "#"
)

// ValidatePublishTopic checks a topic name used for publishing.
// Topic names must be non-empty and must not contain wildcards or NUL.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, singleLevel+multiLevel+"\x00") {
		return fmt.Errorf("%w: %q contains wildcard or NUL", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter. A "+" must occupy a whole
// level, and "#" must be the whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: filter cannot be empty", ErrInvalidTopic)
	}
	if strings.Contains(filter, "\x00") {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidTopic, filter)
	}

	levels := strings.Split(filter, levelSeparator)
	for i, level := range levels {
		if strings.Contains(level, multiLevel) && (level != multiLevel || i != len(levels)-1) {
			return fmt.Errorf("%w: %q misplaces %s", ErrInvalidTopic, filter, multiLevel)
		}
		if strings.Contains(level, singleLevel) && level != singleLevel {
			return fmt.Errorf("%w: %q misplaces %s", ErrInvalidTopic, filter, singleLevel)
		}
	}
	return nil
}

// MatchTopic reports whether a topic name matches a subscription filter.
//
// Example:
//
//	MatchTopic("topic/+", "topic/esp32_rx")  // true
//	MatchTopic("topic/#", "topic")           // true
//	MatchTopic("topic/esp32_rx", "topic/x")  // false
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fl := strings.Split(filter, levelSeparator)
	tl := strings.Split(topic, levelSeparator)

	for i, f := range fl {
		if f == multiLevel {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != singleLevel && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
