// Package voice maps free text from the speech-recognition pipeline to
// bridge actions.
//
// Two phrases are recognised. The trigger phrase (default "我要转圈啦") asks
// the car to turn around. The tail marker (default "尾号") followed directly
// by four ASCII digits requests a parcel lookup by phone tail number.
package voice

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Defaults for NewMatcher.
const (
	DefaultTriggerPhrase = "我要转圈啦"
	DefaultTailMarker    = "尾号"

	// TailDigits is the number of digits in a phone tail number.
	TailDigits = 4
)

// ErrEmptyPhrase is returned when the matcher is built with an empty phrase.
var ErrEmptyPhrase = errors.New("voice: trigger phrase and tail marker must not be empty")

// Kind classifies a matched action.
type Kind int

// Action kinds.
const (
	NoMatch Kind = iota
	TurnAround
	Lookup
)

// String returns a lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case TurnAround:
		return "turn_around"
	case Lookup:
		return "lookup"
	default:
		return "none"
	}
}

// Action is the result of matching one piece of text.
// TailNumber is set only for Lookup.
type Action struct {
	Kind       Kind
	TailNumber string
}

// Matcher recognises bridge commands in free text. It is safe for
// concurrent use.
type Matcher struct {
	trigger string
	tailRe  *regexp.Regexp
}

// NewMatcher builds a Matcher for the given trigger phrase and tail marker.
func NewMatcher(trigger, tailMarker string) (*Matcher, error) {
	if trigger == "" || tailMarker == "" {
		return nil, ErrEmptyPhrase
	}
	re, err := regexp.Compile(regexp.QuoteMeta(tailMarker) + fmt.Sprintf(`([0-9]{%d})`, TailDigits))
	if err != nil {
		return nil, fmt.Errorf("compiling tail pattern: %w", err)
	}
	return &Matcher{trigger: trigger, tailRe: re}, nil
}

// Match classifies text. The trigger phrase wins over a tail number; the
// leftmost tail marker followed by four digits is used, and any digits
// after the fourth are ignored.
func (m *Matcher) Match(text string) Action {
	if strings.Contains(text, m.trigger) {
		return Action{Kind: TurnAround}
	}
	if sub := m.tailRe.FindStringSubmatch(text); sub != nil {
		return Action{Kind: Lookup, TailNumber: sub[1]}
	}
	return Action{Kind: NoMatch}
}
