package parcel

import (
	"github.com/nerrad567/parcel-bridge/internal/codec"
	"github.com/nerrad567/parcel-bridge/internal/infrastructure/mqtt"
)

// Route maps a broker event to the effect the bridge should apply.
//
// Only events on inboundTopic (which may be a wildcard filter) are
// considered. A found notice with a location code becomes a serial status
// line; a "not_found" notice becomes an alert; everything else is ignored.
// A payload that is not a JSON object returns an error wrapping
// codec.ErrParse.
func Route(inboundTopic string, ev Event) (Effect, error) {
	if !mqtt.MatchTopic(inboundTopic, ev.Topic) {
		return Effect{Kind: EffectNone}, nil
	}

	action, err := codec.DecodeInbound(ev.Payload)
	if err != nil {
		return Effect{Kind: EffectNone}, err
	}

	switch {
	case action.IsFound():
		return Effect{
			Kind:         EffectSerialStatus,
			Operation:    action.Operation,
			LocationCode: action.LocationCode,
		}, nil
	case action.IsNotFound():
		return Effect{Kind: EffectAlert}, nil
	default:
		return Effect{Kind: EffectNone}, nil
	}
}
