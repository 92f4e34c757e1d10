package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Inbound operation codes carried in the "operation" field.
const (
	// OperationFound reports that a parcel was located; LocationCode is set.
	OperationFound = 1

	// OperationNotice is a system notice; Reason is set.
	OperationNotice = 2

	// OperationUnknown is used when the payload has no usable operation.
	OperationUnknown = -1

	// ReasonNotFound is the only actionable notice reason.
	ReasonNotFound = "not_found"

	// OperationLookup is the operation code of an outbound LookupRequest.
	OperationLookup = 1
)

// InboundAction is an instruction received from the broker.
type InboundAction struct {
	Operation    int    `json:"operation"`
	LocationCode string `json:"location_code,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// IsFound reports whether the action carries a usable location code.
func (a InboundAction) IsFound() bool {
	return a.Operation == OperationFound && a.LocationCode != ""
}

// IsNotFound reports whether the action is a "not found" notice.
func (a InboundAction) IsNotFound() bool {
	return a.Operation == OperationNotice && a.Reason == ReasonNotFound
}

// LookupRequest asks the backend to look up parcels by phone tail number.
type LookupRequest struct {
	Operation int    `json:"operation"`
	PhoneTail string `json:"phone_tail"`
}

// DecodeInbound parses a broker payload into an InboundAction.
//
// Decoding is tolerant: a missing or non-numeric operation becomes
// OperationUnknown, and missing or non-string location_code/reason become
// empty strings. Only a payload that is not a JSON object is rejected, with
// ErrParse.
func DecodeInbound(payload []byte) (InboundAction, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return InboundAction{}, fmt.Errorf("%w: payload is not a JSON object", ErrParse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return InboundAction{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return InboundAction{
		Operation:    intField(fields["operation"]),
		LocationCode: stringField(fields["location_code"]),
		Reason:       stringField(fields["reason"]),
	}, nil
}

// EncodeInbound renders an InboundAction as compact JSON. Empty optional
// fields are omitted, so decoding the output yields the same action.
func EncodeInbound(a InboundAction) ([]byte, error) {
	return marshalCompact(a)
}

// EncodeLookup renders a lookup request for the given phone tail number.
func EncodeLookup(tail string) ([]byte, error) {
	return marshalCompact(LookupRequest{Operation: OperationLookup, PhoneTail: tail})
}

func intField(raw json.RawMessage) int {
	if raw == nil || string(raw) == "null" {
		return OperationUnknown
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return OperationUnknown
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return OperationUnknown
	}
	return int(f)
}

func stringField(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
