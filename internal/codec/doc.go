// Package codec implements the wire formats spoken by the parcel bridge.
//
// Three encodings meet here:
//   - Framed records: semicolon-separated text lines received from the TCP
//     client ("1;Alice;EXP001;A12;13800001111").
//   - JSON payloads exchanged with the MQTT broker (outbound records and
//     lookup requests, inbound actions).
//   - Serial lines written to the controller board ("op:1,lc:A12\r\n" and
//     literal motion commands).
//
// Every text field of a PackageRecord is bounded to MaxFieldLen bytes. Longer
// values are truncated on a UTF-8 boundary rather than rejected.
//
// Usage:
//
//	rec, err := codec.DecodeRecord("1;Alice;EXP001;A12;13800001111")
//	if errors.Is(err, codec.ErrMalformedRecord) {
//	    // drop
//	}
//	payload, _ := codec.EncodeRecord(rec)
package codec
