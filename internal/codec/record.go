package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Framed record layout.
const (
	// RecordSeparator splits the fields of a framed record.
	RecordSeparator = ';'

	// RecordFieldCount is the exact number of fields a record must carry:
	// operation;name;express_number;location_code;phone_number
	RecordFieldCount = 5

	// MaxFieldLen bounds every text field of a PackageRecord, in bytes.
	MaxFieldLen = 31
)

// PackageRecord is one parcel event received from the TCP client.
//
// Field order matches the wire order and the JSON key order published to
// the broker.
type PackageRecord struct {
	Operation     int    `json:"operation"`
	Name          string `json:"name"`
	ExpressNumber string `json:"express_number"`
	LocationCode  string `json:"location_code"`
	PhoneNumber   string `json:"phone_number"`
}

// DecodeRecord parses a semicolon-delimited framed record.
//
// Trailing line terminators and NUL padding are stripped before splitting.
// Empty fields are skipped: runs of separators collapse into one and leading
// or trailing separators are ignored, so "1;Alice;;A12;138" holds four fields
// and is rejected. The operation field never fails the record: it is parsed
// leniently by Atoi and defaults to 0.
//
// Returns ErrMalformedRecord (wrapped) when the line does not hold exactly
// RecordFieldCount non-empty fields.
func DecodeRecord(line string) (PackageRecord, error) {
	line = strings.TrimRight(line, "\r\n\x00")

	fields := splitFields(line)
	if len(fields) != RecordFieldCount {
		return PackageRecord{}, fmt.Errorf("%w: expected %d fields, got %d",
			ErrMalformedRecord, RecordFieldCount, len(fields))
	}

	return PackageRecord{
		Operation:     Atoi(fields[0]),
		Name:          Truncate(fields[1], MaxFieldLen),
		ExpressNumber: Truncate(fields[2], MaxFieldLen),
		LocationCode:  Truncate(fields[3], MaxFieldLen),
		PhoneNumber:   Truncate(fields[4], MaxFieldLen),
	}, nil
}

// splitFields splits on RecordSeparator, dropping empty fields.
func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == RecordSeparator
	})
}

// EncodeRecord renders a record as compact JSON with a stable key order.
func EncodeRecord(rec PackageRecord) ([]byte, error) {
	return marshalCompact(rec)
}

// Truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Atoi leniently converts the leading integer of s: optional leading
// whitespace, an optional sign, then decimal digits. Parsing stops
// at the first non-digit; no digits yields 0. Values outside the int32 range
// saturate.
func Atoi(s string) int {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}

	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	var n int64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int64(s[i]-'0')
		if n > math.MaxInt32+1 {
			n = math.MaxInt32 + 1
		}
	}

	if neg {
		n = -n
	}
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int(n)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// marshalCompact encodes v without HTML escaping and without the trailing
// newline json.Encoder appends.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
