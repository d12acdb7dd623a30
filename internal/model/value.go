package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ValueKind distinguishes the ways a raw cell can carry (or not carry) data.
type ValueKind uint8

const (
	// KindAbsent means no value was supplied at all: the column does not
	// exist in the source table or the record has no such key.
	KindAbsent ValueKind = iota
	// KindEmpty means the cell exists but is blank or NaN-equivalent.
	KindEmpty
	// KindText is a non-empty string that does not parse as a number.
	KindText
	// KindNumber is a numeric cell. The original text is retained.
	KindNumber
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return "absent"
	}
}

// Value is a raw indicator cell with explicit missingness. Every source
// encoding of "no data" (missing column, blank cell, NaN) is resolved into a
// Kind at the ingestion boundary so scoring policies only reason about
// semantics.
type Value struct {
	kind ValueKind
	text string
	num  float64
}

// Absent returns the structural-absence value.
func Absent() Value { return Value{kind: KindAbsent} }

// Empty returns a present-but-blank value.
func Empty() Value { return Value{kind: KindEmpty} }

// Text returns a text value. Blank strings become Empty.
func Text(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Empty()
	}
	return Value{kind: KindText, text: s}
}

// Number returns a numeric value. NaN becomes Empty.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Empty()
	}
	return Value{kind: KindNumber, num: f, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// nanTokens are spreadsheet renderings of a missing numeric cell.
var nanTokens = map[string]bool{
	"nan":  true,
	"null": true,
	"#n/a": true,
}

// ParseCell converts a raw cell string from a CSV or XLSX export into a Value.
func ParseCell(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" || nanTokens[strings.ToLower(s)] {
		return Empty()
	}
	if f, ok := parseNumber(s); ok {
		return Value{kind: KindNumber, num: f, text: s}
	}
	return Value{kind: KindText, text: s}
}

// parseNumber accepts plain floats, a decimal comma, and a trailing percent
// sign ("85", "85,5", "85 %").
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Kind returns the value kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsAbsent reports structural absence.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsMissing reports absence or an empty cell.
func (v Value) IsMissing() bool { return v.kind == KindAbsent || v.kind == KindEmpty }

// String returns the raw text of the value ("" when missing).
func (v Value) String() string { return v.text }

// IsText reports whether the value came in as non-numeric text.
func (v Value) IsText() bool { return v.kind == KindText }

// Float returns the numeric value. Text values are parsed leniently.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		return parseNumber(v.text)
	default:
		return 0, false
	}
}

// MarshalJSON renders missing values as null and numbers as JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, numbers and strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = Empty()
	case float64:
		*v = Number(t)
	case string:
		*v = ParseCell(t)
	case bool:
		*v = Text(strconv.FormatBool(t))
	default:
		*v = Text(string(data))
	}
	return nil
}
