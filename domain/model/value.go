package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant of Value is populated
type Kind int

const (
	// KindNull is a missing value
	KindNull Kind = iota
	// KindInteger is a 64-bit integer
	KindInteger
	// KindFloat is a 64-bit float
	KindFloat
	// KindText is a string
	KindText
	// KindBoolean is true or false
	KindBoolean
	// KindDateTime is a point in time
	KindDateTime
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "datetime"
	default:
		return "null"
	}
}

// Layouts used when handing datetime values to SQLite.
const (
	isoDateTime = "2006-01-02 15:04:05.999999999"
	isoDate     = "2006-01-02"
	isoTime     = "15:04:05.999999999"
)

// nullTokens are the cell contents read as missing, in addition to blank cells.
var nullTokens = map[string]bool{
	"NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true, "-NaN": true, "-nan": true,
	"NULL": true, "null": true, "None": true, "#N/A": true, "<NA>": true,
}

// Value is a single table cell. The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	t    time.Time
	// raw is the text the value was read from, or its canonical rendering
	raw string
	// layout is the SQLite rendering layout for datetime values
	layout string
}

// Null returns the missing value
func Null() Value {
	return Value{}
}

// IntegerValue returns an integer value
func IntegerValue(i int64) Value {
	return Value{kind: KindInteger, i: i, raw: strconv.FormatInt(i, 10)}
}

// FloatValue returns a float value
func FloatValue(f float64) Value {
	return Value{kind: KindFloat, f: f, raw: strconv.FormatFloat(f, 'g', -1, 64)}
}

// TextValue returns a text value
func TextValue(s string) Value {
	return Value{kind: KindText, raw: s}
}

// BooleanValue returns a boolean value
func BooleanValue(b bool) Value {
	return Value{kind: KindBoolean, b: b, raw: strconv.FormatBool(b)}
}

// DateTimeValue returns a datetime value
func DateTimeValue(t time.Time) Value {
	return Value{kind: KindDateTime, t: t, raw: t.Format(isoDateTime), layout: isoDateTime}
}

// Kind returns the populated variant
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is missing
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns the integer payload
func (v Value) Int() int64 { return v.i }

// Float returns the float payload
func (v Value) Float() float64 { return v.f }

// Bool returns the boolean payload
func (v Value) Bool() bool { return v.b }

// Time returns the datetime payload
func (v Value) Time() time.Time { return v.t }

// String returns the cell text. Values read from a file keep their original text.
func (v Value) String() string {
	if v.kind == KindNull {
		return ""
	}
	return v.raw
}

// SQLValue returns the value as bound into SQLite
func (v Value) SQLValue() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.raw
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindDateTime:
		return v.t.Format(v.layout)
	default:
		return nil
	}
}

// MarshalJSON renders the value as its natural JSON type
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInteger:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return json.Marshal(v.String())
		}
		return []byte(strconv.FormatFloat(v.f, 'g', -1, 64)), nil
	case KindBoolean:
		return []byte(strconv.FormatBool(v.b)), nil
	case KindText, KindDateTime:
		return json.Marshal(v.String())
	default:
		return []byte("null"), nil
	}
}

// Equal compares kind and payload. Datetimes compare by instant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindText:
		return v.raw == o.raw
	case KindBoolean:
		return v.b == o.b
	case KindDateTime:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// key identifies the value for distinct counting
func (v Value) key() string {
	var s string
	switch v.kind {
	case KindInteger:
		s = strconv.FormatInt(v.i, 10)
	case KindFloat:
		s = strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		s = strconv.FormatBool(v.b)
	case KindDateTime:
		s = v.t.UTC().Format(time.RFC3339Nano)
	default:
		s = v.raw
	}
	return v.kind.String() + ":" + s
}

// IsNullToken reports whether a raw cell is read as missing
func IsNullToken(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return trimmed == "" || nullTokens[trimmed]
}

// ParseValue converts a raw cell to a Value of the given column type.
// Cells that do not parse as the column type fall back to text.
func ParseValue(raw string, ct ColumnType) Value {
	if IsNullToken(raw) {
		return Null()
	}
	trimmed := strings.TrimSpace(raw)

	switch ct {
	case ColumnTypeInteger:
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return Value{kind: KindInteger, i: i, raw: raw}
		}
	case ColumnTypeFloat:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Value{kind: KindFloat, f: f, raw: raw}
		}
	case ColumnTypeBoolean:
		if b, ok := parseBool(trimmed); ok {
			return Value{kind: KindBoolean, b: b, raw: raw}
		}
	case ColumnTypeDatetime:
		if t, layout, ok := parseDatetime(trimmed); ok {
			return Value{kind: KindDateTime, t: t, raw: raw, layout: layout}
		}
	}
	return Value{kind: KindText, raw: raw}
}

// parseBool accepts true/false in any letter case
func parseBool(s string) (bool, bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	default:
		return false, false
	}
}
