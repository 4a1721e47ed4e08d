// Package value defines rowgate's portable value model: a closed set of
// column types, a tagged value for each result cell, and the ordered Record
// that carries one result row to the caller.
package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Type is the portable type of a column, independent of any database's
// native type system.
type Type int

const (
	Unknown Type = iota
	Text
	Integer
	Real
	Boolean
	Timestamp
	Binary
)

func (t Type) String() string {
	switch t {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Real:
		return "real"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON and YAML output.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Value is a tagged portable value. The zero Value is Null.
type Value struct {
	typ  Type
	null bool
	set  bool

	s   string
	i   int64
	f   float64
	b   bool
	t   time.Time
	bin []byte
}

// Null returns the distinguished null value.
func Null() Value {
	return Value{null: true, set: true}
}

// TextValue returns a Text value.
func TextValue(s string) Value {
	return Value{typ: Text, set: true, s: s}
}

// IntegerValue returns an Integer value.
func IntegerValue(i int64) Value {
	return Value{typ: Integer, set: true, i: i}
}

// RealValue returns a Real value.
func RealValue(f float64) Value {
	return Value{typ: Real, set: true, f: f}
}

// BooleanValue returns a Boolean value.
func BooleanValue(b bool) Value {
	return Value{typ: Boolean, set: true, b: b}
}

// TimestampValue returns a Timestamp value.
func TimestampValue(t time.Time) Value {
	return Value{typ: Timestamp, set: true, t: t}
}

// BinaryValue returns a Binary value.
func BinaryValue(b []byte) Value {
	return Value{typ: Binary, set: true, bin: b}
}

// UnknownValue carries a cell of an unclassified type as opaque text.
func UnknownValue(s string) Value {
	return Value{typ: Unknown, set: true, s: s}
}

// Type returns the portable type tag. Null values report Unknown.
func (v Value) Type() Type {
	if v.IsNull() {
		return Unknown
	}
	return v.typ
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool {
	return v.null || !v.set
}

// Text returns the payload of a Text or Unknown value.
func (v Value) Text() (string, bool) {
	return v.s, !v.IsNull() && (v.typ == Text || v.typ == Unknown)
}

func (v Value) Integer() (int64, bool) {
	return v.i, !v.IsNull() && v.typ == Integer
}

func (v Value) Real() (float64, bool) {
	return v.f, !v.IsNull() && v.typ == Real
}

func (v Value) Boolean() (bool, bool) {
	return v.b, !v.IsNull() && v.typ == Boolean
}

func (v Value) Timestamp() (time.Time, bool) {
	return v.t, !v.IsNull() && v.typ == Timestamp
}

func (v Value) Binary() ([]byte, bool) {
	return v.bin, !v.IsNull() && v.typ == Binary
}

// Any returns the Go representation of v: nil, string, int64, float64,
// bool, time.Time or []byte.
func (v Value) Any() any {
	if v.IsNull() {
		return nil
	}
	switch v.typ {
	case Integer:
		return v.i
	case Real:
		return v.f
	case Boolean:
		return v.b
	case Timestamp:
		return v.t
	case Binary:
		return v.bin
	default:
		return v.s
	}
}

// Equal reports whether v and o carry the same type and payload.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() == o.IsNull()
	}
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Integer:
		return v.i == o.i
	case Real:
		return v.f == o.f
	case Boolean:
		return v.b == o.b
	case Timestamp:
		return v.t.Equal(o.t)
	case Binary:
		return string(v.bin) == string(o.bin)
	default:
		return v.s == o.s
	}
}

func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.typ {
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Real:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Boolean:
		return strconv.FormatBool(v.b)
	case Timestamp:
		return v.t.Format(time.RFC3339Nano)
	case Binary:
		return base64.StdEncoding.EncodeToString(v.bin)
	default:
		return v.s
	}
}

// MarshalJSON encodes null as null, timestamps as RFC 3339 strings and
// binary payloads as base64 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNull() {
		return []byte("null"), nil
	}
	switch v.typ {
	case Integer:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case Real:
		return json.Marshal(v.f)
	case Boolean:
		return []byte(strconv.FormatBool(v.b)), nil
	case Timestamp:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case Binary:
		return json.Marshal(v.bin)
	default:
		return json.Marshal(v.s)
	}
}

// GoString helps test failure output.
func (v Value) GoString() string {
	if v.IsNull() {
		return "value.Null()"
	}
	return fmt.Sprintf("value.%s(%s)", v.typ, v.String())
}
