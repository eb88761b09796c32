// Package value defines the unified scalar representation used across the
// akita core. Every driver-native type maps to exactly one Value variant and
// back; conversion is total over the declared variant set and fails fast on
// anything else instead of truncating.
package value

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the variant stored in a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUint64
	KindFloat64
	KindDecimal
	KindText
	KindBytes
	KindTimestamp
	KindUUID
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBool:      "bool",
	KindInt64:     "int64",
	KindUint64:    "uint64",
	KindFloat64:   "float64",
	KindDecimal:   "decimal",
	KindText:      "text",
	KindBytes:     "bytes",
	KindTimestamp: "timestamp",
	KindUUID:      "uuid",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is a tagged union over the closed set of scalar variants. The zero
// Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	d    decimal.Decimal
	s    string
	by   []byte
	t    time.Time
	id   uuid.UUID
}

// Null returns the null value. Null is distinct from any empty value and is
// never coerced into an empty string or zero.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int64 returns a signed integer value.
func Int64(i int64) Value { return Value{kind: KindInt64, i: i} }

// Uint64 returns an unsigned integer value.
func Uint64(u uint64) Value { return Value{kind: KindUint64, u: u} }

// Float64 returns a floating point value.
func Float64(f float64) Value { return Value{kind: KindFloat64, f: f} }

// Decimal returns a fixed-point decimal value with arbitrary precision.
func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, d: d} }

// Text returns a string value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Bytes returns a binary blob value. The slice is not copied.
func Bytes(b []byte) Value { return Value{kind: KindBytes, by: b} }

// Timestamp returns a date/time value.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }

// UUID returns a unique identifier value.
func UUID(id uuid.UUID) Value { return Value{kind: KindUUID, id: id} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload. The second result is false when the
// value holds a different variant.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt64 returns the signed integer payload.
func (v Value) AsInt64() (int64, bool) { return v.i, v.kind == KindInt64 }

// AsUint64 returns the unsigned integer payload.
func (v Value) AsUint64() (uint64, bool) { return v.u, v.kind == KindUint64 }

// AsFloat64 returns the floating point payload.
func (v Value) AsFloat64() (float64, bool) { return v.f, v.kind == KindFloat64 }

// AsDecimal returns the decimal payload.
func (v Value) AsDecimal() (decimal.Decimal, bool) { return v.d, v.kind == KindDecimal }

// AsText returns the string payload.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsBytes returns the blob payload.
func (v Value) AsBytes() ([]byte, bool) { return v.by, v.kind == KindBytes }

// AsTimestamp returns the date/time payload.
func (v Value) AsTimestamp() (time.Time, bool) { return v.t, v.kind == KindTimestamp }

// AsUUID returns the identifier payload.
func (v Value) AsUUID() (uuid.UUID, bool) { return v.id, v.kind == KindUUID }

// Equal reports whether two values hold the same variant and payload.
// Decimals compare numerically, timestamps by instant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt64:
		return v.i == o.i
	case KindUint64:
		return v.u == o.u
	case KindFloat64:
		return v.f == o.f
	case KindDecimal:
		return v.d.Equal(o.d)
	case KindText:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.by, o.by)
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindUUID:
		return v.id == o.id
	}
	return false
}

// String renders the value for diagnostics. It is not a SQL literal.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindUint64:
		return fmt.Sprintf("%d", v.u)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f)
	case KindDecimal:
		return v.d.String()
	case KindText:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.by)
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindUUID:
		return v.id.String()
	}
	return "invalid"
}

// ConversionError reports a failed conversion between a Value and a driver
// native type.
type ConversionError struct {
	Kind    Kind
	Dialect string
	Native  any
	Reason  string
}

// Error returns the error string.
func (e *ConversionError) Error() string {
	return fmt.Sprintf("value: cannot convert %s (dialect %s): %s", e.Kind, e.Dialect, e.Reason)
}

// IsConversion reports whether err is a ConversionError.
func IsConversion(err error) bool {
	var e *ConversionError
	return errors.As(err, &e)
}

func convErr(k Kind, dialect string, native any, format string, args ...any) error {
	return &ConversionError{Kind: k, Dialect: dialect, Native: native, Reason: fmt.Sprintf(format, args...)}
}

// Of converts a plain Go value into a Value. It accepts the primitive types
// an application would hand to the fluent builder, plus Value itself.
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int64(int64(x)), nil
	case int8:
		return Int64(int64(x)), nil
	case int16:
		return Int64(int64(x)), nil
	case int32:
		return Int64(int64(x)), nil
	case int64:
		return Int64(x), nil
	case uint:
		return Uint64(uint64(x)), nil
	case uint8:
		return Uint64(uint64(x)), nil
	case uint16:
		return Uint64(uint64(x)), nil
	case uint32:
		return Uint64(uint64(x)), nil
	case uint64:
		return Uint64(x), nil
	case float32:
		return Float64(float64(x)), nil
	case float64:
		return Float64(x), nil
	case decimal.Decimal:
		return Decimal(x), nil
	case string:
		return Text(x), nil
	case []byte:
		return Bytes(x), nil
	case time.Time:
		return Timestamp(x), nil
	case uuid.UUID:
		return UUID(x), nil
	}
	return Value{}, fmt.Errorf("value: unsupported Go type %T", v)
}

// MustOf is like Of but panics on unsupported types. Intended for tests and
// static literals.
func MustOf(v any) Value {
	val, err := Of(v)
	if err != nil {
		panic(err)
	}
	return val
}
