package value

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syssam/akita/dialect"
)

// Timestamp layouts accepted when an engine hands timestamps back as text.
// SQLite stores them in RFC 3339; the space-separated layout covers engines
// configured without the T separator.
const (
	textTimeLayout    = time.RFC3339Nano
	altTextTimeLayout = "2006-01-02 15:04:05.999999999-07:00"
)

// ToNative encodes a Value into the native representation the given dialect's
// driver expects as a positional bind. The encoding is negotiated per
// (kind, dialect) pair, never per call, so a given pair always encodes
// identically:
//
//   - Decimal renders as its exact string form on every dialect; none of the
//     supported drivers take an arbitrary-precision type on the wire.
//   - UUID renders as raw 16 bytes on MySQL (BINARY(16) columns) and as the
//     canonical text form on SQLite and Postgres.
//   - Timestamp stays a time.Time on MySQL and Postgres and renders as
//     RFC 3339 text on SQLite, which has no native datetime type.
//
// Conversion is total over the declared variant set: a variant the dialect
// cannot hold losslessly (e.g. Uint64 above MaxInt64 on engines without an
// unsigned integer type) fails with a ConversionError instead of truncating.
func ToNative(v Value, d string) (any, error) {
	if !dialect.Valid(d) {
		return nil, convErr(v.kind, d, nil, "unknown dialect")
	}
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindInt64:
		return v.i, nil
	case KindUint64:
		if d == dialect.MySQL {
			return v.u, nil
		}
		if v.u > math.MaxInt64 {
			return nil, convErr(v.kind, d, v.u, "value %d overflows the engine's signed integer range", v.u)
		}
		return int64(v.u), nil
	case KindFloat64:
		return v.f, nil
	case KindDecimal:
		return v.d.String(), nil
	case KindText:
		return v.s, nil
	case KindBytes:
		return v.by, nil
	case KindTimestamp:
		if d == dialect.SQLite {
			return v.t.Format(textTimeLayout), nil
		}
		return v.t, nil
	case KindUUID:
		if d == dialect.MySQL {
			b := v.id
			return b[:], nil
		}
		return v.id.String(), nil
	}
	return nil, convErr(v.kind, d, nil, "unknown variant")
}

// FromNative decodes a driver-native value into the Value variant declared by
// the column. A nil native decodes to Null for every kind. Natives outside the
// accepted set for the kind fail with a ConversionError; nothing is silently
// coerced.
func FromNative(k Kind, native any, d string) (Value, error) {
	if !dialect.Valid(d) {
		return Value{}, convErr(k, d, native, "unknown dialect")
	}
	if native == nil {
		return Null(), nil
	}
	switch k {
	case KindNull:
		return Value{}, convErr(k, d, native, "non-nil native %T for a null column", native)
	case KindBool:
		switch x := native.(type) {
		case bool:
			return Bool(x), nil
		case int64:
			// SQLite has no boolean storage class.
			return Bool(x != 0), nil
		}
	case KindInt64:
		if x, ok := native.(int64); ok {
			return Int64(x), nil
		}
	case KindUint64:
		switch x := native.(type) {
		case uint64:
			return Uint64(x), nil
		case int64:
			if x < 0 {
				return Value{}, convErr(k, d, native, "negative value %d for an unsigned column", x)
			}
			return Uint64(uint64(x)), nil
		}
	case KindFloat64:
		if x, ok := native.(float64); ok {
			return Float64(x), nil
		}
	case KindDecimal:
		switch x := native.(type) {
		case string:
			return parseDecimal(x, k, d)
		case []byte:
			return parseDecimal(string(x), k, d)
		}
	case KindText:
		switch x := native.(type) {
		case string:
			return Text(x), nil
		case []byte:
			return Text(string(x)), nil
		}
	case KindBytes:
		switch x := native.(type) {
		case []byte:
			b := make([]byte, len(x))
			copy(b, x)
			return Bytes(b), nil
		case string:
			return Bytes([]byte(x)), nil
		}
	case KindTimestamp:
		switch x := native.(type) {
		case time.Time:
			return Timestamp(x), nil
		case string:
			return parseTimestamp(x, k, d)
		case []byte:
			return parseTimestamp(string(x), k, d)
		}
	case KindUUID:
		switch x := native.(type) {
		case string:
			id, err := uuid.Parse(x)
			if err != nil {
				return Value{}, convErr(k, d, native, "malformed uuid text: %v", err)
			}
			return UUID(id), nil
		case []byte:
			if len(x) == 16 {
				id, err := uuid.FromBytes(x)
				if err != nil {
					return Value{}, convErr(k, d, native, "malformed uuid bytes: %v", err)
				}
				return UUID(id), nil
			}
			id, err := uuid.ParseBytes(x)
			if err != nil {
				return Value{}, convErr(k, d, native, "malformed uuid text: %v", err)
			}
			return UUID(id), nil
		}
	default:
		return Value{}, convErr(k, d, native, "unknown variant")
	}
	return Value{}, convErr(k, d, native, "unexpected native type %T", native)
}

func parseDecimal(s string, k Kind, d string) (Value, error) {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, convErr(k, d, s, "malformed decimal text: %v", err)
	}
	return Decimal(dec), nil
}

func parseTimestamp(s string, k Kind, d string) (Value, error) {
	for _, layout := range []string{textTimeLayout, altTextTimeLayout, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp(t), nil
		}
	}
	return Value{}, convErr(k, d, s, "unrecognized timestamp text %q", s)
}

// Detect decodes a driver-native value without a declared column kind. It is
// used by the raw query escape hatch, where no mapping descriptor is in play.
func Detect(native any) (Value, error) {
	switch x := native.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case int64:
		return Int64(x), nil
	case uint64:
		return Uint64(x), nil
	case float64:
		return Float64(x), nil
	case string:
		return Text(x), nil
	case []byte:
		b := make([]byte, len(x))
		copy(b, x)
		return Bytes(b), nil
	case time.Time:
		return Timestamp(x), nil
	}
	return Value{}, convErr(KindNull, "", native, "unexpected native type %T", native)
}
