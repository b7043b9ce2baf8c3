package entity

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Type is the scalar type of a property value
type Type int

// Supported scalar types. Values are normalized to int64, float64, string,
// rune, time.Time, time.Time, bool and []byte respectively.
const (
	Integer Type = iota + 1
	Double
	String
	Char
	Date
	Timestamp
	Boolean
	Blob
)

var typeNames = map[Type]string{
	Integer:   "integer",
	Double:    "double",
	String:    "string",
	Char:      "char",
	Date:      "date",
	Timestamp: "timestamp",
	Boolean:   "boolean",
	Blob:      "blob",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return "type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType resolves a type name as used in catalog files
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}

	return 0, fmt.Errorf("unknown property type '%s'", name)
}

// Normalize converts v to the canonical Go representation of t; nil stays nil
func Normalize(t Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case Integer:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint:
			return int64(n), nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case uint64:
			if n > math.MaxInt64 {
				return nil, fmt.Errorf("integer value %d overflows int64", n)
			}
			return int64(n), nil
		}
	case Double:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int32:
			return float64(n), nil
		}
	case String:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case Char:
		switch c := v.(type) {
		case rune:
			return c, nil
		case byte:
			return rune(c), nil
		case string:
			if utf8.RuneCountInString(c) == 1 {
				r, _ := utf8.DecodeRuneInString(c)
				return r, nil
			}
			return nil, fmt.Errorf("char value must be exactly one character, got %q", c)
		}
	case Date:
		if d, ok := v.(time.Time); ok {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	case Timestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC(), nil
		}
	case Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Blob:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}

	return nil, fmt.Errorf("cannot use %T as %s value", v, t)
}

// Equal compares two normalized values
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case *Entity:
		bv, ok := b.(*Entity)
		return ok && av.Key().Equal(bv.Key())
	default:
		return a == b
	}
}

// canonical renders a normalized value so that equal values render equally
func canonical(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	case rune:
		return strconv.QuoteRune(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return fmt.Sprintf("x'%x'", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func copyValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok && b != nil {
		return append([]byte(nil), b...)
	}

	return v
}
