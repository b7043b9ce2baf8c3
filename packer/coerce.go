package packer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/acronis/perfkit/entitydb/entity"
)

// coercer converts a raw driver value of a column into the normalized value of p
type coercer func(p *entity.Property, raw interface{}) (interface{}, error)

// coercers is resolved once per type, rows are packed by table lookup
var coercers = map[entity.Type]coercer{
	entity.Integer:   toInteger,
	entity.Double:    toDouble,
	entity.String:    toString,
	entity.Char:      toChar,
	entity.Date:      toTime,
	entity.Timestamp: toTime,
	entity.Boolean:   toBoolean,
	entity.Blob:      toBlob,
}

// Coerce converts a raw driver value into the normalized value of p; SQL NULL is nil
func Coerce(p *entity.Property, raw interface{}) (interface{}, error) {
	var c, ok = coercers[p.Type]
	if !ok {
		return nil, fmt.Errorf("no coercion for type %s", p.Type)
	}

	if raw == nil && !(p.Type == entity.Boolean && p.Codec != nil) {
		return nil, nil
	}

	var v, err = c(p, raw)
	if err != nil || v == nil {
		return v, err
	}

	return entity.Normalize(p.Type, v)
}

func text(raw interface{}) (string, bool) {
	switch s := raw.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}

	return "", false
}

func toInteger(_ *entity.Property, raw interface{}) (interface{}, error) {
	switch n := raw.(type) {
	case int64, int32, int, uint64, uint32:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return nil, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	}

	if s, ok := text(raw); ok {
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}

	return nil, fmt.Errorf("cannot read %T as integer", raw)
}

func toDouble(_ *entity.Property, raw interface{}) (interface{}, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}

	if s, ok := text(raw); ok {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}

	return nil, fmt.Errorf("cannot read %T as double", raw)
}

func toString(_ *entity.Property, raw interface{}) (interface{}, error) {
	if s, ok := text(raw); ok {
		return s, nil
	}

	return nil, fmt.Errorf("cannot read %T as string", raw)
}

// toChar reads the first character of a string column, an empty string is null
func toChar(_ *entity.Property, raw interface{}) (interface{}, error) {
	var s, ok = text(raw)
	if !ok {
		return nil, fmt.Errorf("cannot read %T as char", raw)
	}
	if s == "" {
		return nil, nil
	}

	var r, _ = utf8.DecodeRuneInString(s)

	return r, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func toTime(_ *entity.Property, raw interface{}) (interface{}, error) {
	if t, ok := raw.(time.Time); ok {
		return t, nil
	}

	if s, ok := text(raw); ok {
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse time %q", s)
	}

	return nil, fmt.Errorf("cannot read %T as time", raw)
}

// toBoolean decodes through the property codec when one is set
func toBoolean(p *entity.Property, raw interface{}) (interface{}, error) {
	if p.Codec != nil {
		return p.Codec.Decode(raw)
	}

	switch b := raw.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	}

	if s, ok := text(raw); ok {
		return strconv.ParseBool(strings.TrimSpace(s))
	}

	return nil, fmt.Errorf("cannot read %T as boolean", raw)
}

// toBlob copies the bytes, drivers may reuse their buffers on the next row
func toBlob(_ *entity.Property, raw interface{}) (interface{}, error) {
	switch b := raw.(type) {
	case []byte:
		return append([]byte{}, b...), nil
	case string:
		return []byte(b), nil
	}

	return nil, fmt.Errorf("cannot read %T as blob", raw)
}
