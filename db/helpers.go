package db

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// tryCastToString tries to cast given interface to string
func tryCastToString(i interface{}) (string, bool) {
	chars, ok := i.([]uint8)
	if !ok {
		return "", false
	}
	var sb strings.Builder
	for _, c := range chars {
		if c < 32 || c > 126 {
			return "", false
		}
		sb.WriteByte(c)
	}

	return "'" + sb.String() + "'", true
}

// DumpRecursive returns string representation of given interface
func DumpRecursive(i interface{}, indent string) string {
	if t, ok := i.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}

	val := reflect.ValueOf(i)

	if !val.IsValid() {
		return "nil"
	}

	if !val.CanInterface() {
		return "?"
	}

	typ := val.Type()

	switch val.Kind() {
	case reflect.String:
		return fmt.Sprintf("%q", val.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(val.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(val.Uint(), 10)
	case reflect.Bool:
		return strconv.FormatBool(val.Bool())
	case reflect.Slice, reflect.Array:
		if typ.Elem().Kind() == reflect.Uint8 {
			if s, ok := tryCastToString(i); ok {
				return s
			}
			return fmt.Sprintf("<%d bytes>", val.Len())
		}
		var result []string
		for i := 0; i < val.Len(); i++ {
			result = append(result, DumpRecursive(val.Index(i).Interface(), indent+"  "))
		}

		return "[" + strings.Join(result, ", ") + "]"
	case reflect.Ptr, reflect.Interface:
		if val.IsNil() {
			return "nil"
		}
		return DumpRecursive(val.Elem().Interface(), indent)
	default:
		return fmt.Sprintf("%v", val.Interface())
	}
}

// ParseScheme splits a connection string into its scheme and the rest
func ParseScheme(s string) (scheme string, uri string, err error) {
	const schemeSeparator = "://"
	parts := strings.SplitN(s, schemeSeparator, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("'%s' is invalid scheme separator", schemeSeparator)
	}

	return parts[0], parts[1], nil
}
