package db

import (
	"fmt"
	"reflect"
	"strconv"
)

type Row interface {
	Scan(dest ...any) error
}

// Rows is a forward-only cursor over a result set
type Rows interface {
	Next() bool
	Err() error
	Scan(dest ...interface{}) error
	Close() error
}

// EmptyRows is a result set without rows
type EmptyRows struct{}

func (r *EmptyRows) Next() bool                     { return false }
func (r *EmptyRows) Err() error                     { return nil }
func (r *EmptyRows) Scan(dest ...interface{}) error { return nil }
func (r *EmptyRows) Close() error                   { return nil }

// CountRows is a single-row, single-column result set holding a count
type CountRows struct {
	Count int64
	read  bool
}

func (r *CountRows) Next() bool {
	if !r.read {
		r.read = true

		return true
	}

	return false
}
func (r *CountRows) Err() error { return nil }
func (r *CountRows) Scan(dest ...interface{}) error {
	if len(dest) != 1 {
		return fmt.Errorf("internal error: CountRows.Scan() - number of columns in the result set does not match the number of destination fields")
	}

	switch d := dest[0].(type) {
	case *int64:
		*d = r.Count
	case *interface{}:
		*d = r.Count
	default:
		return fmt.Errorf("unsupported type to convert (type=%T)", d)
	}

	return nil
}
func (r *CountRows) Close() error { return nil }

type surrogateRowsRow []interface{}

// SurrogateRows is an in-memory result set
type SurrogateRows struct {
	data      []surrogateRowsRow
	idx       int
	err       error
	closed    bool
	exhausted bool
}

// NewSurrogateRows returns a result set yielding the given rows in order
func NewSurrogateRows(rows ...[]interface{}) *SurrogateRows {
	var r = &SurrogateRows{}
	for _, row := range rows {
		r.data = append(r.data, row)
	}

	return r
}

// WithErr makes Err report err once the rows are exhausted
func (r *SurrogateRows) WithErr(err error) *SurrogateRows {
	r.err = err
	return r
}

// Closed reports whether Close was called
func (r *SurrogateRows) Closed() bool {
	return r.closed
}

func (r *SurrogateRows) Next() bool {
	if r.closed {
		return false
	}
	if r.idx < len(r.data) {
		r.idx++

		return true
	}
	r.exhausted = true

	return false
}

// Err reports the error set by WithErr once Next returned false
func (r *SurrogateRows) Err() error {
	if !r.exhausted {
		return nil
	}
	return r.err
}

// Scan converts the current row into dest and returns an error if a conversion is not implemented
func (r *SurrogateRows) Scan(dest ...interface{}) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("internal error: SurrogateRows.Scan() called without a current row")
	}

	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("internal error: SurrogateRows.Scan() - expected %d destination arguments, got %d", len(row), len(dest))
	}

	for i := range row {
		dv := reflect.ValueOf(dest[i])
		if dv.Kind() != reflect.Ptr {
			return fmt.Errorf("internal error: SurrogateRows.Scan() - non-pointer passed to Scan: %v", dest)
		}
		sv := reflect.ValueOf(row[i])

		if !sv.IsValid() {
			switch dv.Elem().Kind() {
			case reflect.String:
				dv.Elem().SetString("")
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				dv.Elem().SetInt(0)
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				dv.Elem().SetUint(0)
			case reflect.Ptr, reflect.Interface, reflect.Slice:
				dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
			default:
				return fmt.Errorf("unsupported type: %v", dv.Elem().Kind())
			}

			continue
		}

		if sv.Kind() == reflect.Slice && sv.Type().Elem().Kind() == reflect.Uint8 && dv.Elem().Kind() != reflect.Interface &&
			dv.Elem().Kind() != reflect.Slice {
			s := string(sv.Interface().([]uint8))
			switch dv.Elem().Kind() {
			case reflect.String:
				dv.Elem().SetString(s)
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				i64, err := strconv.ParseInt(s, 10, dv.Elem().Type().Bits())
				if err != nil {
					return fmt.Errorf("converting driver.Value type %T (%q) to a %s: %v", sv, s, dv.Kind(), err)
				}
				dv.Elem().SetInt(i64)
			default:
				return fmt.Errorf("unsupported type: %v", dv.Elem().Kind())
			}

			continue
		}

		switch {
		case sv.Type().AssignableTo(dv.Elem().Type()):
			dv.Elem().Set(sv)
		case sv.Type().ConvertibleTo(dv.Elem().Type()) && sv.Kind() != reflect.String && dv.Elem().Kind() != reflect.String:
			dv.Elem().Set(sv.Convert(dv.Elem().Type()))
		default:
			return fmt.Errorf("internal error: SurrogateRows.Scan() - convertion of '%v' to '%v' is not implemented yet", sv.Kind(), dv.Elem().Kind())
		}
	}

	return nil
}

func (r *SurrogateRows) Close() error {
	r.closed = true
	return nil
}
