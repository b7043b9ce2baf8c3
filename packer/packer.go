// Package packer turns result set rows into entities and scalar values.
package packer

import (
	"fmt"

	"github.com/acronis/perfkit/entitydb/db"
	"github.com/acronis/perfkit/entitydb/entity"
)

// Iterator is a lazy, finite and non-restartable sequence of entities read from
// a result set. Foreign key references are never populated.
type Iterator struct {
	def     *entity.Definition
	rows    db.Rows
	maxRows int

	packed  int
	current *entity.Entity
	raw     []interface{}
	dest    []interface{}
	err     error
	closed  bool
}

// Entities packs at most maxRows rows of def, all rows when maxRows is negative.
// Columns are read by select index.
func Entities(def *entity.Definition, rows db.Rows, maxRows int) *Iterator {
	var n = len(def.Selected())
	var it = &Iterator{
		def:     def,
		rows:    rows,
		maxRows: maxRows,
		raw:     make([]interface{}, n),
		dest:    make([]interface{}, n),
	}
	for i := range it.raw {
		it.dest[i] = &it.raw[i]
	}

	return it
}

// Next packs the next row, it returns false when the rows or the bound are
// exhausted or packing failed
func (it *Iterator) Next() bool {
	it.current = nil
	if it.closed {
		return false
	}
	if it.maxRows >= 0 && it.packed >= it.maxRows {
		it.close()
		return false
	}

	if !it.rows.Next() {
		it.err = it.rows.Err()
		it.close()
		return false
	}

	var e, err = it.pack()
	if err != nil {
		it.err = err
		it.close()
		return false
	}

	it.current = e
	it.packed++

	return true
}

// Entity returns the entity packed by the last successful Next
func (it *Iterator) Entity() *entity.Entity {
	return it.current
}

// Err returns the error that ended the iteration
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the result set; it is safe to call more than once
func (it *Iterator) Close() error {
	return it.close()
}

func (it *Iterator) close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	var err = it.rows.Close()
	if it.err == nil && err != nil {
		it.err = err
	}

	return err
}

// All drains the iterator
func (it *Iterator) All() ([]*entity.Entity, error) {
	defer it.Close()

	var result []*entity.Entity
	for it.Next() {
		result = append(result, it.current)
	}

	return result, it.err
}

func (it *Iterator) pack() (*entity.Entity, error) {
	for i := range it.raw {
		it.raw[i] = nil
	}
	if err := it.rows.Scan(it.dest...); err != nil {
		return nil, fmt.Errorf("packer: cannot read row of '%s': %w", it.def.Name, err)
	}

	var e = it.def.New()

	for _, p := range it.def.Properties {
		if p.Kind == entity.TransientKind {
			if err := e.Load(p.ID, nil); err != nil {
				return nil, err
			}
		}
	}

	for i, p := range it.def.Selected() {
		var v, err = Coerce(p, it.raw[i])
		if err != nil {
			return nil, &CoercionError{EntityType: it.def.Name, Property: p.ID, Err: err}
		}
		if err = e.Load(p.ID, v); err != nil {
			return nil, &CoercionError{EntityType: it.def.Name, Property: p.ID, Err: err}
		}
	}

	return e, nil
}

// CoercionError reports a column value that does not fit its property
type CoercionError struct {
	EntityType string
	Property   string
	Err        error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("packer: entity '%s', property '%s': %v", e.EntityType, e.Property, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// Values reads the first and only column of every row as values of p
func Values(p *entity.Property, rows db.Rows) ([]interface{}, error) {
	defer rows.Close()

	var result []interface{}
	for rows.Next() {
		var raw interface{}
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("packer: cannot read value of '%s': %w", p, err)
		}

		var v, err = Coerce(p, raw)
		if err != nil {
			return nil, &CoercionError{EntityType: p.Owner(), Property: p.ID, Err: err}
		}
		result = append(result, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Count reads a single integer, e.g. a row count; null reads as zero
func Count(row db.Row) (int64, error) {
	var raw interface{}
	if err := row.Scan(&raw); err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}

	var v, err = toInteger(nil, raw)
	if err != nil {
		return 0, fmt.Errorf("packer: cannot read count: %w", err)
	}

	var n interface{}
	if n, err = entity.Normalize(entity.Integer, v); err != nil {
		return 0, err
	}

	return n.(int64), nil
}
