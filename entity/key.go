package entity

import (
	"strings"
)

// Key is the primary key projection of an entity
type Key struct {
	def    *Definition
	values []interface{}
}

// Definition returns the entity type of the key, nil for the zero key
func (k Key) Definition() *Definition {
	return k.def
}

// Type returns the entity type name
func (k Key) Type() string {
	if k.def == nil {
		return ""
	}

	return k.def.Name
}

// Values returns the key values in primary key order
func (k Key) Values() []interface{} {
	return append([]interface{}(nil), k.values...)
}

// Value returns the value of one primary key property
func (k Key) Value(id string) interface{} {
	for i, p := range k.def.primaryKey {
		if p.ID == id {
			return k.values[i]
		}
	}

	return nil
}

// IsNull reports whether the key is the zero key or any of its values is null
func (k Key) IsNull() bool {
	if k.def == nil {
		return true
	}
	for _, v := range k.values {
		if v == nil {
			return true
		}
	}

	return false
}

// String returns the canonical identity of the key; equal keys have equal strings
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteString(k.Type())
	sb.WriteByte('(')
	for i, v := range k.values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(canonical(v))
	}
	sb.WriteByte(')')

	return sb.String()
}

// Equal reports whether both keys have the same entity type and values
func (k Key) Equal(o Key) bool {
	return k.String() == o.String()
}

// Stub returns an entity holding only the key values
func (k Key) Stub() *Entity {
	var e = k.def.New()
	for i, p := range k.def.primaryKey {
		e.values[p.ID] = k.values[i]
	}

	return e
}
