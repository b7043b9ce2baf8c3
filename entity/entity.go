package entity

import (
	"fmt"
	"sort"
	"strings"
)

// Entity is one row of an entity type: the current value of each property and,
// for every property changed since load or the last save, the value it had then.
// A property absent from the values is unset; a present nil value is null.
type Entity struct {
	def       *Definition
	values    map[string]interface{}
	originals map[string]interface{}
}

// Definition returns the entity type
func (e *Entity) Definition() *Definition {
	return e.def
}

// Type returns the entity type name
func (e *Entity) Type() string {
	return e.def.Name
}

// Contains reports whether the property is set, possibly to null
func (e *Entity) Contains(id string) bool {
	var _, ok = e.values[id]
	return ok
}

// Get returns the value of a property, nil when it is null or unset
func (e *Entity) Get(id string) interface{} {
	var p, ok = e.def.byID[id]
	if !ok {
		return nil
	}

	switch p.Kind {
	case DerivedKind:
		var sources = make(map[string]interface{}, len(p.Sources))
		for _, src := range p.Sources {
			sources[src] = e.Get(src)
		}
		return p.Derive(sources)
	case DenormalizedKind:
		if ref := e.Referenced(p.Via); ref != nil {
			return ref.Get(p.Target)
		}
		return nil
	default:
		return e.values[id]
	}
}

// IsNull reports whether the property value is null or unset
func (e *Entity) IsNull(id string) bool {
	return e.Get(id) == nil
}

// Set assigns a value and records the previous value as original unless it was unset.
// Setting a foreign key also sets its reference properties.
func (e *Entity) Set(id string, v interface{}) error {
	var p, err = e.def.Property(id)
	if err != nil {
		return err
	}

	switch p.Kind {
	case DerivedKind, DenormalizedKind:
		return fmt.Errorf("%s property '%s' cannot be set", p.Kind, p)
	case ForeignKeyKind:
		return e.setReference(p, v)
	}

	var normalized interface{}
	if normalized, err = Normalize(p.Type, v); err != nil {
		return fmt.Errorf("property '%s': %w", p, err)
	}

	e.put(p.ID, normalized)
	e.dropStaleReferences(p)

	return nil
}

// MustSet is Set for values known to be valid
func (e *Entity) MustSet(id string, v interface{}) *Entity {
	if err := e.Set(id, v); err != nil {
		panic(err)
	}

	return e
}

func (e *Entity) setReference(fk *Property, v interface{}) error {
	var refDef = e.def.ReferencedDefinition(fk)

	var ref *Entity
	switch r := v.(type) {
	case nil:
	case *Entity:
		if r != nil && r.def != refDef {
			return fmt.Errorf("foreign key '%s' references '%s', got '%s'", fk, fk.References, r.Type())
		}
		ref = r
	default:
		return fmt.Errorf("foreign key '%s' value must be an entity, got %T", fk, v)
	}

	if ref == nil {
		e.values[fk.ID] = nil
		for _, id := range fk.ReferenceProperties {
			e.put(id, nil)
		}
		return nil
	}

	var key = ref.Key()
	for i, id := range fk.ReferenceProperties {
		e.put(id, key.values[i])
	}
	e.values[fk.ID] = ref

	return nil
}

// put keeps the originals consistent: a property is in originals iff its value
// differs from the one it had at load or last save
func (e *Entity) put(id string, v interface{}) {
	var prev, had = e.values[id]
	e.values[id] = v

	if orig, modified := e.originals[id]; modified {
		if Equal(orig, v) {
			delete(e.originals, id)
		}
		return
	}

	if had && !Equal(prev, v) {
		e.originals[id] = prev
	}
}

// dropStaleReferences unsets cached referenced entities whose key no longer
// matches the reference properties after p changed
func (e *Entity) dropStaleReferences(p *Property) {
	for _, fk := range e.def.foreignKeys {
		var ref, ok = e.values[fk.ID].(*Entity)
		if !ok || ref == nil {
			continue
		}
		for _, id := range fk.ReferenceProperties {
			if id != p.ID {
				continue
			}
			if key, ok := e.ReferencedKey(fk.ID); !ok || !key.Equal(ref.Key()) {
				delete(e.values, fk.ID)
			}
			break
		}
	}
}

// Load assigns a value read from the database without marking it modified
func (e *Entity) Load(id string, v interface{}) error {
	var p, err = e.def.Property(id)
	if err != nil {
		return err
	}

	if p.Kind == ForeignKeyKind {
		var ref, ok = v.(*Entity)
		if v != nil && !ok {
			return fmt.Errorf("foreign key '%s' value must be an entity, got %T", p, v)
		}
		if ref == nil {
			e.values[id] = nil
		} else {
			e.values[id] = ref
		}
		return nil
	}

	var normalized interface{}
	if normalized, err = Normalize(p.Type, v); err != nil {
		return fmt.Errorf("property '%s': %w", p, err)
	}
	e.values[id] = normalized
	delete(e.originals, id)

	return nil
}

// Unset removes a property value, e.g. a lazy blob after it was written
func (e *Entity) Unset(id string) {
	delete(e.values, id)
	delete(e.originals, id)
}

// Referenced returns the entity a foreign key points to, nil when null or not fetched
func (e *Entity) Referenced(fkID string) *Entity {
	var ref, _ = e.values[fkID].(*Entity)
	return ref
}

// ReferencedKey returns the key held by the reference properties of a foreign key;
// ok is false when any of them is null
func (e *Entity) ReferencedKey(fkID string) (Key, bool) {
	var fk, ok = e.def.byID[fkID]
	if !ok || fk.Kind != ForeignKeyKind {
		return Key{}, false
	}

	var refDef = e.def.ReferencedDefinition(fk)
	var values = make([]interface{}, len(fk.ReferenceProperties))
	for i, id := range fk.ReferenceProperties {
		if values[i] = e.values[id]; values[i] == nil {
			return Key{}, false
		}
	}

	return Key{def: refDef, values: values}, true
}

// Original returns the value a property had at load or last save
func (e *Entity) Original(id string) interface{} {
	if orig, ok := e.originals[id]; ok {
		return orig
	}

	return e.values[id]
}

// IsModified reports whether any property was changed since load or last save
func (e *Entity) IsModified() bool {
	return len(e.originals) > 0
}

// IsPropertyModified reports whether one property was changed since load or last save
func (e *Entity) IsPropertyModified(id string) bool {
	var _, ok = e.originals[id]
	return ok
}

// Modified returns the modified properties in definition order
func (e *Entity) Modified() []*Property {
	var props []*Property
	for _, p := range e.def.Properties {
		if _, ok := e.originals[p.ID]; ok {
			props = append(props, p)
		}
	}

	return props
}

// Save makes the current values the originals, e.g. after a commit
func (e *Entity) Save() {
	e.originals = make(map[string]interface{})
}

// Revert restores the original value of one property
func (e *Entity) Revert(id string) {
	if orig, ok := e.originals[id]; ok {
		e.values[id] = orig
		delete(e.originals, id)
	}
}

// RevertAll restores all original values
func (e *Entity) RevertAll() {
	for id, orig := range e.originals {
		e.values[id] = orig
	}
	e.originals = make(map[string]interface{})
}

// Key returns the primary key built from current values
func (e *Entity) Key() Key {
	var values = make([]interface{}, len(e.def.primaryKey))
	for i, p := range e.def.primaryKey {
		values[i] = e.values[p.ID]
	}

	return Key{def: e.def, values: values}
}

// OriginalKey returns the primary key built from original values
func (e *Entity) OriginalKey() Key {
	var values = make([]interface{}, len(e.def.primaryKey))
	for i, p := range e.def.primaryKey {
		values[i] = e.Original(p.ID)
	}

	return Key{def: e.def, values: values}
}

// Copy returns a snapshot with its own value maps; referenced entities are shared
func (e *Entity) Copy() *Entity {
	var c = &Entity{
		def:       e.def,
		values:    make(map[string]interface{}, len(e.values)),
		originals: make(map[string]interface{}, len(e.originals)),
	}
	for id, v := range e.values {
		c.values[id] = copyValue(v)
	}
	for id, v := range e.originals {
		c.originals[id] = copyValue(v)
	}

	return c
}

// Values returns a copy of the set values keyed by property id
func (e *Entity) Values() map[string]interface{} {
	var values = make(map[string]interface{}, len(e.values))
	for id, v := range e.values {
		values[id] = copyValue(v)
	}

	return values
}

func (e *Entity) String() string {
	var ids = make([]string, 0, len(e.values))
	for id := range e.values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(e.def.Name)
	sb.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(id)
		sb.WriteString(": ")
		if ref, ok := e.values[id].(*Entity); ok && ref != nil {
			sb.WriteString(ref.Key().String())
		} else {
			sb.WriteString(canonical(e.values[id]))
		}
	}
	sb.WriteByte('}')

	return sb.String()
}
