package entity

import (
	"fmt"
	"sort"
)

// IDGeneration is the strategy producing primary key values on insert
type IDGeneration int

const (
	// Manual keys are supplied by the caller
	Manual IDGeneration = iota
	// AutoIncrement keys are generated by the database and read back after insert
	AutoIncrement
	// Sequence keys are drawn from a database sequence before insert
	Sequence
	// MaxPlusOne keys are the current maximum plus one
	MaxPlusOne
	// UUID keys are random version 4 uuids stored as strings
	UUID
)

var idGenerationNames = map[IDGeneration]string{
	Manual:        "manual",
	AutoIncrement: "auto-increment",
	Sequence:      "sequence",
	MaxPlusOne:    "max-plus-one",
	UUID:          "uuid",
}

func (g IDGeneration) String() string {
	if name, ok := idGenerationNames[g]; ok {
		return name
	}

	return fmt.Sprintf("id-generation(%d)", int(g))
}

// ParseIDGeneration resolves a strategy name as used in catalog files
func ParseIDGeneration(name string) (IDGeneration, error) {
	if name == "" {
		return Manual, nil
	}
	for g, n := range idGenerationNames {
		if n == name {
			return g, nil
		}
	}

	return 0, fmt.Errorf("unknown id generation strategy '%s'", name)
}

// Definition describes one entity type
type Definition struct {
	Name         string
	Table        string // defaults to Name
	SelectTable  string // table or view selects read from, defaults to Table
	ReadOnly     bool
	IDGeneration IDGeneration
	Sequence     string // sequence name for the Sequence strategy
	OrderBy      []string
	Properties   []*Property

	byID        map[string]*Property
	primaryKey  []*Property
	foreignKeys []*Property
	selected    []*Property
	catalog     *Catalog
}

// Property returns the property with the given id
func (d *Definition) Property(id string) (*Property, error) {
	if p, ok := d.byID[id]; ok {
		return p, nil
	}

	return nil, fmt.Errorf("entity type '%s' has no property '%s'", d.Name, id)
}

// MustProperty is Property for ids known to exist
func (d *Definition) MustProperty(id string) *Property {
	var p, err = d.Property(id)
	if err != nil {
		panic(err)
	}

	return p
}

// PrimaryKey returns the primary key properties in key order
func (d *Definition) PrimaryKey() []*Property {
	return d.primaryKey
}

// ForeignKeys returns the foreign key properties in definition order
func (d *Definition) ForeignKeys() []*Property {
	return d.foreignKeys
}

// Selected returns the properties read with a row, ordered by select index
func (d *Definition) Selected() []*Property {
	return d.selected
}

// SelectFrom returns the table or view selects read from
func (d *Definition) SelectFrom() string {
	if d.SelectTable != "" {
		return d.SelectTable
	}

	return d.Table
}

// Catalog returns the catalog d belongs to
func (d *Definition) Catalog() *Catalog {
	return d.catalog
}

// ReferencedDefinition returns the definition a foreign key points to
func (d *Definition) ReferencedDefinition(fk *Property) *Definition {
	return d.catalog.defs[fk.References]
}

// IsGenerated reports whether primary key values are produced by the engine or the database
func (d *Definition) IsGenerated() bool {
	return d.IDGeneration != Manual
}

// New returns an empty entity of this type
func (d *Definition) New() *Entity {
	return &Entity{
		def:       d,
		values:    make(map[string]interface{}),
		originals: make(map[string]interface{}),
	}
}

// Key builds a key from primary key values given in key order
func (d *Definition) Key(values ...interface{}) (Key, error) {
	if len(values) != len(d.primaryKey) {
		return Key{}, fmt.Errorf("entity type '%s' has a %d-column primary key, got %d values",
			d.Name, len(d.primaryKey), len(values))
	}

	var normalized = make([]interface{}, len(values))
	for i, v := range values {
		var err error
		if normalized[i], err = Normalize(d.primaryKey[i].Type, v); err != nil {
			return Key{}, fmt.Errorf("key of '%s', property '%s': %w", d.Name, d.primaryKey[i].ID, err)
		}
	}

	return Key{def: d, values: normalized}, nil
}

// MustKey is Key for values known to be valid
func (d *Definition) MustKey(values ...interface{}) Key {
	var k, err = d.Key(values...)
	if err != nil {
		panic(err)
	}

	return k
}

// resolve validates d and computes the derived lookup tables
func (d *Definition) resolve() error {
	if d.Name == "" {
		return fmt.Errorf("entity definition without a name")
	}
	if d.Table == "" {
		d.Table = d.Name
	}
	if d.IDGeneration == Sequence && d.Sequence == "" {
		return fmt.Errorf("entity type '%s' uses sequence keys but names no sequence", d.Name)
	}

	d.byID = make(map[string]*Property, len(d.Properties))
	d.primaryKey = nil
	d.foreignKeys = nil
	d.selected = nil

	for _, p := range d.Properties {
		if p.ID == "" {
			return fmt.Errorf("entity type '%s' has a property without id", d.Name)
		}
		if _, dup := d.byID[p.ID]; dup {
			return fmt.Errorf("entity type '%s' defines property '%s' twice", d.Name, p.ID)
		}
		if p.HasColumn() && p.Column == "" {
			p.Column = p.ID
		}
		if p.Kind == BlobKind {
			p.Type = Blob
		}
		p.owner = d.Name
		p.definition = d
		p.selectIndex = -1
		d.byID[p.ID] = p

		if p.IsPrimaryKey() {
			if p.Kind != ColumnKind {
				return fmt.Errorf("primary key property '%s' must be a column", p)
			}
			d.primaryKey = append(d.primaryKey, p)
		}
		if p.Kind == ForeignKeyKind {
			d.foreignKeys = append(d.foreignKeys, p)
		}
		if p.IsSelected() {
			p.selectIndex = len(d.selected)
			d.selected = append(d.selected, p)
		}
	}

	if len(d.primaryKey) == 0 {
		return fmt.Errorf("entity type '%s' has no primary key", d.Name)
	}
	sort.SliceStable(d.primaryKey, func(i, j int) bool {
		return d.primaryKey[i].PrimaryKeyIndex < d.primaryKey[j].PrimaryKeyIndex
	})
	for i, p := range d.primaryKey {
		if p.PrimaryKeyIndex != i {
			return fmt.Errorf("entity type '%s': primary key indexes must be 0..%d, '%s' has %d",
				d.Name, len(d.primaryKey)-1, p.ID, p.PrimaryKeyIndex)
		}
	}
	if d.IDGeneration != Manual && len(d.primaryKey) != 1 {
		return fmt.Errorf("entity type '%s': %s keys need a single-column primary key", d.Name, d.IDGeneration)
	}
	if d.IDGeneration == UUID && d.primaryKey[0].Type != String {
		return fmt.Errorf("entity type '%s': uuid keys need a string primary key", d.Name)
	}
	if (d.IDGeneration == AutoIncrement || d.IDGeneration == Sequence || d.IDGeneration == MaxPlusOne) &&
		d.primaryKey[0].Type != Integer {
		return fmt.Errorf("entity type '%s': %s keys need an integer primary key", d.Name, d.IDGeneration)
	}

	for _, p := range d.Properties {
		if p.Kind == DerivedKind {
			if p.Derive == nil {
				return fmt.Errorf("derived property '%s' has no derive function", p)
			}
			for _, src := range p.Sources {
				if _, ok := d.byID[src]; !ok {
					return fmt.Errorf("derived property '%s' has unknown source '%s'", p, src)
				}
			}
		}
	}

	for _, id := range d.OrderBy {
		var p, ok = d.byID[trimDirection(id)]
		if !ok || !p.HasColumn() {
			return fmt.Errorf("entity type '%s' orders by unknown column property '%s'", d.Name, id)
		}
	}

	return nil
}

// resolveReferences validates properties pointing into other definitions
func (d *Definition) resolveReferences(c *Catalog) error {
	for _, fk := range d.foreignKeys {
		var ref, ok = c.defs[fk.References]
		if !ok {
			return fmt.Errorf("foreign key '%s' references unknown entity type '%s'", fk, fk.References)
		}
		if len(fk.ReferenceProperties) != len(ref.primaryKey) {
			return fmt.Errorf("foreign key '%s' has %d reference properties, '%s' has a %d-column primary key",
				fk, len(fk.ReferenceProperties), ref.Name, len(ref.primaryKey))
		}
		for i, id := range fk.ReferenceProperties {
			var local, ok = d.byID[id]
			if !ok || local.Kind != ColumnKind {
				return fmt.Errorf("foreign key '%s' reference property '%s' is not a column of '%s'", fk, id, d.Name)
			}
			if local.Type != ref.primaryKey[i].Type {
				return fmt.Errorf("foreign key '%s' reference property '%s' is %s, referenced '%s' is %s",
					fk, id, local.Type, ref.primaryKey[i], ref.primaryKey[i].Type)
			}
		}
	}

	for _, p := range d.Properties {
		if p.Kind != DenormalizedKind {
			continue
		}
		var via, ok = d.byID[p.Via]
		if !ok || via.Kind != ForeignKeyKind {
			return fmt.Errorf("denormalized property '%s' reads through unknown foreign key '%s'", p, p.Via)
		}
		if _, ok = c.defs[via.References].byID[p.Target]; !ok {
			return fmt.Errorf("denormalized property '%s' reads unknown property '%s' of '%s'", p, p.Target, via.References)
		}
	}

	return nil
}
