package entity

import (
	"fmt"
)

// Kind is the closed set of property variants
type Kind int

const (
	// ColumnKind is a value read from and written to one column
	ColumnKind Kind = iota
	// BlobKind is a binary column, lazy blobs are never selected with the row
	BlobKind
	// ForeignKeyKind references another entity through one or more local columns
	ForeignKeyKind
	// TransientKind is held by the entity only
	TransientKind
	// DerivedKind is computed from other properties of the same entity
	DerivedKind
	// DenormalizedKind is read through a foreign key from the referenced entity
	DenormalizedKind
)

func (k Kind) String() string {
	switch k {
	case ColumnKind:
		return "column"
	case BlobKind:
		return "blob"
	case ForeignKeyKind:
		return "foreign-key"
	case TransientKind:
		return "transient"
	case DerivedKind:
		return "derived"
	case DenormalizedKind:
		return "denormalized"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// UnlimitedDepth disables fetch depth limiting for a foreign key
const UnlimitedDepth = -1

const defaultFetchDepth = 1

// Depth returns a pointer to n, for FetchDepth fields
func Depth(n int) *int {
	return &n
}

// DeriveFunc computes a derived value from its source values, keyed by property id
type DeriveFunc func(sources map[string]interface{}) interface{}

// Property describes one value of an entity type. It is immutable once its
// Definition has been added to a Catalog and is shared by all entities of the type.
type Property struct {
	ID     string
	Column string // defaults to ID for column and blob properties
	Type   Type
	Kind   Kind

	// PrimaryKeyIndex is the position within the primary key, -1 outside of it
	PrimaryKeyIndex int
	ReadOnly        bool // never written
	NonUpdatable    bool // written on insert only
	Lazy            bool // lazy blob or key-only foreign key reference

	// Codec maps boolean values to stored values, nil stores native booleans
	Codec BooleanCodec

	// References is the referenced entity type of a foreign key
	References string
	// ReferenceProperties are the local column properties holding the referenced
	// primary key, in primary key order
	ReferenceProperties []string
	// FetchDepth is the default number of hops resolved eagerly; nil means 1
	FetchDepth *int

	// Sources and Derive define a derived property
	Sources []string
	Derive  DeriveFunc

	// Via names the foreign key and Target the property of the referenced
	// entity a denormalized property is read from
	Via    string
	Target string

	selectIndex int
	owner       string
	definition  *Definition
}

// IsPrimaryKey reports whether p is a part of its entity's primary key
func (p *Property) IsPrimaryKey() bool {
	return p.PrimaryKeyIndex >= 0
}

// HasColumn reports whether p maps to a table column
func (p *Property) HasColumn() bool {
	return p.Kind == ColumnKind || p.Kind == BlobKind
}

// IsSelected reports whether p is read with the row
func (p *Property) IsSelected() bool {
	return p.Kind == ColumnKind || (p.Kind == BlobKind && !p.Lazy)
}

// IsWritable reports whether p is written on insert
func (p *Property) IsWritable() bool {
	return p.HasColumn() && !p.ReadOnly
}

// IsUpdatable reports whether p is written on update
func (p *Property) IsUpdatable() bool {
	return p.IsWritable() && !p.NonUpdatable
}

// SelectIndex is the zero-based position of p's column in the select list of its entity
func (p *Property) SelectIndex() int {
	return p.selectIndex
}

// Owner is the entity type p belongs to
func (p *Property) Owner() string {
	return p.owner
}

// Definition returns the definition p belongs to, nil before it joined a catalog
func (p *Property) Definition() *Definition {
	return p.definition
}

// DefaultFetchDepth returns the fetch depth of a foreign key when no criteria overrides it
func (p *Property) DefaultFetchDepth() int {
	if p.FetchDepth == nil {
		return defaultFetchDepth
	}

	return *p.FetchDepth
}

// ToStored converts a normalized value into the value bound to a statement
func (p *Property) ToStored(v interface{}) (interface{}, error) {
	if v == nil {
		if p.Type == Boolean && p.Codec != nil {
			return p.Codec.Encode(nil)
		}
		return nil, nil
	}

	switch p.Type {
	case Boolean:
		if p.Codec != nil {
			return p.Codec.Encode(v)
		}
		return v, nil
	case Char:
		if r, ok := v.(rune); ok {
			return string(r), nil
		}
	}

	return v, nil
}

func (p *Property) String() string {
	if p.owner != "" {
		return p.owner + "." + p.ID
	}

	return p.ID
}

// ColumnProperty defines a plain column property named after its column
func ColumnProperty(id string, t Type) *Property {
	return &Property{ID: id, Column: id, Type: t, Kind: ColumnKind, PrimaryKeyIndex: -1}
}

// PrimaryKeyProperty defines the index-th column of the primary key
func PrimaryKeyProperty(id string, t Type, index int) *Property {
	var p = ColumnProperty(id, t)
	p.PrimaryKeyIndex = index
	return p
}

// BlobProperty defines a binary column, lazy blobs are read with ReadBlob only
func BlobProperty(id string, lazy bool) *Property {
	return &Property{ID: id, Column: id, Type: Blob, Kind: BlobKind, Lazy: lazy, PrimaryKeyIndex: -1}
}

// ForeignKeyProperty defines a reference to entity type references held by referenceProperties
func ForeignKeyProperty(id string, references string, referenceProperties ...string) *Property {
	return &Property{
		ID:                  id,
		Kind:                ForeignKeyKind,
		References:          references,
		ReferenceProperties: referenceProperties,
		PrimaryKeyIndex:     -1,
	}
}

// TransientProperty defines a value held by the entity only
func TransientProperty(id string, t Type) *Property {
	return &Property{ID: id, Type: t, Kind: TransientKind, PrimaryKeyIndex: -1}
}

// DerivedProperty defines a value computed from sources
func DerivedProperty(id string, t Type, derive DeriveFunc, sources ...string) *Property {
	return &Property{ID: id, Type: t, Kind: DerivedKind, Derive: derive, Sources: sources, PrimaryKeyIndex: -1}
}

// DenormalizedProperty defines a value read from property target of the entity referenced by via
func DenormalizedProperty(id string, t Type, via string, target string) *Property {
	return &Property{ID: id, Type: t, Kind: DenormalizedKind, Via: via, Target: target, PrimaryKeyIndex: -1}
}

// BooleanCodec maps booleans (nil for null) to stored values and back
type BooleanCodec interface {
	Encode(v interface{}) (interface{}, error)
	Decode(stored interface{}) (interface{}, error)
}

// BooleanLiterals stores booleans as fixed literals, e.g. 'Y' and 'N'
type BooleanLiterals struct {
	True  interface{}
	False interface{}
	Null  interface{}
}

// Encode returns the literal of true, false or nil
func (l BooleanLiterals) Encode(v interface{}) (interface{}, error) {
	switch v {
	case nil:
		return l.Null, nil
	case true:
		return l.True, nil
	case false:
		return l.False, nil
	default:
		return nil, fmt.Errorf("cannot encode %T as boolean", v)
	}
}

// Decode maps a stored literal back to a boolean, sql null and the Null
// literal both decode to nil
func (l BooleanLiterals) Decode(stored interface{}) (interface{}, error) {
	if b, ok := stored.([]byte); ok {
		stored = string(b)
	}

	switch {
	case literalEqual(stored, l.True):
		return true, nil
	case literalEqual(stored, l.False):
		return false, nil
	case stored == nil || literalEqual(stored, l.Null):
		return nil, nil
	default:
		return nil, fmt.Errorf("value %v is neither %v nor %v", stored, l.True, l.False)
	}
}

// literalEqual compares stored values loosely, drivers may widen integer types
func literalEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}
