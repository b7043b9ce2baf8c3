package config

import (
	"fmt"

	"github.com/acronis/perfkit/entitydb/entity"
)

// EntityType describes one entity type of the catalog section
type EntityType struct {
	Name         string     `yaml:"name"`
	Table        string     `yaml:"table"`
	SelectTable  string     `yaml:"select-table"`
	ReadOnly     bool       `yaml:"read-only"`
	IDGeneration string     `yaml:"id-generation"`
	Sequence     string     `yaml:"sequence"`
	OrderBy      []string   `yaml:"order-by"`
	Properties   []Property `yaml:"properties"`
}

// Property describes one property of an entity type. Kind is one of column
// (default), blob, foreign-key, transient and denormalized.
type Property struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"`
	Type       string `yaml:"type"`
	Column     string `yaml:"column"`
	PrimaryKey bool   `yaml:"primary-key"`

	ReadOnly     bool `yaml:"read-only"`
	NonUpdatable bool `yaml:"non-updatable"`
	Lazy         bool `yaml:"lazy"`

	// boolean columns stored as literals, e.g. 'Y' and 'N'
	TrueValue  interface{} `yaml:"true-value"`
	FalseValue interface{} `yaml:"false-value"`

	References          string   `yaml:"references"`
	ReferenceProperties []string `yaml:"reference-properties"`
	FetchDepth          *int     `yaml:"fetch-depth"`

	Via    string `yaml:"via"`
	Target string `yaml:"target"`
}

// BuildCatalog turns the catalog section into a validated catalog
func (f *File) BuildCatalog() (*entity.Catalog, error) {
	if len(f.Catalog) == 0 {
		return nil, fmt.Errorf("config: catalog has no entity types")
	}

	var defs = make([]*entity.Definition, 0, len(f.Catalog))
	for _, et := range f.Catalog {
		var def, err = et.definition()
		if err != nil {
			return nil, fmt.Errorf("config: entity type '%s': %w", et.Name, err)
		}
		defs = append(defs, def)
	}

	var c, err = entity.NewCatalog(defs...)
	if err != nil {
		return nil, fmt.Errorf("config: catalog: %w", err)
	}

	return c, nil
}

func (et EntityType) definition() (*entity.Definition, error) {
	var gen, err = entity.ParseIDGeneration(et.IDGeneration)
	if err != nil {
		return nil, err
	}

	var def = &entity.Definition{
		Name:         et.Name,
		Table:        et.Table,
		SelectTable:  et.SelectTable,
		ReadOnly:     et.ReadOnly,
		IDGeneration: gen,
		Sequence:     et.Sequence,
		OrderBy:      et.OrderBy,
	}

	var pkIndex int
	for _, cp := range et.Properties {
		var p, err = cp.property()
		if err != nil {
			return nil, fmt.Errorf("property '%s': %w", cp.ID, err)
		}
		if cp.PrimaryKey {
			if p.Kind != entity.ColumnKind {
				return nil, fmt.Errorf("property '%s': %s property cannot be a part of the primary key", cp.ID, p.Kind)
			}
			p.PrimaryKeyIndex = pkIndex
			pkIndex++
		}
		def.Properties = append(def.Properties, p)
	}

	return def, nil
}

func (cp Property) property() (*entity.Property, error) {
	var p *entity.Property

	switch cp.Kind {
	case "", "column":
		var t, err = entity.ParseType(cp.Type)
		if err != nil {
			return nil, err
		}
		p = entity.ColumnProperty(cp.ID, t)
		if t == entity.Boolean && (cp.TrueValue != nil || cp.FalseValue != nil) {
			p.Codec = entity.BooleanLiterals{True: cp.TrueValue, False: cp.FalseValue}
		}
	case "blob":
		p = entity.BlobProperty(cp.ID, cp.Lazy)
	case "foreign-key":
		if cp.References == "" {
			return nil, fmt.Errorf("foreign key without references")
		}
		p = entity.ForeignKeyProperty(cp.ID, cp.References, cp.ReferenceProperties...)
		p.Lazy = cp.Lazy
		p.FetchDepth = cp.FetchDepth
	case "transient":
		var t, err = entity.ParseType(cp.Type)
		if err != nil {
			return nil, err
		}
		p = entity.TransientProperty(cp.ID, t)
	case "denormalized":
		var t, err = entity.ParseType(cp.Type)
		if err != nil {
			return nil, err
		}
		p = entity.DenormalizedProperty(cp.ID, t, cp.Via, cp.Target)
	default:
		return nil, fmt.Errorf("unknown property kind '%s'", cp.Kind)
	}

	if cp.Column != "" {
		p.Column = cp.Column
	}
	p.ReadOnly = cp.ReadOnly
	p.NonUpdatable = cp.NonUpdatable

	return p, nil
}
