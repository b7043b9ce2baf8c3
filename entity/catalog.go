package entity

import (
	"fmt"
	"strings"
)

// Catalog is the read-only schema of all entity types
type Catalog struct {
	defs  map[string]*Definition
	order []string

	// foreign keys lying on a cycle of the reference graph
	cyclic map[*Property]bool
	// foreign keys referencing each entity type
	referencing map[string][]*Property
}

// NewCatalog validates the definitions and links them into a catalog.
// Definitions must not be modified afterwards.
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	var c = &Catalog{
		defs:        make(map[string]*Definition, len(defs)),
		cyclic:      make(map[*Property]bool),
		referencing: make(map[string][]*Property),
	}

	for _, d := range defs {
		if err := d.resolve(); err != nil {
			return nil, err
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("entity type '%s' is defined twice", d.Name)
		}
		c.defs[d.Name] = d
		c.order = append(c.order, d.Name)
		d.catalog = c
	}

	for _, name := range c.order {
		var d = c.defs[name]
		if err := d.resolveReferences(c); err != nil {
			return nil, err
		}
		for _, fk := range d.foreignKeys {
			c.referencing[fk.References] = append(c.referencing[fk.References], fk)
		}
	}

	c.markCycles()
	for fk := range c.cyclic {
		if fk.DefaultFetchDepth() < 0 {
			return nil, fmt.Errorf("foreign key '%s' lies on a reference cycle and must have a finite fetch depth", fk)
		}
	}

	return c, nil
}

// markCycles finds the strongly connected components of the reference graph;
// a foreign key between two types of the same component lies on a cycle
func (c *Catalog) markCycles() {
	var (
		index   = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		stack   []string
		next    int
		comp    = make(map[string]int)
		ncomp   int
	)

	var visit func(name string)
	visit = func(name string) {
		index[name] = next
		lowlink[name] = next
		next++
		stack = append(stack, name)
		onStack[name] = true

		for _, fk := range c.defs[name].foreignKeys {
			var to = fk.References
			if _, seen := index[to]; !seen {
				visit(to)
				lowlink[name] = min(lowlink[name], lowlink[to])
			} else if onStack[to] {
				lowlink[name] = min(lowlink[name], index[to])
			}
		}

		if lowlink[name] == index[name] {
			for {
				var top = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				comp[top] = ncomp
				if top == name {
					break
				}
			}
			ncomp++
		}
	}

	for _, name := range c.order {
		if _, seen := index[name]; !seen {
			visit(name)
		}
	}

	for _, name := range c.order {
		for _, fk := range c.defs[name].foreignKeys {
			if comp[name] == comp[fk.References] {
				c.cyclic[fk] = true
			}
		}
	}
}

// Definition returns the definition of an entity type
func (c *Catalog) Definition(entityType string) (*Definition, error) {
	if d, ok := c.defs[entityType]; ok {
		return d, nil
	}

	return nil, fmt.Errorf("unknown entity type '%s'", entityType)
}

// MustDefinition is Definition for types known to exist
func (c *Catalog) MustDefinition(entityType string) *Definition {
	var d, err = c.Definition(entityType)
	if err != nil {
		panic(err)
	}

	return d
}

// Definitions returns all definitions in registration order
func (c *Catalog) Definitions() []*Definition {
	var defs = make([]*Definition, 0, len(c.order))
	for _, name := range c.order {
		defs = append(defs, c.defs[name])
	}

	return defs
}

// IsCyclic reports whether a foreign key lies on a reference cycle
func (c *Catalog) IsCyclic(fk *Property) bool {
	return c.cyclic[fk]
}

// ReferencingForeignKeys returns the foreign keys of all types that reference entityType
func (c *Catalog) ReferencingForeignKeys(entityType string) []*Property {
	return c.referencing[entityType]
}

// PropertiesOf returns all properties of an entity type
func (c *Catalog) PropertiesOf(entityType string) ([]*Property, error) {
	var d, err = c.Definition(entityType)
	if err != nil {
		return nil, err
	}

	return d.Properties, nil
}

// PrimaryKeyPropertiesOf returns the primary key properties of an entity type in key order
func (c *Catalog) PrimaryKeyPropertiesOf(entityType string) ([]*Property, error) {
	var d, err = c.Definition(entityType)
	if err != nil {
		return nil, err
	}

	return d.primaryKey, nil
}

// ForeignKeyPropertiesOf returns the foreign key properties of an entity type
func (c *Catalog) ForeignKeyPropertiesOf(entityType string) ([]*Property, error) {
	var d, err = c.Definition(entityType)
	if err != nil {
		return nil, err
	}

	return d.foreignKeys, nil
}

// TableNameOf returns the table written for an entity type
func (c *Catalog) TableNameOf(entityType string) (string, error) {
	var d, err = c.Definition(entityType)
	if err != nil {
		return "", err
	}

	return d.Table, nil
}

// IsReadOnly reports whether an entity type may be written; unknown types are read-only
func (c *Catalog) IsReadOnly(entityType string) bool {
	var d, ok = c.defs[entityType]
	return !ok || d.ReadOnly
}

// IDGenerationStrategyOf returns the key generation strategy of an entity type
func (c *Catalog) IDGenerationStrategyOf(entityType string) (IDGeneration, error) {
	var d, err = c.Definition(entityType)
	if err != nil {
		return Manual, err
	}

	return d.IDGeneration, nil
}

// SplitOrder splits an ordering term like "name desc" into its property id and direction
func SplitOrder(term string) (id string, descending bool) {
	var fields = strings.Fields(term)
	if len(fields) == 0 {
		return "", false
	}
	if len(fields) > 1 && strings.EqualFold(fields[len(fields)-1], "desc") {
		return fields[0], true
	}

	return fields[0], false
}

func trimDirection(term string) string {
	var id, _ = SplitOrder(term)
	return id
}
