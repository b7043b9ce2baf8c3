package criteria

import (
	"fmt"

	"github.com/acronis/perfkit/entitydb/entity"
)

type primaryKeys struct {
	keys []entity.Key
}

// KeysIn matches the rows with the given primary keys, all of one entity type.
// No keys match no row.
func KeysIn(keys ...entity.Key) Condition {
	return &primaryKeys{keys: keys}
}

func (c *primaryKeys) render(b *builder) error {
	if len(c.keys) == 0 {
		b.sb.WriteString("1 = 0")
		return nil
	}

	var def = c.keys[0].Definition()
	if def == nil {
		return fmt.Errorf("criteria: zero key")
	}

	return renderKeys(b, def.PrimaryKey(), def.Name, c.keys)
}

type foreignKeys struct {
	fk   *entity.Property
	keys []entity.Key
}

// ForeignKeyIn matches the rows whose foreign key fk references one of keys
func ForeignKeyIn(fk *entity.Property, keys ...entity.Key) Condition {
	return &foreignKeys{fk: fk, keys: keys}
}

func (c *foreignKeys) render(b *builder) error {
	if len(c.keys) == 0 {
		b.sb.WriteString("1 = 0")
		return nil
	}

	var props, err = referenceColumns(c.fk)
	if err != nil {
		return err
	}

	return renderKeys(b, props, c.fk.References, c.keys)
}

type referenceIsNull struct {
	fk *entity.Property
}

func (c *referenceIsNull) render(b *builder) error {
	var props, err = referenceColumns(c.fk)
	if err != nil {
		return err
	}

	if len(props) > 1 {
		b.sb.WriteByte('(')
	}
	for i, p := range props {
		if i > 0 {
			b.sb.WriteString(" and ")
		}
		b.sb.WriteString(p.Column + " is null")
	}
	if len(props) > 1 {
		b.sb.WriteByte(')')
	}

	return nil
}

// referenceColumns returns the local column properties holding the key fk references
func referenceColumns(fk *entity.Property) ([]*entity.Property, error) {
	if fk.Kind != entity.ForeignKeyKind {
		return nil, fmt.Errorf("criteria: '%s' is not a foreign key", fk)
	}
	var owner = fk.Definition()
	if owner == nil {
		return nil, fmt.Errorf("criteria: foreign key '%s' is not part of a catalog", fk)
	}

	var props = make([]*entity.Property, len(fk.ReferenceProperties))
	for i, id := range fk.ReferenceProperties {
		var err error
		if props[i], err = owner.Property(id); err != nil {
			return nil, err
		}
	}

	return props, nil
}

// renderKeys renders "col in (...)" for single-column keys and an or-group of
// and-groups for composite keys
func renderKeys(b *builder, props []*entity.Property, entityType string, keys []entity.Key) error {
	for _, k := range keys {
		if k.Type() != entityType {
			return fmt.Errorf("criteria: key of '%s' in a set of '%s' keys", k.Type(), entityType)
		}
		if k.IsNull() {
			return fmt.Errorf("criteria: null key %s", k)
		}
	}

	if len(props) == 1 {
		b.sb.WriteString(props[0].Column)
		if len(keys) == 1 {
			b.sb.WriteString(" = ")
			return b.bind(props[0], keys[0].Values()[0])
		}
		b.sb.WriteString(" in (")
		for i, k := range keys {
			if i > 0 {
				b.sb.WriteString(", ")
			}
			if err := b.bind(props[0], k.Values()[0]); err != nil {
				return err
			}
		}
		b.sb.WriteByte(')')
		return nil
	}

	if len(keys) > 1 {
		b.sb.WriteByte('(')
	}
	for i, k := range keys {
		if i > 0 {
			b.sb.WriteString(" or ")
		}
		b.sb.WriteByte('(')
		for j, v := range k.Values() {
			if j > 0 {
				b.sb.WriteString(" and ")
			}
			b.sb.WriteString(props[j].Column + " = ")
			if err := b.bind(props[j], v); err != nil {
				return err
			}
		}
		b.sb.WriteByte(')')
	}
	if len(keys) > 1 {
		b.sb.WriteByte(')')
	}

	return nil
}
