// Package criteria builds where clause trees over catalog properties and renders
// them to SQL fragments with either bound parameters or embedded literals.
package criteria

import (
	"fmt"
	"strings"

	"github.com/acronis/perfkit/entitydb/db"
	"github.com/acronis/perfkit/entitydb/entity"
)

// Operator is the comparison applied by a leaf condition
type Operator int

// Leaf operators
const (
	Equal Operator = iota
	NotEqual
	Less
	LessOrEqual
	Greater
	GreaterOrEqual
	Like
	In
	NotIn
)

var operatorSQL = map[Operator]string{
	Equal:          "=",
	NotEqual:       "<>",
	Less:           "<",
	LessOrEqual:    "<=",
	Greater:        ">",
	GreaterOrEqual: ">=",
	Like:           "like",
	In:             "in",
	NotIn:          "not in",
}

func (o Operator) String() string {
	if s, ok := operatorSQL[o]; ok {
		return s
	}

	return fmt.Sprintf("operator(%d)", int(o))
}

// Style selects how leaf values end up in the rendered text
type Style int

const (
	// Placeholders binds every value to a `?` marker
	Placeholders Style = iota
	// Literals embeds every value as a dialect-encoded SQL literal
	Literals
)

// Condition is a node of a where clause tree
type Condition interface {
	render(b *builder) error
}

// Fragment is a rendered condition. Values and Properties are parallel and in
// the order their markers appear in Text; both are empty for the Literals style.
type Fragment struct {
	Text       string
	Values     []interface{}
	Properties []*entity.Property
}

type builder struct {
	sb     strings.Builder
	values []interface{}
	props  []*entity.Property
}

// bind writes one marker for v, stored the way p writes it
func (b *builder) bind(p *entity.Property, v interface{}) error {
	var stored, err = p.ToStored(v)
	if err != nil {
		return fmt.Errorf("property '%s': %w", p, err)
	}

	b.sb.WriteByte('?')
	b.values = append(b.values, stored)
	b.props = append(b.props, p)

	return nil
}

// Template renders c with a `?` marker per value; a nil condition renders empty
func Template(c Condition) (Fragment, error) {
	if c == nil {
		return Fragment{}, nil
	}

	var b builder
	if err := c.render(&b); err != nil {
		return Fragment{}, err
	}

	return Fragment{Text: b.sb.String(), Values: b.values, Properties: b.props}, nil
}

// Render renders c in the given style, literals are encoded by d
func Render(c Condition, style Style, d db.Dialect) (Fragment, error) {
	var f, err = Template(c)
	if err != nil || style == Placeholders {
		return f, err
	}

	var text string
	if text, err = d.Interpolate(f.Text, f.Values); err != nil {
		return Fragment{}, err
	}

	return Fragment{Text: text}, nil
}

// Describe renders c for diagnostics, values inline
func Describe(c Condition) string {
	var f, err = Template(c)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	if len(f.Values) == 0 {
		return f.Text
	}

	return f.Text + " " + db.DumpRecursive(f.Values, "")
}

type leaf struct {
	prop   *entity.Property
	op     Operator
	values []interface{}
}

// Where compares a column property with values. Equal and NotEqual with a nil
// value render "is null" and "is not null", unless a boolean codec stores null
// as a literal, which is then bound like any other value. In and NotIn take
// any number of values. On a foreign key property Equal and In take keys or entities of the referenced type.
func Where(p *entity.Property, op Operator, values ...interface{}) Condition {
	return &leaf{prop: p, op: op, values: values}
}

func (l *leaf) render(b *builder) error {
	if l.prop.Kind == entity.ForeignKeyKind {
		return l.renderForeignKey(b)
	}
	if l.prop.Kind != entity.ColumnKind {
		return fmt.Errorf("criteria: %s property '%s' has no comparable column", l.prop.Kind, l.prop)
	}

	var values = make([]interface{}, len(l.values))
	for i, v := range l.values {
		var err error
		if values[i], err = entity.Normalize(l.prop.Type, v); err != nil {
			return fmt.Errorf("criteria: property '%s': %w", l.prop, err)
		}
	}

	switch l.op {
	case In:
		return renderIn(b, l.prop, values, false)
	case NotIn:
		return renderIn(b, l.prop, values, true)
	}

	if len(values) != 1 {
		return fmt.Errorf("criteria: operator '%s' on '%s' takes one value, got %d", l.op, l.prop, len(values))
	}
	if values[0] == nil {
		switch {
		case l.op != Equal && l.op != NotEqual:
			return fmt.Errorf("criteria: operator '%s' on '%s' cannot compare with null", l.op, l.prop)
		case !storedAsNull(l.prop):
		case l.op == Equal:
			b.sb.WriteString(l.prop.Column + " is null")
			return nil
		default:
			b.sb.WriteString(l.prop.Column + " is not null")
			return nil
		}
	}

	b.sb.WriteString(l.prop.Column + " " + l.op.String() + " ")

	return b.bind(l.prop, values[0])
}

// renderIn renders a set membership test. An empty set matches nothing for In
// and everything for NotIn; nulls in the set are tested with "is null".
func renderIn(b *builder, p *entity.Property, values []interface{}, negate bool) error {
	var nonNull []interface{}
	var hasNull bool
	var null = storedAsNull(p)
	for _, v := range values {
		if v == nil && null {
			hasNull = true
		} else {
			nonNull = append(nonNull, v)
		}
	}

	switch {
	case len(nonNull) == 0 && !hasNull:
		if negate {
			b.sb.WriteString("1 = 1")
		} else {
			b.sb.WriteString("1 = 0")
		}
		return nil
	case len(nonNull) == 0:
		if negate {
			b.sb.WriteString(p.Column + " is not null")
		} else {
			b.sb.WriteString(p.Column + " is null")
		}
		return nil
	}

	if hasNull {
		b.sb.WriteByte('(')
	}
	b.sb.WriteString(p.Column)
	if negate {
		b.sb.WriteString(" not in (")
	} else {
		b.sb.WriteString(" in (")
	}
	for i, v := range nonNull {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		if err := b.bind(p, v); err != nil {
			return err
		}
	}
	b.sb.WriteByte(')')
	if hasNull {
		if negate {
			b.sb.WriteString(" and " + p.Column + " is not null)")
		} else {
			b.sb.WriteString(" or " + p.Column + " is null)")
		}
	}

	return nil
}

// storedAsNull reports whether a nil value of p is stored as sql null, a
// boolean codec may store it as a literal instead
func storedAsNull(p *entity.Property) bool {
	var stored, err = p.ToStored(nil)
	return err != nil || stored == nil
}

func (l *leaf) renderForeignKey(b *builder) error {
	var keys []entity.Key
	var hasNull bool
	for _, v := range l.values {
		switch x := v.(type) {
		case nil:
			hasNull = true
		case entity.Key:
			if x.IsNull() {
				hasNull = true
			} else {
				keys = append(keys, x)
			}
		case *entity.Entity:
			if x == nil {
				hasNull = true
			} else {
				keys = append(keys, x.Key())
			}
		default:
			return fmt.Errorf("criteria: foreign key '%s' compares with keys or entities, got %T", l.prop, v)
		}
	}

	switch l.op {
	case Equal:
		if len(l.values) != 1 {
			return fmt.Errorf("criteria: operator '%s' on '%s' takes one value, got %d", l.op, l.prop, len(l.values))
		}
	case In:
	default:
		return fmt.Errorf("criteria: operator '%s' is not supported on foreign key '%s'", l.op, l.prop)
	}

	if !hasNull {
		return (&foreignKeys{fk: l.prop, keys: keys}).render(b)
	}

	var conds = []Condition{&referenceIsNull{fk: l.prop}}
	if len(keys) > 0 {
		conds = append(conds, &foreignKeys{fk: l.prop, keys: keys})
	}

	return Or(conds...).render(b)
}

type composite struct {
	conjunction string
	conds       []Condition
}

// And matches rows matching all conditions; no conditions match every row
func And(conds ...Condition) Condition {
	return &composite{conjunction: " and ", conds: conds}
}

// Or matches rows matching any condition; no conditions match no row
func Or(conds ...Condition) Condition {
	return &composite{conjunction: " or ", conds: conds}
}

func (c *composite) render(b *builder) error {
	var conds = make([]Condition, 0, len(c.conds))
	for _, cond := range c.conds {
		if cond != nil {
			conds = append(conds, cond)
		}
	}

	switch len(conds) {
	case 0:
		if c.conjunction == " and " {
			b.sb.WriteString("1 = 1")
		} else {
			b.sb.WriteString("1 = 0")
		}
		return nil
	case 1:
		return conds[0].render(b)
	}

	b.sb.WriteByte('(')
	for i, cond := range conds {
		if i > 0 {
			b.sb.WriteString(c.conjunction)
		}
		if err := cond.render(b); err != nil {
			return err
		}
	}
	b.sb.WriteByte(')')

	return nil
}
