// Package statement composes insert, update, delete and select statements from
// catalog metadata and criteria.
package statement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/acronis/perfkit/entitydb/criteria"
	"github.com/acronis/perfkit/entitydb/db"
	"github.com/acronis/perfkit/entitydb/entity"
)

var (
	// ErrParameterCount reports a statement whose placeholders and bound values disagree
	ErrParameterCount = errors.New("statement: placeholder count does not match bound values")
	// ErrNothingToWrite reports an insert without non-null values or an update without modified values
	ErrNothingToWrite = errors.New("statement: no values to write")
)

// Statement is SQL text with a `?` marker per bound value. Properties is
// parallel to Values, nil where a value is not bound to a property.
type Statement struct {
	Text       string
	Values     []interface{}
	Properties []*entity.Property
}

func (s Statement) String() string {
	if len(s.Values) == 0 {
		return s.Text
	}

	return s.Text + " " + db.DumpRecursive(s.Values, "")
}

func (s *Statement) bind(p *entity.Property, v interface{}) error {
	var stored, err = p.ToStored(v)
	if err != nil {
		return fmt.Errorf("property '%s': %w", p, err)
	}
	s.Values = append(s.Values, stored)
	s.Properties = append(s.Properties, p)

	return nil
}

func (s *Statement) appendFragment(f criteria.Fragment) {
	s.Text += f.Text
	s.Values = append(s.Values, f.Values...)
	s.Properties = append(s.Properties, f.Properties...)
}

// Finalize returns the text and arguments sent to the database: `?` markers
// replaced by dialect placeholders, or all values embedded as literals
func Finalize(s Statement, d db.Dialect, style criteria.Style) (string, []interface{}, error) {
	var markers = strings.Count(s.Text, "?")
	if markers != len(s.Values) {
		return "", nil, fmt.Errorf("%w: %d placeholders, %d values in '%s'", ErrParameterCount, markers, len(s.Values), s.Text)
	}

	if style == criteria.Literals {
		var text, err = d.Interpolate(s.Text, s.Values)
		if err != nil {
			return "", nil, err
		}
		return text, nil, nil
	}

	if markers == 0 || d.Placeholder(0) == "?" {
		return s.Text, s.Values, nil
	}

	var sb strings.Builder
	var i int
	for _, part := range strings.SplitAfter(s.Text, "?") {
		if strings.HasSuffix(part, "?") {
			sb.WriteString(part[:len(part)-1])
			sb.WriteString(d.Placeholder(i))
			i++
		} else {
			sb.WriteString(part)
		}
	}

	return sb.String(), s.Values, nil
}

// Builder renders statements for one dialect
type Builder struct {
	Dialect db.Dialect
}

// Insert writes every writable property e holds a non-null value for
func (b Builder) Insert(e *entity.Entity) (Statement, error) {
	var def = e.Definition()
	var st Statement
	var cols []string

	for _, p := range def.Properties {
		if !p.IsWritable() || e.IsNull(p.ID) {
			continue
		}
		if err := st.bind(p, e.Get(p.ID)); err != nil {
			return Statement{}, err
		}
		cols = append(cols, p.Column)
	}

	if len(cols) == 0 {
		return Statement{}, fmt.Errorf("%w: insert of '%s' without non-null values", ErrNothingToWrite, def.Name)
	}

	st.Text = fmt.Sprintf("insert into %s (%s) values (%s)",
		b.Dialect.Table(def.Table), strings.Join(cols, ", "), markers(len(cols)))

	return st, nil
}

// Update writes the modified updatable properties of e to the row of its original key
func (b Builder) Update(e *entity.Entity) (Statement, error) {
	var def = e.Definition()
	var st Statement
	var sets []string

	for _, p := range e.Modified() {
		if !p.IsUpdatable() {
			continue
		}
		if err := st.bind(p, e.Get(p.ID)); err != nil {
			return Statement{}, err
		}
		sets = append(sets, p.Column+" = ?")
	}

	if len(sets) == 0 {
		return Statement{}, fmt.Errorf("%w: update of %s without modified values", ErrNothingToWrite, e.OriginalKey())
	}

	st.Text = "update " + b.Dialect.Table(def.Table) + " set " + strings.Join(sets, ", ")
	if err := st.where(criteria.KeysIn(e.OriginalKey())); err != nil {
		return Statement{}, err
	}

	return st, nil
}

// Delete removes the rows matching where, all rows of the type for a nil condition
func (b Builder) Delete(def *entity.Definition, where criteria.Condition) (Statement, error) {
	var st = Statement{Text: "delete from " + b.Dialect.Table(def.Table)}
	if err := st.where(where); err != nil {
		return Statement{}, err
	}

	return st, nil
}

// Select reads the selected columns of the rows s describes. Locking selects
// read the base table since views cannot be locked.
func (b Builder) Select(def *entity.Definition, s *criteria.Select) (Statement, error) {
	var cols = make([]string, len(def.Selected()))
	for i, p := range def.Selected() {
		cols[i] = p.Column
	}

	var top, tail string
	if s.Limit > 0 {
		top, tail = b.Dialect.Limit(s.Limit)
	}

	var from = def.SelectFrom()
	if s.ForUpdate {
		from = def.Table
	}

	var st = Statement{Text: "select" + top + " " + strings.Join(cols, ", ") + " from " + b.Dialect.Table(from)}
	if err := st.where(s.Where); err != nil {
		return Statement{}, err
	}

	var order, err = orderClause(def, s.Order(def))
	if err != nil {
		return Statement{}, err
	}
	st.Text += order + tail

	if s.ForUpdate {
		st.Text += db.ForUpdateClause(b.Dialect)
	}

	return st, nil
}

// Count counts the rows matching where
func (b Builder) Count(def *entity.Definition, where criteria.Condition) (Statement, error) {
	var st = Statement{Text: "select count(*) from " + b.Dialect.Table(def.SelectFrom())}
	if err := st.where(where); err != nil {
		return Statement{}, err
	}

	return st, nil
}

// Distinct reads the distinct non-null values of one column property
func (b Builder) Distinct(p *entity.Property, where criteria.Condition, ordered bool) (Statement, error) {
	var def = p.Definition()
	if p.Kind != entity.ColumnKind {
		return Statement{}, fmt.Errorf("statement: %s property '%s' has no comparable column", p.Kind, p)
	}

	var st = Statement{Text: "select distinct " + p.Column + " from " + b.Dialect.Table(def.SelectFrom())}
	if err := st.where(criteria.And(criteria.Where(p, criteria.NotEqual, nil), where)); err != nil {
		return Statement{}, err
	}
	if ordered {
		st.Text += " order by " + p.Column
	}

	return st, nil
}

// MaxPlusOne reads the next key of a max-plus-one primary key
func (b Builder) MaxPlusOne(def *entity.Definition) Statement {
	var col = def.PrimaryKey()[0].Column
	return Statement{Text: "select coalesce(max(" + col + "), 0) + 1 from " + b.Dialect.Table(def.Table)}
}

// ReadBlob reads one blob column of the row with key k
func (b Builder) ReadBlob(p *entity.Property, k entity.Key) (Statement, error) {
	if p.Kind != entity.BlobKind {
		return Statement{}, fmt.Errorf("statement: '%s' is not a blob property", p)
	}

	var st = Statement{Text: "select " + p.Column + " from " + b.Dialect.Table(k.Definition().Table)}
	if err := st.where(criteria.KeysIn(k)); err != nil {
		return Statement{}, err
	}

	return st, nil
}

// WriteBlob replaces one blob column of the row with key k
func (b Builder) WriteBlob(p *entity.Property, k entity.Key, data []byte) (Statement, error) {
	if p.Kind != entity.BlobKind {
		return Statement{}, fmt.Errorf("statement: '%s' is not a blob property", p)
	}

	var st = Statement{Text: "update " + b.Dialect.Table(k.Definition().Table) + " set " + p.Column + " = ?"}
	if err := st.bind(p, data); err != nil {
		return Statement{}, err
	}
	if err := st.where(criteria.KeysIn(k)); err != nil {
		return Statement{}, err
	}

	return st, nil
}

func (s *Statement) where(cond criteria.Condition) error {
	if cond == nil {
		return nil
	}

	var f, err = criteria.Template(cond)
	if err != nil {
		return err
	}
	s.Text += " where "
	s.appendFragment(f)

	return nil
}

func orderClause(def *entity.Definition, terms []string) (string, error) {
	if len(terms) == 0 {
		return "", nil
	}

	var parts = make([]string, len(terms))
	for i, term := range terms {
		var id, desc = entity.SplitOrder(term)
		var p, err = def.Property(id)
		if err != nil {
			return "", err
		}
		if !p.HasColumn() {
			return "", fmt.Errorf("statement: cannot order by %s property '%s'", p.Kind, p)
		}
		parts[i] = p.Column
		if desc {
			parts[i] += " desc"
		}
	}

	return " order by " + strings.Join(parts, ", "), nil
}

func markers(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
