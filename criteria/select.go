package criteria

import (
	"fmt"
	"sort"
	"strings"

	"github.com/acronis/perfkit/entitydb/entity"
)

// Select describes the rows and shape of an entity select
type Select struct {
	EntityType string
	Where      Condition

	// OrderBy lists property ids, optionally followed by "desc";
	// nil falls back to the ordering of the definition
	OrderBy []string

	// Limit bounds the number of rows fetched, zero or negative fetches all
	Limit int

	// FetchDepth overrides the default fetch depth of every foreign key
	FetchDepth *int
	// ForeignKeyFetchDepths overrides the fetch depth of single foreign keys by id
	ForeignKeyFetchDepths map[string]int

	// ForUpdate locks the selected rows until the transaction ends
	ForUpdate bool

	// carried is set when FetchDepth was derived from a default limit
	carried bool
}

// All selects every row of an entity type
func All(entityType string) *Select {
	return &Select{EntityType: entityType}
}

// Matching selects the rows of an entity type matching where
func Matching(entityType string, where Condition) *Select {
	return &Select{EntityType: entityType, Where: where}
}

// ByKeys selects the rows with the given keys, all of one entity type
func ByKeys(keys ...entity.Key) *Select {
	var s = &Select{Where: KeysIn(keys...)}
	if len(keys) > 0 {
		s.EntityType = keys[0].Type()
	}

	return s
}

// OrderedBy sets the ordering
func (s *Select) OrderedBy(terms ...string) *Select {
	s.OrderBy = terms
	return s
}

// Limited bounds the number of fetched rows
func (s *Select) Limited(n int) *Select {
	s.Limit = n
	return s
}

// WithFetchDepth overrides the fetch depth of every foreign key
func (s *Select) WithFetchDepth(depth int) *Select {
	s.FetchDepth = entity.Depth(depth)
	return s
}

// WithForeignKeyFetchDepth overrides the fetch depth of one foreign key
func (s *Select) WithForeignKeyFetchDepth(fkID string, depth int) *Select {
	if s.ForeignKeyFetchDepths == nil {
		s.ForeignKeyFetchDepths = make(map[string]int)
	}
	s.ForeignKeyFetchDepths[fkID] = depth

	return s
}

// Locking requests row locks on the selected rows
func (s *Select) Locking() *Select {
	s.ForUpdate = true
	return s
}

// DepthOf returns the fetch depth limit of fk for this select. A blanket
// unlimited depth never applies to a foreign key lying on a reference cycle,
// such keys keep their finite default.
func (s *Select) DepthOf(fk *entity.Property) int {
	if depth, ok := s.ForeignKeyFetchDepths[fk.ID]; ok {
		return depth
	}
	if s.FetchDepth != nil {
		if *s.FetchDepth < 0 && isCyclic(fk) {
			return fk.DefaultFetchDepth()
		}
		return *s.FetchDepth
	}

	return fk.DefaultFetchDepth()
}

func isCyclic(fk *entity.Property) bool {
	var def = fk.Definition()
	return def != nil && def.Catalog().IsCyclic(fk)
}

// Validate checks s against the catalog and returns the selected entity type
func (s *Select) Validate(c *entity.Catalog) (*entity.Definition, error) {
	var def, err = c.Definition(s.EntityType)
	if err != nil {
		return nil, err
	}

	for _, term := range s.OrderBy {
		var id, _ = entity.SplitOrder(term)
		var p, err = def.Property(id)
		if err != nil {
			return nil, fmt.Errorf("criteria: order by: %w", err)
		}
		if p.Kind != entity.ColumnKind {
			return nil, fmt.Errorf("criteria: cannot order by %s property '%s'", p.Kind, p)
		}
	}

	var fkIDs = make([]string, 0, len(s.ForeignKeyFetchDepths))
	for id := range s.ForeignKeyFetchDepths {
		fkIDs = append(fkIDs, id)
	}
	sort.Strings(fkIDs)

	for _, id := range fkIDs {
		var p, err = def.Property(id)
		if err != nil {
			return nil, fmt.Errorf("criteria: fetch depth: %w", err)
		}
		if p.Kind != entity.ForeignKeyKind {
			return nil, fmt.Errorf("criteria: fetch depth set on '%s', which is not a foreign key", p)
		}
		if s.ForeignKeyFetchDepths[id] < 0 && c.IsCyclic(p) {
			return nil, fmt.Errorf("criteria: foreign key '%s' lies on a reference cycle, its fetch depth cannot be unlimited", p)
		}
	}

	return def, nil
}

// Order returns the effective ordering terms of s
func (s *Select) Order(def *entity.Definition) []string {
	if s.OrderBy != nil {
		return s.OrderBy
	}

	return def.OrderBy
}

// ExplicitDepth reports whether the caller of s set the fetch depth of fk,
// either per foreign key or as a blanket depth
func (s *Select) ExplicitDepth(fk *entity.Property) bool {
	if _, ok := s.ForeignKeyFetchDepths[fk.ID]; ok {
		return true
	}

	return s.FetchDepth != nil && !s.carried
}

// Referenced returns the select resolving the entities fk points to: the
// referenced keys, with the depth limit of fk as blanket fetch depth.
// explicit tells whether that limit was set by the caller.
func Referenced(fk *entity.Property, depth int, explicit bool, keys []entity.Key) *Select {
	var r = ByKeys(keys...)
	r.EntityType = fk.References
	r.FetchDepth = entity.Depth(depth)
	r.carried = !explicit

	return r
}

func (s *Select) String() string {
	var sb strings.Builder
	sb.WriteString(s.EntityType)
	if s.Where != nil {
		sb.WriteString(" where ")
		sb.WriteString(Describe(s.Where))
	}
	if len(s.OrderBy) > 0 {
		sb.WriteString(" order by ")
		sb.WriteString(strings.Join(s.OrderBy, ", "))
	}
	if s.Limit > 0 {
		fmt.Fprintf(&sb, " limit %d", s.Limit)
	}
	if s.ForUpdate {
		sb.WriteString(" for update")
	}

	return sb.String()
}
