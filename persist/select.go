package persist

import (
	"context"

	"github.com/acronis/perfkit/entitydb/criteria"
	"github.com/acronis/perfkit/entitydb/entity"
	"github.com/acronis/perfkit/entitydb/packer"
)

// Select returns the entities s describes with their foreign key references
// resolved up to the fetch depth of each key
func (c *Connection) Select(ctx context.Context, s *criteria.Select) ([]*entity.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, err
	}

	return c.selectTop(ctx, s)
}

// SelectSingle returns the entity with key k
func (c *Connection) SelectSingle(ctx context.Context, k entity.Key) (*entity.Entity, error) {
	return c.SelectSingleWhere(ctx, criteria.ByKeys(k))
}

// SelectSingleWhere returns the only entity s matches, NotFoundError and
// AmbiguousError report zero and several rows
func (c *Connection) SelectSingleWhere(ctx context.Context, s *criteria.Select) (*entity.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, err
	}

	var single = *s
	single.Limit = 2

	var result, err = c.selectTop(ctx, &single)
	if err != nil {
		return nil, err
	}

	switch len(result) {
	case 0:
		return nil, &NotFoundError{EntityType: s.EntityType, Criteria: s.String()}
	case 1:
		return result[0], nil
	default:
		return nil, &AmbiguousError{EntityType: s.EntityType, Criteria: s.String(), Rows: int64(len(result))}
	}
}

// SelectByKeys returns the entities with the given keys, which may be of
// several entity types; one select is issued per type
func (c *Connection) SelectByKeys(ctx context.Context, keys ...entity.Key) ([]*entity.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, err
	}

	return c.selectByKeys(ctx, keys)
}

func (c *Connection) selectByKeys(ctx context.Context, keys []entity.Key) ([]*entity.Entity, error) {
	var result []*entity.Entity
	for _, group := range groupKeys(keys) {
		var entities, err = c.selectTop(ctx, criteria.ByKeys(group...))
		if err != nil {
			return nil, err
		}
		result = append(result, entities...)
	}

	return result, nil
}

// SelectRowCount counts the rows of entityType matching where, nil counts all rows
func (c *Connection) SelectRowCount(ctx context.Context, entityType string, where criteria.Condition) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return 0, err
	}

	var def, err = c.definition(entityType)
	if err != nil {
		return 0, err
	}

	st, err := c.builder.Count(def, where)
	if err != nil {
		return 0, &ValidationError{EntityType: entityType, Err: err}
	}

	return c.count(ctx, st)
}

// SelectValues returns the distinct non-null values of one column property
func (c *Connection) SelectValues(ctx context.Context, entityType string, propertyID string,
	where criteria.Condition, ordered bool) ([]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, err
	}

	var def, err = c.definition(entityType)
	if err != nil {
		return nil, err
	}

	var p *entity.Property
	if p, err = def.Property(propertyID); err != nil {
		return nil, &ValidationError{EntityType: entityType, Err: err}
	}

	st, err := c.builder.Distinct(p, where, ordered)
	if err != nil {
		return nil, &ValidationError{EntityType: entityType, Err: err}
	}

	rows, err := c.query(ctx, st)
	if err != nil {
		return nil, err
	}

	var values []interface{}
	if values, err = packer.Values(p, rows); err != nil {
		return nil, c.storageError(st, err)
	}

	return values, nil
}

// SelectDependents returns the entities referencing any of the given entities
// through a foreign key, keyed by entity type. Types without dependents are absent.
func (c *Connection) SelectDependents(ctx context.Context, entities ...*entity.Entity) (map[string][]*entity.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, err
	}

	var keys = make([]entity.Key, len(entities))
	for i, e := range entities {
		keys[i] = e.OriginalKey()
	}

	var dependents = make(map[string][]*entity.Entity)
	var seen = make(map[string]bool)

	for _, group := range groupKeys(keys) {
		for _, fk := range c.catalog.ReferencingForeignKeys(group[0].Type()) {
			var found, err = c.selectTop(ctx, criteria.Matching(fk.Owner(), criteria.ForeignKeyIn(fk, group...)))
			if err != nil {
				return nil, err
			}
			for _, d := range found {
				var id = d.Key().String()
				if seen[id] {
					continue
				}
				seen[id] = true
				dependents[d.Type()] = append(dependents[d.Type()], d)
			}
		}
	}

	return dependents, nil
}

// selectTop runs a select issued by the caller; locking selects need a transaction
func (c *Connection) selectTop(ctx context.Context, s *criteria.Select) ([]*entity.Entity, error) {
	if !s.ForUpdate || c.tx == txCallerManaged {
		return c.selectEntities(ctx, s, 0)
	}

	var result []*entity.Entity
	var err = c.execute(ctx, func() error {
		var err error
		result, err = c.selectEntities(ctx, s, 0)
		return err
	})

	return result, err
}

// selectEntities selects the entities s describes, depth is the number of
// foreign key hops already taken to reach them
func (c *Connection) selectEntities(ctx context.Context, s *criteria.Select, depth int) ([]*entity.Entity, error) {
	var def, err = s.Validate(c.catalog)
	if err != nil {
		return nil, &ValidationError{EntityType: s.EntityType, Err: err}
	}

	st, err := c.builder.Select(def, s)
	if err != nil {
		return nil, &ValidationError{EntityType: s.EntityType, Err: err}
	}

	rows, err := c.query(ctx, st)
	if err != nil {
		return nil, err
	}

	var maxRows = -1
	if s.Limit > 0 {
		maxRows = s.Limit
	}

	var entities []*entity.Entity
	if entities, err = packer.Entities(def, rows, maxRows).All(); err != nil {
		return nil, c.storageError(st, err)
	}

	if err = c.resolve(ctx, def, entities, s, depth); err != nil {
		return nil, err
	}

	return entities, nil
}

// resolve populates the foreign key references of a batch of entities of def.
// All references of one foreign key are read with a single select.
func (c *Connection) resolve(ctx context.Context, def *entity.Definition, entities []*entity.Entity,
	s *criteria.Select, depth int) error {
	if len(entities) == 0 {
		return nil
	}

	for _, fk := range def.ForeignKeys() {
		if fk.Lazy {
			for _, e := range entities {
				if err := c.attachStub(e, fk); err != nil {
					return err
				}
			}
			continue
		}

		var limit = s.DepthOf(fk)
		var explicit = s.ExplicitDepth(fk)
		if !c.opts.LimitFetchDepth && !explicit && !c.catalog.IsCyclic(fk) {
			limit = entity.UnlimitedDepth
		}
		if limit >= 0 && depth >= limit {
			continue
		}

		var keys []entity.Key
		var distinct = make(map[string]bool)
		for _, e := range entities {
			var key, ok = e.ReferencedKey(fk.ID)
			if !ok {
				continue
			}
			if id := key.String(); !distinct[id] {
				distinct[id] = true
				keys = append(keys, key)
			}
		}

		var byKey = make(map[string]*entity.Entity, len(keys))
		if len(keys) > 0 {
			var referenced, err = c.selectEntities(ctx, criteria.Referenced(fk, limit, explicit, keys), depth+1)
			if err != nil {
				return err
			}
			for _, r := range referenced {
				byKey[r.Key().String()] = r
			}
		}

		for _, e := range entities {
			var key, ok = e.ReferencedKey(fk.ID)
			if !ok {
				if err := e.Load(fk.ID, nil); err != nil {
					return err
				}
				continue
			}

			var ref = byKey[key.String()]
			if ref == nil {
				ref = key.Stub()
			}
			if err := e.Load(fk.ID, ref); err != nil {
				return err
			}
		}
	}

	return nil
}

// attachStub sets a reference that is never read to a key-only entity
func (c *Connection) attachStub(e *entity.Entity, fk *entity.Property) error {
	var key, ok = e.ReferencedKey(fk.ID)
	if !ok {
		return e.Load(fk.ID, nil)
	}

	return e.Load(fk.ID, key.Stub())
}

// groupKeys splits keys by entity type, keeping the order of first appearance
func groupKeys(keys []entity.Key) [][]entity.Key {
	var index = make(map[string]int)
	var groups [][]entity.Key
	for _, k := range keys {
		var i, ok = index[k.Type()]
		if !ok {
			i = len(groups)
			index[k.Type()] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], k)
	}

	return groups
}
