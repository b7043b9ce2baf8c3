package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/acronis/perfkit/entitydb/criteria"
	"github.com/acronis/perfkit/entitydb/entity"
	"github.com/acronis/perfkit/entitydb/packer"
	"github.com/acronis/perfkit/entitydb/statement"
)

// Insert writes new entities and returns their keys. Generated keys are set on
// the entities as well.
func (c *Connection) Insert(ctx context.Context, entities ...*entity.Entity) ([]entity.Key, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, err
	}

	for _, e := range entities {
		var def = e.Definition()
		if err := c.writable(def); err != nil {
			return nil, err
		}
		if !insertable(e) {
			return nil, &ValidationError{EntityType: def.Name,
				Err: fmt.Errorf("%w: entity has no non-null values", statement.ErrNothingToWrite)}
		}
	}

	var keys = make([]entity.Key, 0, len(entities))
	var err = c.execute(ctx, func() error {
		for _, e := range entities {
			if err := c.insert(ctx, e); err != nil {
				return err
			}
			keys = append(keys, e.Key())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

func (c *Connection) insert(ctx context.Context, e *entity.Entity) error {
	var def = e.Definition()
	if err := c.generateKey(ctx, e); err != nil {
		return err
	}

	var st, err = c.builder.Insert(e)
	if err != nil {
		return &ValidationError{EntityType: def.Name, Err: err}
	}
	if _, err = c.exec(ctx, st); err != nil {
		return err
	}

	if def.IDGeneration != entity.AutoIncrement || len(def.PrimaryKey()) != 1 {
		return nil
	}

	var pk = def.PrimaryKey()[0]
	if !e.IsNull(pk.ID) {
		return nil
	}

	var id int64
	if id, err = c.conn.Dialect().LastInsertID(ctx, recorder{c}, c.conn.Dialect().Table(def.Table), pk.Column); err != nil {
		return c.storageError(statement.Statement{Text: "last insert id of " + def.Table}, err)
	}

	return e.Set(pk.ID, id)
}

// generateKey fills a missing single-column primary key ahead of the insert
func (c *Connection) generateKey(ctx context.Context, e *entity.Entity) error {
	var def = e.Definition()
	if len(def.PrimaryKey()) != 1 {
		return nil
	}

	var pk = def.PrimaryKey()[0]
	if !e.IsNull(pk.ID) {
		return nil
	}

	var value interface{}
	switch def.IDGeneration {
	case entity.Sequence:
		var next, err = c.conn.Dialect().NextValue(ctx, recorder{c}, def.Sequence)
		if err != nil {
			return c.storageError(statement.Statement{Text: "next value of " + def.Sequence}, err)
		}
		value = next
	case entity.MaxPlusOne:
		var next, err = c.count(ctx, c.builder.MaxPlusOne(def))
		if err != nil {
			return err
		}
		value = next
	case entity.UUID:
		value = uuid.NewString()
	default:
		return nil
	}

	c.logger.Trace("generated %s key %v", def.IDGeneration, value)

	return e.Set(pk.ID, value)
}

// insertable reports whether an insert of e writes at least one value
func insertable(e *entity.Entity) bool {
	var def = e.Definition()
	if def.IDGeneration != entity.Manual && def.IDGeneration != entity.AutoIncrement && len(def.PrimaryKey()) == 1 {
		return true
	}

	for _, p := range def.Properties {
		if p.IsWritable() && !e.IsNull(p.ID) {
			return true
		}
	}

	return false
}

// Update writes the modified values of entities and returns them as re-selected
// after the write. With optimistic locking the stored rows are compared with
// the original values first.
func (c *Connection) Update(ctx context.Context, entities ...*entity.Entity) ([]*entity.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, err
	}

	var statements = make([]statement.Statement, len(entities))
	for i, e := range entities {
		var def = e.Definition()
		if err := c.writable(def); err != nil {
			return nil, err
		}

		var st, err = c.builder.Update(e)
		if err != nil {
			return nil, &ValidationError{EntityType: def.Name, Err: err}
		}
		statements[i] = st
	}

	var updated []*entity.Entity
	var err = c.execute(ctx, func() error {
		if c.opts.OptimisticLocking {
			if err := c.checkConflicts(ctx, entities); err != nil {
				return err
			}
		}

		for i, e := range entities {
			var n, err = c.exec(ctx, statements[i])
			if err != nil {
				return err
			}
			switch {
			case n == 0:
				return &ConflictError{Kind: Deleted, Stale: e}
			case n > 1:
				return &AmbiguousError{EntityType: e.Type(), Criteria: statements[i].String(), Rows: n}
			}
		}

		var err error
		updated, err = c.reselect(ctx, entities)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// reselect reads entities back by their current keys, in the given order.
// Rows hidden from selects are returned as saved copies.
func (c *Connection) reselect(ctx context.Context, entities []*entity.Entity) ([]*entity.Entity, error) {
	var keys = make([]entity.Key, len(entities))
	for i, e := range entities {
		keys[i] = e.Key()
	}

	var found, err = c.selectByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	var byKey = make(map[string]*entity.Entity, len(found))
	for _, e := range found {
		byKey[e.Key().String()] = e
	}

	var result = make([]*entity.Entity, len(entities))
	for i, e := range entities {
		if result[i] = byKey[keys[i].String()]; result[i] == nil {
			result[i] = e.Copy()
			result[i].Save()
		}
	}

	return result, nil
}

// Delete removes the rows with the given keys; NotFoundError reports keys
// without a row, nothing is deleted then
func (c *Connection) Delete(ctx context.Context, keys ...entity.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return err
	}

	var groups = groupKeys(keys)
	var statements = make([]statement.Statement, len(groups))
	for i, group := range groups {
		var def = group[0].Definition()
		if def == nil {
			return &ValidationError{Err: errors.New("cannot delete the zero key")}
		}
		if err := c.writable(def); err != nil {
			return err
		}

		var st, err = c.builder.Delete(def, criteria.KeysIn(group...))
		if err != nil {
			return &ValidationError{EntityType: def.Name, Err: err}
		}
		statements[i] = st
	}

	return c.execute(ctx, func() error {
		for i, group := range groups {
			var n, err = c.exec(ctx, statements[i])
			if err != nil {
				return err
			}
			if n != int64(distinctKeys(group)) {
				return &NotFoundError{EntityType: group[0].Type(), Criteria: criteria.Describe(criteria.KeysIn(group...))}
			}
		}
		return nil
	})
}

// DeleteWhere removes the rows of entityType matching where and returns their number
func (c *Connection) DeleteWhere(ctx context.Context, entityType string, where criteria.Condition) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return 0, err
	}

	var def, err = c.definition(entityType)
	if err != nil {
		return 0, err
	}
	if err = c.writable(def); err != nil {
		return 0, err
	}

	st, err := c.builder.Delete(def, where)
	if err != nil {
		return 0, &ValidationError{EntityType: entityType, Err: err}
	}

	var deleted int64
	err = c.execute(ctx, func() error {
		var err error
		deleted, err = c.exec(ctx, st)
		return err
	})

	return deleted, err
}

func distinctKeys(keys []entity.Key) int {
	var seen = make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k.String()] = true
	}

	return len(seen)
}

// ReadBlob reads one blob property of the row with key k, nil for a null blob
func (c *Connection) ReadBlob(ctx context.Context, k entity.Key, propertyID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, err
	}

	var p, st, err = c.blobStatement(k, propertyID, func(p *entity.Property) (statement.Statement, error) {
		return c.builder.ReadBlob(p, k)
	})
	if err != nil {
		return nil, err
	}

	rows, err := c.query(ctx, st)
	if err != nil {
		return nil, err
	}

	var values []interface{}
	if values, err = packer.Values(p, rows); err != nil {
		return nil, c.storageError(st, err)
	}
	if len(values) == 0 {
		return nil, &NotFoundError{EntityType: k.Type(), Criteria: k.String()}
	}

	var data, _ = values[0].([]byte)

	return data, nil
}

// WriteBlob replaces one blob property of the row with key k
func (c *Connection) WriteBlob(ctx context.Context, k entity.Key, propertyID string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(); err != nil {
		return err
	}

	var _, st, err = c.blobStatement(k, propertyID, func(p *entity.Property) (statement.Statement, error) {
		if err := c.writable(p.Definition()); err != nil {
			return statement.Statement{}, err
		}
		return c.builder.WriteBlob(p, k, data)
	})
	if err != nil {
		return err
	}

	return c.execute(ctx, func() error {
		var n, err = c.exec(ctx, st)
		if err != nil {
			return err
		}
		if n != 1 {
			return &NotFoundError{EntityType: k.Type(), Criteria: k.String()}
		}
		return nil
	})
}

func (c *Connection) blobStatement(k entity.Key, propertyID string,
	build func(p *entity.Property) (statement.Statement, error)) (*entity.Property, statement.Statement, error) {
	var def = k.Definition()
	if def == nil || k.IsNull() {
		return nil, statement.Statement{}, &ValidationError{Err: fmt.Errorf("blob '%s' of a null key", propertyID)}
	}

	var p, err = def.Property(propertyID)
	if err != nil {
		return nil, statement.Statement{}, &ValidationError{EntityType: def.Name, Err: err}
	}

	var st statement.Statement
	if st, err = build(p); err != nil {
		var readOnly *ReadOnlyError
		if errors.As(err, &readOnly) {
			return nil, statement.Statement{}, err
		}
		return nil, statement.Statement{}, &ValidationError{EntityType: def.Name, Err: err}
	}

	return p, st, nil
}
