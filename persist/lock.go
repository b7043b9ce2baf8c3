package persist

import (
	"context"

	"github.com/acronis/perfkit/entitydb/criteria"
	"github.com/acronis/perfkit/entitydb/entity"
)

// checkConflicts locks the rows of entities and compares them with the original
// values the entities were loaded with. Blobs are not compared.
func (c *Connection) checkConflicts(ctx context.Context, entities []*entity.Entity) error {
	var keys = make([]entity.Key, len(entities))
	var byKey = make(map[string]*entity.Entity, len(entities))
	for i, e := range entities {
		keys[i] = e.OriginalKey()
		byKey[keys[i].String()] = e.Copy()
	}

	for _, group := range groupKeys(keys) {
		var s = criteria.ByKeys(group...).Locking().WithFetchDepth(0)

		var current, err = c.selectEntities(ctx, s, 0)
		if err != nil {
			return err
		}

		var stored = make(map[string]*entity.Entity, len(current))
		for _, cur := range current {
			stored[cur.Key().String()] = cur
		}

		for _, k := range group {
			var stale = byKey[k.String()]
			var cur, ok = stored[k.String()]
			if !ok {
				return &ConflictError{Kind: Deleted, Stale: stale}
			}
			if id, differs := firstDifference(stale, cur); differs {
				return &ConflictError{Kind: Modified, Stale: stale, Current: cur, Property: id}
			}
		}
	}

	return nil
}

// firstDifference returns the first selected non-blob property whose original
// value in stale differs from cur, or which stale never held
func firstDifference(stale *entity.Entity, cur *entity.Entity) (string, bool) {
	for _, p := range stale.Definition().Selected() {
		if p.Kind == entity.BlobKind {
			continue
		}
		if !stale.Contains(p.ID) || !entity.Equal(stale.Original(p.ID), cur.Get(p.ID)) {
			return p.ID, true
		}
	}

	return "", false
}
