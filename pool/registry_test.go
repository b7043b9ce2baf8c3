package pool

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acronis/perfkit/entitydb/db"
	_ "github.com/acronis/perfkit/entitydb/db/sql" // sqlite connector
	"github.com/acronis/perfkit/entitydb/entity/entitytest"
	"github.com/acronis/perfkit/entitydb/persist"
)

func TestRegistry(t *testing.T) {
	var ctx = context.Background()
	var created = map[string]int{}
	var r = NewRegistry[*fakeResource](Config{MaxSize: 2}, func(ctx context.Context, credential string) (*fakeResource, error) {
		created[credential]++
		return newFakeFactory().create(ctx)
	}, nil)

	var scott, err = r.Pool(ctx, "scott")
	require.NoError(t, err)
	again, err := r.Pool(ctx, "scott")
	require.NoError(t, err)
	assert.Same(t, scott, again)

	admin, err := r.Pool(ctx, "admin")
	require.NoError(t, err)
	assert.NotSame(t, scott, admin)
	assert.Equal(t, []string{"admin", "scott"}, r.Credentials())

	res, err := admin.Checkout(ctx)
	require.NoError(t, err)
	require.NoError(t, admin.Checkin(ctx, res))
	assert.Equal(t, 1, created["admin"])

	require.NoError(t, r.Remove("admin"))
	assert.Equal(t, []string{"scott"}, r.Credentials())
	assert.True(t, res.closed.Load())

	require.NoError(t, r.Close())
	_, err = scott.Checkout(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Pool(ctx, "scott")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPersistConnections(t *testing.T) {
	var ctx = context.Background()
	var cfg = db.Config{ConnString: "sqlite://" + filepath.Join(t.TempDir(), "pool_test.db")}
	var catalog = entitytest.Catalog()

	var setup, err = db.Open(ctx, cfg)
	require.NoError(t, err)
	for _, ddl := range entitytest.SQLiteSchema {
		_, err = setup.ExecContext(ctx, ddl)
		require.NoError(t, err)
	}
	require.NoError(t, setup.Close())

	p, err := New[*persist.Connection](ctx, Config{MinSize: 1, MaxSize: 2}, func(ctx context.Context) (*persist.Connection, error) {
		return persist.Open(ctx, cfg, catalog, persist.DefaultOptions())
	}, nil)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Checkout(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.BeginTransaction(ctx))
	_, err = conn.Insert(ctx, catalog.MustDefinition(entitytest.Location).New().MustSet("name", "HQ"))
	require.NoError(t, err)
	require.NoError(t, p.Checkin(ctx, conn), "checkin commits the open transaction")

	again, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.False(t, again.IsTransactionOpen())

	n, err := again.SelectRowCount(ctx, entitytest.Location, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, p.Checkin(ctx, again))
}
