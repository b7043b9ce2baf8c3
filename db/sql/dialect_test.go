package sql

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acronis/perfkit/entitydb/db"
)

func mustDialect(t *testing.T, name db.DialectName) db.Dialect {
	t.Helper()

	d, err := DialectOf(name)
	require.NoError(t, err)
	return d
}

func TestDialectOf(t *testing.T) {
	for _, name := range []db.DialectName{db.SQLITE, db.SQLITE3, db.POSTGRES, db.MYSQL, db.MSSQL} {
		d := mustDialect(t, name)
		if name == db.SQLITE3 {
			name = db.SQLITE
		}
		assert.Equal(t, name, d.Name())
	}

	_, err := DialectOf("oracle")
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", mustDialect(t, db.SQLITE).Placeholder(3))
	assert.Equal(t, "?", mustDialect(t, db.MYSQL).Placeholder(0))
	assert.Equal(t, "$1", mustDialect(t, db.POSTGRES).Placeholder(0))
	assert.Equal(t, "$4", mustDialect(t, db.POSTGRES).Placeholder(3))
	assert.Equal(t, "@p2", mustDialect(t, db.MSSQL).Placeholder(1))
}

func TestInterpolate(t *testing.T) {
	var query = "select a from t where name = ? and n = ? and x is ?"
	var values = []interface{}{"O'Neil", int64(3), nil}

	text, err := mustDialect(t, db.SQLITE).Interpolate(query, values)
	require.NoError(t, err)
	assert.Equal(t, "select a from t where name = 'O''Neil' and n = 3 and x is NULL", text)

	text, err = mustDialect(t, db.POSTGRES).Interpolate(query, values)
	require.NoError(t, err)
	assert.Equal(t, "select a from t where name = 'O''Neil' and n = 3 and x is NULL", text)

	text, err = mustDialect(t, db.SQLITE).Interpolate("select 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "select 1", text)

	_, err = mustDialect(t, db.SQLITE).Interpolate(query, values[:1])
	assert.Error(t, err, "placeholder count mismatch")
}

func TestLimitAndLocking(t *testing.T) {
	top, tail := mustDialect(t, db.MSSQL).Limit(5)
	assert.Equal(t, " top 5", top)
	assert.Equal(t, "", tail)

	top, tail = mustDialect(t, db.POSTGRES).Limit(5)
	assert.Equal(t, "", top)
	assert.Equal(t, " limit 5", tail)

	assert.Equal(t, " for update nowait", db.ForUpdateClause(mustDialect(t, db.POSTGRES)))
	assert.Equal(t, " for update nowait", db.ForUpdateClause(mustDialect(t, db.MYSQL)))
	assert.Equal(t, "", db.ForUpdateClause(mustDialect(t, db.SQLITE)))
	assert.Equal(t, "", db.ForUpdateClause(mustDialect(t, db.MSSQL)))
}

func TestPostgresSchema(t *testing.T) {
	schema, cs, err := postgresSchemaAndConnString("postgres://localhost:5432/app?schema=crm")
	require.NoError(t, err)
	assert.Equal(t, "crm", schema)
	assert.Equal(t, "postgres://localhost:5432/app?sslmode=disable", cs)

	var d = &pgDialect{schemaName: schema}
	assert.Equal(t, "crm.employee", d.Table("employee"))
}

func TestLockUnavailable(t *testing.T) {
	var wrapped = func(err error) error { return errors.Join(errors.New("select failed"), err) }

	assert.True(t, mustDialect(t, db.POSTGRES).IsLockUnavailable(wrapped(&pq.Error{Code: "55P03"})))
	assert.False(t, mustDialect(t, db.POSTGRES).IsLockUnavailable(&pq.Error{Code: "23505"}))

	assert.True(t, mustDialect(t, db.MYSQL).IsLockUnavailable(wrapped(&mysql.MySQLError{Number: 3572})))
	assert.False(t, mustDialect(t, db.MYSQL).IsLockUnavailable(&mysql.MySQLError{Number: 1062}))

	assert.True(t, mustDialect(t, db.SQLITE).IsLockUnavailable(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, mustDialect(t, db.SQLITE).IsLockUnavailable(errors.New("other")))
}

func TestCanRollback(t *testing.T) {
	assert.False(t, mustDialect(t, db.MYSQL).CanRollback(mysql.ErrInvalidConn))
	assert.True(t, mustDialect(t, db.MYSQL).CanRollback(errors.New("duplicate")))
	assert.False(t, mustDialect(t, db.POSTGRES).CanRollback(&pq.Error{Code: "57014"}))
	assert.True(t, mustDialect(t, db.SQLITE).CanRollback(errors.New("any")))
}
