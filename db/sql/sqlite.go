package sql

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	dbrdialect "github.com/gocraft/dbr/v2/dialect"
	"github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/acronis/perfkit/entitydb/db"
)

func init() {
	if err := db.Register("sqlite", &sqliteConnector{}); err != nil {
		panic(err)
	}
}

// sqliteDialect has no row locks, transactions are opened with "begin immediate"
// so that a read inside a transaction already holds the database write lock
type sqliteDialect struct{}

func (d *sqliteDialect) Name() db.DialectName {
	return db.SQLITE
}

func (d *sqliteDialect) Placeholder(index int) string {
	return dbrdialect.SQLite3.Placeholder(index)
}

func (d *sqliteDialect) Interpolate(query string, values []interface{}) (string, error) {
	return interpolate(query, values, dbrdialect.SQLite3)
}

func (d *sqliteDialect) Table(table string) string {
	return table
}

func (d *sqliteDialect) Limit(n int) (string, string) {
	return limitTail(n)
}

func (d *sqliteDialect) SupportsRowLocking() bool {
	return false
}

func (d *sqliteDialect) SupportsNoWait() bool {
	return false
}

func (d *sqliteDialect) LastInsertID(ctx context.Context, q db.Querier, table string, column string) (int64, error) {
	return scanInt64(q.QueryRowContext(ctx, "select last_insert_rowid()"))
}

// NextValue emulates a sequence with a single-row table (sequence_id = 1, value)
func (d *sqliteDialect) NextValue(ctx context.Context, q db.Querier, sequence string) (int64, error) {
	var value, err = scanInt64(q.QueryRowContext(ctx, "select value from "+sequence+" where sequence_id = 1"))
	if err != nil {
		return 0, err
	}

	if _, err = q.ExecContext(ctx, "update "+sequence+" set value = value + 1 where sequence_id = 1"); err != nil {
		return 0, err
	}

	return value, nil
}

func (d *sqliteDialect) IsLockUnavailable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	return false
}

func (d *sqliteDialect) CanRollback(err error) bool {
	return true
}

type sqliteConnector struct{}

// sqliteDSN adds the connection parameters every sqlite connection needs
func sqliteDSN(path string) string {
	const params = "_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}

	return path + "?" + params
}

func (c *sqliteConnector) Connect(ctx context.Context, cfg db.Config) (db.Conn, error) {
	_, path, err := db.ParseScheme(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("db: cannot parse sqlite db path, err: %v", err)
	}

	if path == "" {
		return nil, fmt.Errorf("db: empty sqlite file path")
	}

	if !strings.Contains(path, ":memory:") && !strings.Contains(path, "mode=memory") && !filepath.IsAbs(path) {
		return nil, fmt.Errorf("db: filepath '%v' is not absolute", sanitizeConn(cfg.ConnString))
	}

	return openConn(ctx, "sqlite3", sqliteDSN(path), &sqliteDialect{}, cfg)
}

func (c *sqliteConnector) DialectName(scheme string) (db.DialectName, error) {
	return db.SQLITE, nil
}
