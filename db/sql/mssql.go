package sql

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb" // mssql driver
	dbrdialect "github.com/gocraft/dbr/v2/dialect"

	"github.com/acronis/perfkit/entitydb/db"
)

// nolint: gochecknoinits // required by go-mssqldb
func init() {
	for _, msNameStyle := range []string{"mssql", "sqlserver"} {
		if err := db.Register(msNameStyle, &msConnector{}); err != nil {
			panic(err)
		}
	}
}

// "Lock request time out period exceeded"
const msLockTimeout = 1222

// msDialect does not append locking clauses, locks are table hints in sql server
type msDialect struct{}

func (d *msDialect) Name() db.DialectName {
	return db.MSSQL
}

func (d *msDialect) Placeholder(index int) string {
	return dbrdialect.MSSQL.Placeholder(index)
}

func (d *msDialect) Interpolate(query string, values []interface{}) (string, error) {
	return interpolate(query, values, dbrdialect.MSSQL)
}

func (d *msDialect) Table(table string) string {
	return table
}

func (d *msDialect) Limit(n int) (string, string) {
	return " top " + strconv.Itoa(n), ""
}

func (d *msDialect) SupportsRowLocking() bool {
	return false
}

func (d *msDialect) SupportsNoWait() bool {
	return false
}

// LastInsertID reads @@identity since scope_identity() is empty outside the inserting batch
func (d *msDialect) LastInsertID(ctx context.Context, q db.Querier, table string, column string) (int64, error) {
	return scanInt64(q.QueryRowContext(ctx, "select cast(@@identity as bigint)"))
}

func (d *msDialect) NextValue(ctx context.Context, q db.Querier, sequence string) (int64, error) {
	return scanInt64(q.QueryRowContext(ctx, "select next value for "+sequence))
}

func (d *msDialect) IsLockUnavailable(err error) bool {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == msLockTimeout
	}

	return false
}

func (d *msDialect) CanRollback(err error) bool {
	return true
}

type msConnector struct{}

func (c *msConnector) Connect(ctx context.Context, cfg db.Config) (db.Conn, error) {
	var cs = cfg.ConnString
	if strings.HasPrefix(cs, "mssql://") {
		cs = "sqlserver://" + strings.TrimPrefix(cs, "mssql://")
	}

	var conn, err = openConn(ctx, "sqlserver", cs, &msDialect{}, cfg)
	if err != nil {
		return nil, fmt.Errorf("sql: %v", err)
	}

	return conn, nil
}

func (c *msConnector) DialectName(scheme string) (db.DialectName, error) {
	return db.MSSQL, nil
}
