package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	dbrdialect "github.com/gocraft/dbr/v2/dialect"

	"github.com/acronis/perfkit/entitydb/db"
)

func init() {
	if err := db.Register("mysql", &mysqlConnector{}); err != nil {
		panic(err)
	}
}

// ER_LOCK_NOWAIT: "Statement aborted because lock(s) could not be acquired immediately and NOWAIT is set"
const mysqlLockNoWait = 3572

type mysqlDialect struct{}

func (d *mysqlDialect) Name() db.DialectName {
	return db.MYSQL
}

func (d *mysqlDialect) Placeholder(index int) string {
	return dbrdialect.MySQL.Placeholder(index)
}

func (d *mysqlDialect) Interpolate(query string, values []interface{}) (string, error) {
	return interpolate(query, values, dbrdialect.MySQL)
}

func (d *mysqlDialect) Table(table string) string {
	return table
}

func (d *mysqlDialect) Limit(n int) (string, string) {
	return limitTail(n)
}

func (d *mysqlDialect) SupportsRowLocking() bool {
	return true
}

func (d *mysqlDialect) SupportsNoWait() bool {
	return true
}

func (d *mysqlDialect) LastInsertID(ctx context.Context, q db.Querier, table string, column string) (int64, error) {
	return scanInt64(q.QueryRowContext(ctx, "select last_insert_id()"))
}

// NextValue uses MariaDB sequences
func (d *mysqlDialect) NextValue(ctx context.Context, q db.Querier, sequence string) (int64, error) {
	return scanInt64(q.QueryRowContext(ctx, fmt.Sprintf("select nextval(%s)", sequence)))
}

func (d *mysqlDialect) IsLockUnavailable(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlLockNoWait
	}

	return false
}

func (d *mysqlDialect) CanRollback(err error) bool {
	return !errors.Is(err, mysql.ErrInvalidConn)
}

type mysqlConnector struct{}

func (c *mysqlConnector) Connect(ctx context.Context, cfg db.Config) (db.Conn, error) {
	var _, cs, err = db.ParseScheme(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("db: cannot parse mysql db path, err: %v", err)
	}

	var separator = "?"
	if strings.Contains(cs, "?") {
		separator = "&"
	}

	return openConn(ctx, "mysql", cs+separator+"parseTime=true", &mysqlDialect{}, cfg)
}

func (c *mysqlConnector) DialectName(scheme string) (db.DialectName, error) {
	return db.MYSQL, nil
}
