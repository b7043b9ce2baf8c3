package sql

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	dbrdialect "github.com/gocraft/dbr/v2/dialect"
	"github.com/lib/pq"

	"github.com/acronis/perfkit/entitydb/db"
	"github.com/acronis/perfkit/entitydb/db/pgmbed"
	"github.com/acronis/perfkit/entitydb/logger"
)

func init() {
	for _, pgNameStyle := range []string{"postgres", "postgresql"} {
		if err := db.Register(pgNameStyle, &pgConnector{}); err != nil {
			panic(err)
		}
	}
}

const (
	pgLockNotAvailable = "55P03"
	pgQueryCanceled    = "57014"
)

type pgDialect struct {
	schemaName string
}

func (d *pgDialect) Name() db.DialectName {
	return db.POSTGRES
}

func (d *pgDialect) Placeholder(index int) string {
	return dbrdialect.PostgreSQL.Placeholder(index)
}

func (d *pgDialect) Interpolate(query string, values []interface{}) (string, error) {
	return interpolate(query, values, dbrdialect.PostgreSQL)
}

func (d *pgDialect) Table(table string) string {
	if d.schemaName != "" {
		return d.schemaName + "." + table
	}

	return table
}

func (d *pgDialect) Limit(n int) (string, string) {
	return limitTail(n)
}

func (d *pgDialect) SupportsRowLocking() bool {
	return true
}

func (d *pgDialect) SupportsNoWait() bool {
	return true
}

func (d *pgDialect) LastInsertID(ctx context.Context, q db.Querier, table string, column string) (int64, error) {
	return scanInt64(q.QueryRowContext(ctx,
		fmt.Sprintf("select currval(pg_get_serial_sequence('%s', '%s'))", d.Table(table), column)))
}

func (d *pgDialect) NextValue(ctx context.Context, q db.Querier, sequence string) (int64, error) {
	return scanInt64(q.QueryRowContext(ctx, fmt.Sprintf("select nextval('%s')", d.Table(sequence))))
}

func (d *pgDialect) IsLockUnavailable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgLockNotAvailable
	}

	return false
}

func (d *pgDialect) CanRollback(err error) bool {
	// current pq lib will mark connection as "bad" after timeout and will return driver.ErrBadConn
	if errors.Is(err, context.Canceled) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgQueryCanceled {
		return false
	}

	return true
}

type pgConnector struct{}

func postgresSchemaAndConnString(cs string) (string, string, error) {
	const schemaParamName = "schema"
	const sslModeParamName = "sslmode"
	var schemaName string

	var u, err = url.Parse(cs)
	if err != nil {
		return "", "", fmt.Errorf("cannot parse connection url %v, err: %v", sanitizeConn(cs), err)
	}

	m, _ := url.ParseQuery(u.RawQuery)
	if s, ok := m[schemaParamName]; ok {
		schemaName = s[0]
		delete(m, schemaParamName)
	}
	// adding disable sslmode by default
	if _, ok := m[sslModeParamName]; !ok {
		m[sslModeParamName] = []string{"disable"}
	}
	u.RawQuery = m.Encode()

	return schemaName, u.String(), nil
}

func initializePostgresDB(cs string, logger logger.Logger) (string, *pgDialect, bool, error) {
	var embeddedPostgresOpts *pgmbed.Opts
	var err error
	if cs, embeddedPostgresOpts, err = pgmbed.ParseOptions(cs); err != nil {
		return "", nil, false, fmt.Errorf("db: postgres: %v", err)
	}

	var embedded bool
	if embeddedPostgresOpts != nil && embeddedPostgresOpts.Enabled {
		cs, err = pgmbed.Launch(cs, embeddedPostgresOpts, logger)
		if err != nil {
			return "", nil, false, fmt.Errorf("db: cannot initialize embedded postgres: %v", err)
		}
		embedded = true
	}

	var schemaName, cleanedConnectionString string
	if schemaName, cleanedConnectionString, err = postgresSchemaAndConnString(cs); err != nil {
		if embedded {
			_ = pgmbed.Terminate()
		}
		return "", nil, false, fmt.Errorf("db: postgres: %v", err)
	}

	return cleanedConnectionString, &pgDialect{schemaName: schemaName}, embedded, nil
}

func (c *pgConnector) Connect(ctx context.Context, cfg db.Config) (db.Conn, error) {
	var cs, dia, embedded, err = initializePostgresDB(cfg.ConnString, cfg.SystemLogger)
	if err != nil {
		return nil, err
	}

	var conn *sqlConn
	if conn, err = openConn(ctx, "postgres", cs, dia, cfg); err != nil {
		if embedded {
			_ = pgmbed.Terminate()
		}
		return nil, err
	}

	if embedded {
		conn.onClose = pgmbed.Terminate
	}

	return conn, nil
}

func (c *pgConnector) DialectName(scheme string) (db.DialectName, error) {
	return db.POSTGRES, nil
}
