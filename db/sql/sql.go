package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/acronis/perfkit/entitydb/db"
)

/*
 * Physical connection management
 */

var (
	errTxAlreadyOpen = errors.New("db: transaction is already open")
	errNoTx          = errors.New("db: no open transaction")
)

// executor is satisfied by both *sql.Conn and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqlConn pins exactly one connection of a database/sql pool limited to one
// connection, so that session state (last insert id, transaction) is never
// shared with another caller.
type sqlConn struct {
	rwc     *sql.DB
	conn    *sql.Conn
	tx      *sql.Tx
	dialect db.Dialect
	timings *db.Timings

	queryTimeout   time.Duration
	logTime        bool
	queryLogger    db.Logger
	readRowsLogger db.Logger

	onClose func() error
}

// openConn opens driverName/dsn, pins its only connection and verifies it
func openConn(ctx context.Context, driverName string, dsn string, dia db.Dialect, cfg db.Config) (*sqlConn, error) {
	var rwc, err = sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: cannot open %s db at %v, err: %v", dia.Name(), sanitizeConn(cfg.ConnString), err)
	}

	rwc.SetMaxOpenConns(1)
	rwc.SetMaxIdleConns(1)

	var conn *sql.Conn
	if conn, err = rwc.Conn(ctx); err != nil {
		_ = rwc.Close()
		return nil, fmt.Errorf("db: cannot connect to %s db at %v, err: %v", dia.Name(), sanitizeConn(cfg.ConnString), err)
	}

	if err = conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = rwc.Close()
		return nil, fmt.Errorf("db: failed ping %s db at %v, err: %v", dia.Name(), sanitizeConn(cfg.ConnString), err)
	}

	return &sqlConn{
		rwc:            rwc,
		conn:           conn,
		dialect:        dia,
		timings:        db.NewTimings(),
		queryTimeout:   cfg.QueryTimeout,
		logTime:        cfg.LogOperationsTime,
		queryLogger:    cfg.QueryLogger,
		readRowsLogger: cfg.ReadRowsLogger,
	}, nil
}

func (c *sqlConn) Dialect() db.Dialect {
	return c.dialect
}

func (c *sqlConn) Timings() *db.Timings {
	return c.timings
}

func (c *sqlConn) executor() executor {
	if c.tx != nil {
		return c.tx
	}

	return c.conn
}

func (c *sqlConn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout > 0 {
		return context.WithTimeout(ctx, c.queryTimeout)
	}

	return ctx, func() {}
}

func (c *sqlConn) ExecContext(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	defer db.Account(c.timings.ExecTime, time.Now())
	c.timings.Statements.Inc()

	if c.queryLogger != nil {
		defer func(since time.Time) {
			logQuery(c.queryLogger, c.logTime, since, query, args...)
		}(time.Now())
	}

	var qctx, cancel = c.withTimeout(ctx)
	defer cancel()

	var res, err = c.executor().ExecContext(qctx, query, args...)
	if err != nil {
		c.timings.Failures.Inc()
		return nil, err
	}

	return res, nil
}

func (c *sqlConn) QueryContext(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	defer db.Account(c.timings.QueryTime, time.Now())
	c.timings.Statements.Inc()

	if c.queryLogger != nil {
		defer func(since time.Time) {
			logQuery(c.queryLogger, c.logTime, since, query, args...)
		}(time.Now())
	}

	var qctx, cancel = c.withTimeout(ctx)

	var rows, err = c.executor().QueryContext(qctx, query, args...)
	if err != nil {
		cancel()
		c.timings.Failures.Inc()
		return nil, err
	}

	return &wrappedRows{
		rows:           rows,
		cancel:         cancel,
		logTime:        c.logTime,
		readRowsLogger: c.readRowsLogger,
	}, nil
}

func (c *sqlConn) QueryRowContext(ctx context.Context, query string, args ...interface{}) db.Row {
	defer db.Account(c.timings.QueryTime, time.Now())
	c.timings.Statements.Inc()

	if c.queryLogger != nil {
		defer func(since time.Time) {
			logQuery(c.queryLogger, c.logTime, since, query, args...)
		}(time.Now())
	}

	var qctx, cancel = c.withTimeout(ctx)

	return &wrappedRow{
		row:            c.executor().QueryRowContext(qctx, query, args...),
		cancel:         cancel,
		logTime:        c.logTime,
		readRowsLogger: c.readRowsLogger,
	}
}

func (c *sqlConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errTxAlreadyOpen
	}

	defer db.Account(c.timings.BeginTime, time.Now())

	if c.queryLogger != nil {
		defer func(since time.Time) {
			logTxOperation(c.queryLogger, c.logTime, since, "BEGIN")
		}(time.Now())
	}

	var tx, err = c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx

	return nil
}

func (c *sqlConn) Commit() error {
	if c.tx == nil {
		return errNoTx
	}

	defer db.Account(c.timings.CommitTime, time.Now())

	if c.queryLogger != nil {
		defer func(since time.Time) {
			logTxOperation(c.queryLogger, c.logTime, since, "COMMIT")
		}(time.Now())
	}

	var tx = c.tx
	c.tx = nil

	return tx.Commit()
}

func (c *sqlConn) Rollback() error {
	if c.tx == nil {
		return errNoTx
	}

	defer db.Account(c.timings.RollbackTime, time.Now())

	if c.queryLogger != nil {
		defer func(since time.Time) {
			logTxOperation(c.queryLogger, c.logTime, since, "ROLLBACK")
		}(time.Now())
	}

	var tx = c.tx
	c.tx = nil

	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

func (c *sqlConn) InTransaction() bool {
	return c.tx != nil
}

// Ping verifies the pinned connection is still alive
func (c *sqlConn) Ping(ctx context.Context) error {
	var err = c.conn.PingContext(ctx)
	if err != nil && c.queryLogger != nil {
		c.queryLogger.Log("ping failed: %v", err)
	}

	return err
}

// Close rolls back an open transaction and releases the physical connection
func (c *sqlConn) Close() error {
	var errs []error
	if c.tx != nil {
		errs = append(errs, c.Rollback())
	}
	errs = append(errs, c.conn.Close(), c.rwc.Close())
	if c.onClose != nil {
		errs = append(errs, c.onClose())
	}

	return errors.Join(errs...)
}

func sanitizeConn(cs string) string {
	sanitized := cs
	u, _ := url.Parse(cs)
	if u != nil && u.User != nil {
		u.User = nil
		sanitized = u.String()
	}
	return sanitized
}
