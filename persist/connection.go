// Package persist executes entity operations on one physical database connection.
//
// A Connection serializes its operations. Every write runs in a transaction of
// its own unless the caller opened one with BeginTransaction, in which case the
// caller ends it.
package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/perfkit/entitydb/criteria"
	"github.com/acronis/perfkit/entitydb/db"
	"github.com/acronis/perfkit/entitydb/entity"
	"github.com/acronis/perfkit/entitydb/logger"
	"github.com/acronis/perfkit/entitydb/packer"
	"github.com/acronis/perfkit/entitydb/statement"
)

var connCounter = atomic.NewInt32(0)

// Connection is one physical connection plus the entity operations bound to it
type Connection struct {
	mu sync.Mutex

	id      int
	conn    db.Conn
	catalog *entity.Catalog
	builder statement.Builder
	opts    Options
	logger  logger.Logger

	tx     txState
	broken bool
	closed bool
	trace  *ring
}

// Open connects to the database described by cfg
func Open(ctx context.Context, cfg db.Config, catalog *entity.Catalog, opts Options) (*Connection, error) {
	if opts.Logger == nil {
		opts.Logger = cfg.SystemLogger
	}
	if cfg.QueryStringInterpolation {
		opts.Style = criteria.Literals
	}

	var conn, err = db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return New(conn, catalog, opts), nil
}

// New binds the entity operations of catalog to conn; the connection owns conn from now on
func New(conn db.Conn, catalog *entity.Catalog, opts Options) *Connection {
	var base = opts.Logger
	if base == nil {
		base = logger.Nop()
	}

	var id = int(connCounter.Inc())
	var c = &Connection{
		id:      id,
		conn:    conn,
		catalog: catalog,
		builder: statement.Builder{Dialect: conn.Dialect()},
		opts:    opts,
		logger:  logger.NewConnLogger(base, id),
		trace:   newRing(opts.TraceSize),
	}
	c.logger.Debug("connected to %s", conn.Dialect().Name())

	return c
}

// ID returns the process-wide number of the connection, as used in log prefixes
func (c *Connection) ID() int {
	return c.id
}

// Catalog returns the schema the connection operates on
func (c *Connection) Catalog() *entity.Catalog {
	return c.catalog
}

// Timings returns the cumulative statement times of the physical connection
func (c *Connection) Timings() *db.Timings {
	return c.conn.Timings()
}

// Trace returns the most recent statements, oldest first
func (c *Connection) Trace() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.trace.snapshot()
}

// ResetTrace forgets the recorded statements
func (c *Connection) ResetTrace() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.trace.reset()
}

// BeginTransaction opens a caller-managed transaction
func (c *Connection) BeginTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.tx == txCallerManaged {
		return ErrTransactionOpen
	}
	if err := c.conn.Begin(ctx); err != nil {
		return &StorageError{Statement: "begin", Err: err}
	}
	c.tx = txCallerManaged

	return nil
}

// CommitTransaction commits the caller-managed transaction
func (c *Connection) CommitTransaction() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commitTransaction()
}

func (c *Connection) commitTransaction() error {
	if c.tx != txCallerManaged {
		return ErrNoTransaction
	}
	c.tx = txNone
	if err := c.conn.Commit(); err != nil {
		return &StorageError{Statement: "commit", Err: err}
	}

	return nil
}

// RollbackTransaction rolls the caller-managed transaction back
func (c *Connection) RollbackTransaction() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != txCallerManaged {
		return ErrNoTransaction
	}
	c.tx = txNone
	if err := c.conn.Rollback(); err != nil {
		return &StorageError{Statement: "rollback", Err: err}
	}

	return nil
}

// IsTransactionOpen reports whether the caller opened a transaction that is not ended yet
func (c *Connection) IsTransactionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tx == txCallerManaged
}

// IsValid reports whether the physical connection is still usable
func (c *Connection) IsValid(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.broken {
		return false
	}

	return c.conn.Ping(ctx) == nil
}

// Reset prepares the connection for its next user, an open transaction is committed
func (c *Connection) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.tx == txCallerManaged {
		c.logger.Debug("committing transaction left open")
		if err := c.commitTransaction(); err != nil {
			return err
		}
	}
	c.trace.reset()

	return nil
}

// Close rolls back an open transaction and disconnects
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.tx = txNone
	c.logger.Debug("disconnecting")

	return c.conn.Close()
}

// execute runs fn in a transaction unless the caller opened one
func (c *Connection) execute(ctx context.Context, fn func() error) error {
	var state = c.tx
	if state == txNone {
		if err := c.conn.Begin(ctx); err != nil {
			return c.storageError(statement.Statement{Text: "begin"}, err)
		}
	}

	var err = fn()
	switch decide(state, err) {
	case txCommit:
		if cerr := c.conn.Commit(); cerr != nil {
			return c.storageError(statement.Statement{Text: "commit"}, cerr)
		}
	case txRollback:
		c.rollback(err)
	case txLeave:
	}

	return err
}

func (c *Connection) rollback(cause error) {
	if !c.conn.InTransaction() {
		return
	}

	if err := c.conn.Rollback(); err != nil {
		if !c.conn.Dialect().CanRollback(cause) {
			c.broken = true
			c.logger.Error("connection lost, rollback failed: %v", err)
			return
		}
		c.logger.Warn("rollback failed: %v", err)
	}
}

func (c *Connection) check() error {
	if c.closed {
		return ErrClosed
	}

	return nil
}

func (c *Connection) finalize(st statement.Statement) (string, []interface{}, error) {
	var text, args, err = statement.Finalize(st, c.conn.Dialect(), c.opts.Style)
	if err != nil {
		return "", nil, &ValidationError{Err: err}
	}

	return text, args, nil
}

func (c *Connection) record(st statement.Statement, since time.Time, err error) {
	var rec = Record{At: since, Text: st.Text, Values: st.Values, Duration: time.Since(since), Err: err}
	c.trace.add(rec)
	c.logger.Trace("%s", rec)
}

// recorder runs dialect issued statements on the connection and records them
type recorder struct {
	c *Connection
}

func (r recorder) ExecContext(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	var since = time.Now()
	var res, err = r.c.conn.ExecContext(ctx, query, args...)
	r.c.record(statement.Statement{Text: query, Values: args}, since, err)

	return res, err
}

func (r recorder) QueryContext(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	var since = time.Now()
	var rows, err = r.c.conn.QueryContext(ctx, query, args...)
	r.c.record(statement.Statement{Text: query, Values: args}, since, err)

	return rows, err
}

func (r recorder) QueryRowContext(ctx context.Context, query string, args ...interface{}) db.Row {
	return &recordedRow{
		row:   r.c.conn.QueryRowContext(ctx, query, args...),
		c:     r.c,
		st:    statement.Statement{Text: query, Values: args},
		since: time.Now(),
	}
}

// recordedRow records its statement once scanned
type recordedRow struct {
	row   db.Row
	c     *Connection
	st    statement.Statement
	since time.Time
}

func (r *recordedRow) Scan(dest ...interface{}) error {
	var err = r.row.Scan(dest...)
	r.c.record(r.st, r.since, err)

	return err
}

func (c *Connection) storageError(st statement.Statement, err error) error {
	return &StorageError{
		Statement: st.Text,
		Values:    st.Values,
		RowLocked: c.conn.Dialect().IsLockUnavailable(err),
		Err:       err,
	}
}

// exec runs a statement and returns the number of affected rows
func (c *Connection) exec(ctx context.Context, st statement.Statement) (int64, error) {
	var text, args, err = c.finalize(st)
	if err != nil {
		return 0, err
	}

	var since = time.Now()
	var res db.Result
	var affected int64
	if res, err = c.conn.ExecContext(ctx, text, args...); err == nil {
		affected, err = res.RowsAffected()
	}
	c.record(st, since, err)
	if err != nil {
		return 0, c.storageError(st, err)
	}

	return affected, nil
}

// query runs a statement returning rows, the caller closes them
func (c *Connection) query(ctx context.Context, st statement.Statement) (db.Rows, error) {
	var text, args, err = c.finalize(st)
	if err != nil {
		return nil, err
	}

	var since = time.Now()
	var rows db.Rows
	rows, err = c.conn.QueryContext(ctx, text, args...)
	c.record(st, since, err)
	if err != nil {
		return nil, c.storageError(st, err)
	}

	return rows, nil
}

// count runs a statement returning a single integer
func (c *Connection) count(ctx context.Context, st statement.Statement) (int64, error) {
	var text, args, err = c.finalize(st)
	if err != nil {
		return 0, err
	}

	var since = time.Now()
	var n int64
	n, err = packer.Count(c.conn.QueryRowContext(ctx, text, args...))
	c.record(st, since, err)
	if err != nil {
		return 0, c.storageError(st, err)
	}

	return n, nil
}

func (c *Connection) definition(entityType string) (*entity.Definition, error) {
	var def, err = c.catalog.Definition(entityType)
	if err != nil {
		return nil, &ValidationError{EntityType: entityType, Err: err}
	}

	return def, nil
}

func (c *Connection) writable(def *entity.Definition) error {
	if def.ReadOnly {
		return &ReadOnlyError{EntityType: def.Name}
	}

	return nil
}
