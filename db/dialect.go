package db

import "context"

// Dialect is the capability shim of one backing database. Statement text is
// generated with `?` placeholders and finalized per dialect.
type Dialect interface {
	Name() DialectName

	// Placeholder returns the bind marker for the zero-based parameter index
	Placeholder(index int) string

	// Interpolate embeds values into a `?` query as dialect-encoded literals
	Interpolate(query string, values []interface{}) (string, error)

	// Table qualifies a table name, e.g. with the configured schema
	Table(name string) string

	// Limit returns the clauses bounding a select to n rows: one placed right
	// after "select", the other at the end of the statement
	Limit(n int) (top string, tail string)

	// SupportsRowLocking reports whether "for update" may be appended to selects
	SupportsRowLocking() bool

	// SupportsNoWait reports whether row locks can be requested without blocking
	SupportsNoWait() bool

	// LastInsertID reads the key generated by the last insert on this connection
	LastInsertID(ctx context.Context, q Querier, table string, column string) (int64, error)

	// NextValue draws the next value from a sequence
	NextValue(ctx context.Context, q Querier, sequence string) (int64, error)

	// IsLockUnavailable recognizes failures of non-blocking row lock requests
	IsLockUnavailable(err error) bool

	// CanRollback reports whether the connection is still usable for a rollback after err
	CanRollback(err error) bool
}

// ForUpdateClause returns the row locking suffix for d, empty when d cannot lock rows
func ForUpdateClause(d Dialect) string {
	if !d.SupportsRowLocking() {
		return ""
	}
	if d.SupportsNoWait() {
		return " for update nowait"
	}

	return " for update"
}
