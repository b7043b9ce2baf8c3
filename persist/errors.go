package persist

import (
	"errors"
	"fmt"

	"github.com/acronis/perfkit/entitydb/db"
	"github.com/acronis/perfkit/entitydb/entity"
)

// Error kinds, every typed error of this package matches one of them with errors.Is
var (
	ErrNotFound            = errors.New("persist: not found")
	ErrAmbiguous           = errors.New("persist: more than one row found")
	ErrConcurrencyConflict = errors.New("persist: concurrency conflict")
	ErrReadOnly            = errors.New("persist: entity type is read-only")
	ErrValidation          = errors.New("persist: validation failed")
	ErrStorage             = errors.New("persist: storage failure")
	ErrRowLocked           = errors.New("persist: row is locked by another transaction")

	ErrTransactionOpen = errors.New("persist: transaction already open")
	ErrNoTransaction   = errors.New("persist: no open transaction")
	ErrClosed          = errors.New("persist: connection is closed")
)

// ConflictKind tells how another writer changed a row
type ConflictKind int

const (
	// Modified rows hold values differing from the original values of the stale entity
	Modified ConflictKind = iota
	// Deleted rows no longer exist
	Deleted
)

func (k ConflictKind) String() string {
	if k == Deleted {
		return "deleted"
	}

	return "modified"
}

// ConflictError reports an optimistic locking failure. Current is nil for deleted rows.
type ConflictError struct {
	Kind     ConflictKind
	Stale    *entity.Entity
	Current  *entity.Entity
	Property string // first differing property of a modified row
}

func (e *ConflictError) Error() string {
	var msg = fmt.Sprintf("persist: %s was %s by another writer", e.Stale.OriginalKey(), e.Kind)
	if e.Property != "" {
		msg += fmt.Sprintf(", property '%s' changed", e.Property)
	}

	return msg
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// StorageError wraps a driver failure with the failing statement
type StorageError struct {
	Statement string
	Values    []interface{}
	RowLocked bool
	Err       error
}

func (e *StorageError) Error() string {
	var msg = "persist: " + e.Err.Error()
	if e.Statement != "" {
		msg += ", statement: " + e.Statement
	}
	if len(e.Values) > 0 {
		msg += ", values: " + db.DumpRecursive(e.Values, "")
	}

	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage || (target == ErrRowLocked && e.RowLocked)
}

// ValidationError reports a request that cannot be executed as given
type ValidationError struct {
	EntityType string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.EntityType == "" {
		return fmt.Sprintf("persist: invalid request: %v", e.Err)
	}

	return fmt.Sprintf("persist: invalid request on '%s': %v", e.EntityType, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ReadOnlyError reports a write to a read-only entity type
type ReadOnlyError struct {
	EntityType string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("persist: entity type '%s' is read-only", e.EntityType)
}

func (e *ReadOnlyError) Is(target error) bool {
	return target == ErrReadOnly
}

// NotFoundError reports a single-row request without a row
type NotFoundError struct {
	EntityType string
	Criteria   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("persist: no '%s' found for %s", e.EntityType, e.Criteria)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AmbiguousError reports a single-row request matching more rows
type AmbiguousError struct {
	EntityType string
	Criteria   string
	Rows       int64
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("persist: %d rows of '%s' found for %s, expected one", e.Rows, e.EntityType, e.Criteria)
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}
