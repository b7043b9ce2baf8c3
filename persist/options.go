package persist

import (
	"github.com/acronis/perfkit/entitydb/criteria"
	"github.com/acronis/perfkit/entitydb/logger"
)

// Options tune a Connection
type Options struct {
	// Style selects bound parameters or embedded literals
	Style criteria.Style `yaml:"-"`

	// OptimisticLocking compares the original values of updated entities with
	// the stored rows before writing
	OptimisticLocking bool `yaml:"optimistic-locking"`

	// LimitFetchDepth applies foreign key fetch depths; without it references are
	// resolved completely except on reference cycles
	LimitFetchDepth bool `yaml:"limit-fetch-depth"`

	// TraceSize is the number of most recent statements kept for Trace
	TraceSize int `yaml:"trace-size"`

	Logger logger.Logger `yaml:"-"`
}

// DefaultOptions returns the options of a connection nobody tuned
func DefaultOptions() Options {
	return Options{
		Style:             criteria.Placeholders,
		OptimisticLocking: true,
		LimitFetchDepth:   true,
		TraceSize:         64,
	}
}

// txState is who owns the transaction of a connection
type txState int

const (
	txNone          txState = iota // every operation runs in its own transaction
	txCallerManaged                // the caller opened a transaction and ends it
)

func (s txState) String() string {
	if s == txCallerManaged {
		return "caller-managed"
	}

	return "none"
}

// txAction ends the transaction of one operation
type txAction int

const (
	txLeave txAction = iota
	txCommit
	txRollback
)

// decide returns how an operation that ended with err finishes its transaction.
// Transactions the caller opened are never ended implicitly.
func decide(state txState, err error) txAction {
	switch {
	case state == txCallerManaged:
		return txLeave
	case err != nil:
		return txRollback
	default:
		return txCommit
	}
}
