package db

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// Timings accumulates the time a connection spent in each kind of operation.
// All times are stored as nanoseconds in atomic Int64s.
type Timings struct {
	BeginTime    *atomic.Int64 // Transaction start time
	ExecTime     *atomic.Int64 // Statement execution time (Exec)
	QueryTime    *atomic.Int64 // Query execution time (Query/QueryRow)
	CommitTime   *atomic.Int64 // Transaction commit time
	RollbackTime *atomic.Int64 // Transaction rollback time

	Statements *atomic.Int64 // Number of executed statements
	Failures   *atomic.Int64 // Number of statements that returned an error
}

// NewTimings returns zeroed counters
func NewTimings() *Timings {
	return &Timings{
		BeginTime:    atomic.NewInt64(0),
		ExecTime:     atomic.NewInt64(0),
		QueryTime:    atomic.NewInt64(0),
		CommitTime:   atomic.NewInt64(0),
		RollbackTime: atomic.NewInt64(0),
		Statements:   atomic.NewInt64(0),
		Failures:     atomic.NewInt64(0),
	}
}

// Account adds elapsed time since the given time to the counter
func Account(t *atomic.Int64, since time.Time) {
	t.Add(time.Since(since).Nanoseconds())
}

// Total returns the sum of all accounted times
func (t *Timings) Total() time.Duration {
	return time.Duration(t.BeginTime.Load() + t.ExecTime.Load() + t.QueryTime.Load() +
		t.CommitTime.Load() + t.RollbackTime.Load())
}

func (t *Timings) String() string {
	return fmt.Sprintf("statements: %d (failed %d), begin: %v, exec: %v, query: %v, commit: %v, rollback: %v",
		t.Statements.Load(), t.Failures.Load(),
		time.Duration(t.BeginTime.Load()), time.Duration(t.ExecTime.Load()), time.Duration(t.QueryTime.Load()),
		time.Duration(t.CommitTime.Load()), time.Duration(t.RollbackTime.Load()))
}
