package pool

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

type counters struct {
	started   time.Time
	created   *atomic.Int64
	destroyed *atomic.Int64
	evicted   *atomic.Int64
	requests  *atomic.Int64
	delayed   *atomic.Int64
	waited    *atomic.Int64 // nanoseconds spent by delayed requests
}

func newCounters() counters {
	return counters{
		started:   time.Now(),
		created:   atomic.NewInt64(0),
		destroyed: atomic.NewInt64(0),
		evicted:   atomic.NewInt64(0),
		requests:  atomic.NewInt64(0),
		delayed:   atomic.NewInt64(0),
		waited:    atomic.NewInt64(0),
	}
}

// Stats is a snapshot of pool usage
type Stats struct {
	Created   int64
	Destroyed int64
	Evicted   int64
	Requests  int64
	Delayed   int64
	Waited    time.Duration

	Idle  int
	InUse int
	Live  int

	Uptime            time.Duration
	RequestsPerSecond float64
	DelayedPerSecond  float64
}

func (c counters) snapshot(now time.Time, idle int, inUse int, live int) Stats {
	var s = Stats{
		Created:   c.created.Load(),
		Destroyed: c.destroyed.Load(),
		Evicted:   c.evicted.Load(),
		Requests:  c.requests.Load(),
		Delayed:   c.delayed.Load(),
		Waited:    time.Duration(c.waited.Load()),
		Idle:      idle,
		InUse:     inUse,
		Live:      live,
		Uptime:    now.Sub(c.started),
	}

	if secs := s.Uptime.Seconds(); secs > 0 {
		s.RequestsPerSecond = float64(s.Requests) / secs
		s.DelayedPerSecond = float64(s.Delayed) / secs
	}

	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("live: %d (idle: %d, in use: %d), created: %d, destroyed: %d, evicted: %d, "+
		"requests: %d (%.2f/s), delayed: %d (%.2f/s), waited: %v",
		s.Live, s.Idle, s.InUse, s.Created, s.Destroyed, s.Evicted,
		s.Requests, s.RequestsPerSecond, s.Delayed, s.DelayedPerSecond, s.Waited)
}
