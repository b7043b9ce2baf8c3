package persist

import (
	"fmt"
	"time"

	"github.com/acronis/perfkit/entitydb/db"
)

// Record is one executed statement
type Record struct {
	At       time.Time
	Text     string
	Values   []interface{}
	Duration time.Duration
	Err      error
}

func (r Record) String() string {
	var s = fmt.Sprintf("%s %s (%v)", r.Text, db.DumpRecursive(r.Values, ""), r.Duration)
	if r.Err != nil {
		s += " failed: " + r.Err.Error()
	}

	return s
}

// ring keeps the most recent records
type ring struct {
	records []Record
	next    int
	full    bool
}

func newRing(size int) *ring {
	return &ring{records: make([]Record, size)}
}

func (r *ring) add(rec Record) {
	if len(r.records) == 0 {
		return
	}

	r.records[r.next] = rec
	r.next = (r.next + 1) % len(r.records)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns the records oldest first
func (r *ring) snapshot() []Record {
	if !r.full {
		return append([]Record(nil), r.records[:r.next]...)
	}

	var out = make([]Record, 0, len(r.records))
	out = append(out, r.records[r.next:]...)

	return append(out, r.records[:r.next]...)
}

func (r *ring) reset() {
	r.next = 0
	r.full = false
}
