package audit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Recorder keeps records in memory.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

var _ Logger = (*Recorder)(nil)

// Log appends a record. IDs are sequence numbers.
func (r *Recorder) Log(_ context.Context, category, action, outcome string, metadata map[string]string, info RequestInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := strconv.Itoa(len(r.records) + 1)
	r.records = append(r.records, newRecord(id, time.Now(), category, action, outcome, metadata, info))
}

// Records returns a copy of the recorded events in order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
