package fault

import (
	"sync"

	"github.com/phrazzld/docsmith/internal/metrics"
)

// Tracker counts classified failures per kind.
type Tracker struct {
	mu     sync.Mutex
	counts map[Kind]uint64
}

func NewTracker() *Tracker {
	return &Tracker{counts: make(map[Kind]uint64)}
}

// Track counts one failure.
func (t *Tracker) Track(kind Kind, severity Severity) {
	t.mu.Lock()
	t.counts[kind]++
	t.mu.Unlock()

	metrics.RecordError(string(kind), string(severity))
}

// Count returns the number of failures of kind seen so far.
func (t *Tracker) Count(kind Kind) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[kind]
}

// Counts returns a copy of every per-kind counter.
func (t *Tracker) Counts() map[Kind]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[Kind]uint64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
