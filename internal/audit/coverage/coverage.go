// Package coverage tracks how many business operations were audited. The
// counts are reported by the collaborators that perform the operations; the
// dashboard only reads the resulting ratio.
package coverage

import (
	"context"
	"sync"
)

// Tracker records operations and reports the audited fraction.
type Tracker interface {
	Record(ctx context.Context, operation string, audited bool) error
	Coverage(ctx context.Context) (float64, error)
}

// Counts is the raw tally behind a coverage ratio.
type Counts struct {
	Total   int64 `json:"total"`
	Audited int64 `json:"audited"`
}

// Ratio returns Audited/Total, or 0 when nothing was recorded.
func (c Counts) Ratio() float64 {
	if c.Total <= 0 {
		return 0
	}
	r := float64(c.Audited) / float64(c.Total)
	if r > 1 {
		return 1
	}
	return r
}

// InMemoryTracker keeps counts in process memory.
type InMemoryTracker struct {
	mu          sync.Mutex
	total       Counts
	byOperation map[string]Counts
}

func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{byOperation: make(map[string]Counts)}
}

func (t *InMemoryTracker) Record(_ context.Context, operation string, audited bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	op := t.byOperation[operation]
	op.Total++
	t.total.Total++
	if audited {
		op.Audited++
		t.total.Audited++
	}
	t.byOperation[operation] = op
	return nil
}

func (t *InMemoryTracker) Coverage(_ context.Context) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total.Ratio(), nil
}

// Operations returns the per-operation counts.
func (t *InMemoryTracker) Operations(_ context.Context) (map[string]Counts, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Counts, len(t.byOperation))
	for k, v := range t.byOperation {
		out[k] = v
	}
	return out, nil
}
