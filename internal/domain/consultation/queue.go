// Package consultation holds the first-come-first-served queue of patients
// waiting to be seen.
package consultation

import (
	"iter"
	"sync"

	"github.com/ehr/registry/internal/domain/records"
)

// Queue is a FIFO of patients awaiting consultation. It does not
// de-duplicate: callers must not enqueue the same patient twice for a
// single appointment.
type Queue struct {
	mu      sync.Mutex
	entries []*records.Patient
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends p to the tail.
func (q *Queue) Enqueue(p *records.Patient) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, p)
}

// DrainAll removes every entry and returns them in arrival order. ok is
// false, with a nil slice, when the queue was already empty.
func (q *Queue) DrainAll() (drained []*records.Patient, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, false
	}
	drained = q.entries
	q.entries = nil
	return drained, true
}

// PeekOrder yields the current entries head to tail without removing them.
// Each iteration starts from a fresh snapshot.
func (q *Queue) PeekOrder() iter.Seq[*records.Patient] {
	return func(yield func(*records.Patient) bool) {
		q.mu.Lock()
		snap := make([]*records.Patient, len(q.entries))
		copy(snap, q.entries)
		q.mu.Unlock()

		for _, p := range snap {
			if !yield(p) {
				return
			}
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Remove drops every entry for the patient key, keeping the relative order
// of the rest, and reports how many entries were dropped.
func (q *Queue) Remove(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, p := range q.entries {
		if p.Key != key {
			kept = append(kept, p)
		}
	}
	removed := len(q.entries) - len(kept)
	clear(q.entries[len(kept):])
	q.entries = kept
	return removed
}
