package records

import "sync"

// Ledger is a patient's prescription history, kept as a stack. The most
// recently issued prescription is on top.
type Ledger struct {
	mu    sync.Mutex
	items []Prescription // bottom (oldest) .. top (newest)
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Push places rx on top of the stack.
func (l *Ledger) Push(rx Prescription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, rx)
}

// Pop removes and returns the top prescription. ok is false when the ledger
// is empty.
func (l *Ledger) Pop() (rx Prescription, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.items)
	if n == 0 {
		return Prescription{}, false
	}
	rx = l.items[n-1]
	l.items[n-1] = Prescription{}
	l.items = l.items[:n-1]
	return rx, true
}

// Peek returns the top prescription without removing it.
func (l *Ledger) Peek() (Prescription, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return Prescription{}, false
	}
	return l.items[len(l.items)-1], true
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Items lists the ledger newest first, the order successive Pops would
// return them.
func (l *Ledger) Items() []Prescription {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Prescription, len(l.items))
	for i, rx := range l.items {
		out[len(l.items)-1-i] = rx
	}
	return out
}
