package crawler

import "sync"

// GlobalBudget caps the number of records one sweep may produce. A limit of 0 means unlimited.
type GlobalBudget struct {
	mu       sync.Mutex
	limit    int
	consumed int
}

func NewGlobalBudget(limit int) *GlobalBudget {
	if limit < 0 {
		limit = 0
	}
	return &GlobalBudget{limit: limit}
}

// Remaining returns how many records may still be produced, or -1 when unlimited.
func (b *GlobalBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit == 0 {
		return -1
	}
	return b.limit - b.consumed
}

// Consume records n produced records; the counter never passes the limit.
func (b *GlobalBudget) Consume(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumed += n
	if b.limit > 0 && b.consumed > b.limit {
		b.consumed = b.limit
	}
}

func (b *GlobalBudget) Consumed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumed
}

func (b *GlobalBudget) Limit() int {
	return b.limit
}

// Exhausted reports whether no further record may be produced.
func (b *GlobalBudget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit > 0 && b.consumed >= b.limit
}
