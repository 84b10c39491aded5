// Package toolerrors implements a per-turn, per-tool failure counter that
// forces the Agent Runtime to a hard stop once any tool's failure count
// reaches a configured limit.
package toolerrors

import "sync"

// Tracker counts consecutive failures per tool name within one turn.
type Tracker struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
	batch  map[string]bool // tools that failed in the current round
}

// New returns a Tracker with the given limit. A limit of 0 means any single
// failure immediately trips LimitReached.
func New(limit int) *Tracker {
	return &Tracker{
		limit:  limit,
		counts: make(map[string]int),
		batch:  make(map[string]bool),
	}
}

// Failed records a failure for tool and marks it as part of the current
// round's failure batch, consulted by Succeed's reset rule.
func (t *Tracker) Failed(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[tool]++
	t.batch[tool] = true
}

// Succeed resets tool's counter to zero, unless tool is also present in the
// current round's failure batch (a tool that both failed and produced a
// success signal within the same round is not considered recovered).
func (t *Tracker) Succeed(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.batch[tool] {
		return
	}
	delete(t.counts, tool)
}

// AdjustRecord applies one round's worth of per-tool outcomes in a single
// call: records[tool]=true means the tool failed this round, false means
// it succeeded. Equivalent to calling Failed/Succeed for each entry, then
// starting a fresh round so next round's Succeed() can reset counters
// again.
func (t *Tracker) AdjustRecord(records map[string]bool) {
	t.mu.Lock()
	t.batch = make(map[string]bool)
	t.mu.Unlock()

	for tool, failed := range records {
		if failed {
			t.Failed(tool)
		} else {
			t.Succeed(tool)
		}
	}
}

// LimitReached reports whether any tool's failure count has reached the
// configured limit.
func (t *Tracker) LimitReached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.counts {
		if c >= t.limit {
			return true
		}
	}
	return false
}

// RemainingAttempts returns how many more failures tool can accumulate
// before tripping the limit.
func (t *Tracker) RemainingAttempts(tool string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.limit - t.counts[tool]
	if remaining < 0 {
		return 0
	}
	return remaining
}
