// Package compaction selects a contiguous message range for the agent
// runtime to replace with a summary, preserving tool-call/result atomicity.
// The percentage-eviction strategy is simulated down to an equivalent
// retain-last-n value, then a single atomicity-aware range search runs
// against that value.
package compaction

import "forgecore/pkg/ctxmodel"

// Strategy composes retention rules. The zero value is not meaningful; use
// Evict, Retain, or combine existing strategies with Min/Max.
type Strategy struct {
	kind strategyKind
	pct  float64
	n    int
	a, b *Strategy
}

type strategyKind int

const (
	kindEvict strategyKind = iota
	kindRetain
	kindMin
	kindMax
)

// Evict returns a strategy that retains messages until the cumulative
// approximate token weight of non-system messages exceeds percentage*total.
func Evict(percentage float64) Strategy {
	return Strategy{kind: kindEvict, pct: percentage}
}

// Retain returns a strategy that always keeps the last n messages intact.
func Retain(n int) Strategy {
	return Strategy{kind: kindRetain, n: n}
}

// Min combines two strategies, taking whichever resolves to smaller
// retention (more aggressive compaction).
func (s Strategy) Min(other Strategy) Strategy {
	return Strategy{kind: kindMin, a: &s, b: &other}
}

// Max combines two strategies, taking whichever resolves to larger
// retention (more conservative compaction).
func (s Strategy) Max(other Strategy) Strategy {
	return Strategy{kind: kindMax, a: &s, b: &other}
}

// toFixed converts any strategy into an equivalent Retain(n) value by
// simulating the percentage algorithm against ctx's current message list.
func (s Strategy) toFixed(ctx *ctxmodel.Context) int {
	switch s.kind {
	case kindEvict:
		pct := s.pct
		if pct > 1.0 {
			pct = 1.0
		}
		total := ctx.TokenCount()
		budget := int(float64(total)*pct + 0.999999) // ceil
		for i, m := range ctx.Messages {
			if m.HasRole(ctxmodel.RoleSystem) {
				continue
			}
			w := messageTokenWeight(m)
			if w >= budget {
				return i
			}
			budget -= w
			if budget <= 0 {
				return i
			}
		}
		if len(ctx.Messages) == 0 {
			return 0
		}
		return len(ctx.Messages) - 1
	case kindRetain:
		return s.n
	case kindMin:
		av, bv := s.a.toFixed(ctx), s.b.toFixed(ctx)
		if av < bv {
			return av
		}
		return bv
	case kindMax:
		av, bv := s.a.toFixed(ctx), s.b.toFixed(ctx)
		if av > bv {
			return av
		}
		return bv
	default:
		return 0
	}
}

// messageTokenWeight mirrors ctxmodel's internal chars/4 heuristic at the
// message granularity needed for eviction-budget walking.
func messageTokenWeight(m ctxmodel.ContextMessage) int {
	solo := &ctxmodel.Context{Messages: []ctxmodel.ContextMessage{m}}
	return solo.TokenCount()
}

// EvictionRange returns the (start, end) message-index range to compact,
// or ok=false if
// nothing can be compacted without breaking tool-call/result atomicity.
func (s Strategy) EvictionRange(ctx *ctxmodel.Context) (start, end int, ok bool) {
	retention := s.toFixed(ctx)
	return findSequencePreservingLastN(ctx, retention)
}

func findSequencePreservingLastN(ctx *ctxmodel.Context, maxRetention int) (start, end int, ok bool) {
	messages := ctx.Messages
	length := len(messages)
	if length == 0 {
		return 0, 0, false
	}

	start = ctx.FirstAssistantIndex()
	if start < 0 || start >= length {
		return 0, 0, false
	}

	if maxRetention >= length {
		return 0, 0, false
	}
	end = length - maxRetention - 1
	if end < 0 {
		return 0, 0, false
	}
	if start > end || end >= length {
		return 0, 0, false
	}

	// Rule 1: don't end the range on an assistant message issuing tool
	// calls: the result(s) for those calls live just after the range.
	if messages[end].HasToolCall() {
		end--
		if end < start {
			return 0, 0, false
		}
	}

	// Rule 2: don't split a contiguous run of tool results from the same
	// assistant turn. Walk end backward over the run, then step back once
	// more past the assistant message that issued them.
	if messages[end].HasToolResult() && end+1 < length && messages[end+1].HasToolResult() {
		for end >= start && messages[end].HasToolResult() {
			end--
		}
		end--
		if end < start {
			return 0, 0, false
		}
	}

	if start > end {
		return 0, 0, false
	}
	return start, end, true
}
