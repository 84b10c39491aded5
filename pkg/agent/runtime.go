// Package agent drives a turn: assemble the context (compacting it when it
// grows past the configured threshold), call the model through a
// harness.Harness, gate every tool call through the policy engine, track
// failures, and loop until completion or a hard stop.
package agent

import (
	"context"
	"fmt"
	"time"

	"forgecore/pkg/compaction"
	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/harness"
	"forgecore/pkg/metrics"
	"forgecore/pkg/policy"
	"forgecore/pkg/toolerrors"
)

// ToolExecutor performs the actual tool work (file I/O, shell, fetch);
// the runtime never executes a tool itself, only gates and records it.
type ToolExecutor interface {
	Execute(ctx context.Context, call harness.ToolCallEvent) (*harness.ToolResultEvent, error)
	Available() []harness.ToolSpec
}

// Classifier maps a pending tool call to the PermissionOperation the
// policy engine should evaluate. Supplied by the caller because only the
// caller's tool implementations know what a call's arguments mean.
type Classifier func(call harness.ToolCallEvent) policy.Operation

// Confirmer resolves a policy.Confirm verdict into one of Accept/Reject/
// AcceptAndRemember. In an interactive CLI this prompts the user; in a
// scripted environment it can return a fixed answer.
type Confirmer func(ctx context.Context, op policy.Operation) policy.Answer

// Summarizer turns a compacted message range into a single replacement
// summary message. Implementations typically issue a sub-turn to the same
// or a cheaper model.
type Summarizer func(ctx context.Context, rangeText string) (string, error)

// Config wires the collaborators a Runtime needs.
type Config struct {
	Harness          harness.Harness
	Policy           *policy.Engine
	Limit            int // tool-error tracker limit; 0 trips on first failure
	MaxTurns         int // tool-loop iteration cap; 0 uses the loop default
	CompactThreshold int // token-count threshold that triggers compaction; 0 disables
	RetainMessages   int // Retain(n) used by the compaction strategy
	Classify         Classifier
	Confirm          Confirmer
	Summarize        Summarizer
	OnEvent          func(harness.Event) error // forwarded to harness.LoopOptions.OnEvent, nil to ignore
}

// Runtime executes turns against a single harness, gating every tool call
// through the policy engine and tracking per-tool failures.
type Runtime struct {
	cfg     Config
	tracker *toolerrors.Tracker
}

// New builds a Runtime from cfg.
func New(cfg Config) *Runtime {
	return &Runtime{cfg: cfg, tracker: toolerrors.New(cfg.Limit)}
}

// RunTurn assembles context (compacting if needed), runs the tool loop via
// the underlying harness, and returns the collected result.
func (r *Runtime) RunTurn(ctx context.Context, turn *harness.Turn, exec ToolExecutor) (*harness.TurnResult, error) {
	assembled, err := r.assembleContext(ctx, turn)
	if err != nil {
		return nil, fmt.Errorf("agent: assemble context: %w", err)
	}

	gate := &gatingHandler{
		runtime: r,
		exec:    exec,
		ctx:     ctx,
	}

	// stop ends the loop at the first event after the tracker trips, so no
	// further model call is made once the limit is reached.
	stop := fmt.Errorf("agent: tool error limit reached")
	onEvent := func(ev harness.Event) error {
		if r.cfg.OnEvent != nil {
			if err := r.cfg.OnEvent(ev); err != nil {
				return err
			}
		}
		if gate.limitHit {
			return stop
		}
		return nil
	}
	opts := harness.LoopOptions{MaxTurns: r.cfg.MaxTurns, OnEvent: onEvent}
	result, err := r.cfg.Harness.RunToolLoop(ctx, assembled, gate, opts)
	if gate.limitHit {
		result = appendLimitReachedNotice(result)
		if err == stop {
			err = nil
		}
	}
	return result, err
}

// assembleContext runs compaction when the turn's approximate token
// count exceeds CompactThreshold, replacing the selected range with a
// single summary message produced by Summarize.
func (r *Runtime) assembleContext(ctx context.Context, turn *harness.Turn) (*harness.Turn, error) {
	if r.cfg.CompactThreshold <= 0 || r.cfg.Summarize == nil {
		return turn, nil
	}

	model := turnMessagesToContext(turn.Messages)
	if model.TokenCount() <= r.cfg.CompactThreshold {
		return turn, nil
	}

	strategy := compaction.Retain(r.cfg.RetainMessages)
	start, end, ok := strategy.EvictionRange(model)
	if !ok {
		return turn, nil
	}

	rangeText := renderRangeForSummary(turn.Messages[start : end+1])
	summary, err := r.cfg.Summarize(ctx, rangeText)
	if err != nil {
		return nil, fmt.Errorf("summarize compaction range: %w", err)
	}
	metrics.RecordCompactionTriggered()

	compacted := *turn
	rebuilt := make([]harness.Message, 0, len(turn.Messages)-(end-start)+1)
	rebuilt = append(rebuilt, turn.Messages[:start]...)
	rebuilt = append(rebuilt, harness.Message{Role: harness.RoleAssistant, Content: summary})
	rebuilt = append(rebuilt, turn.Messages[end+1:]...)
	compacted.Messages = rebuilt
	return &compacted, nil
}

func renderRangeForSummary(msgs []harness.Message) string {
	out := ""
	for _, m := range msgs {
		out += fmt.Sprintf("[%s] %s\n", m.Role, m.Content)
	}
	return out
}

// turnMessagesToContext adapts the harness's flat Message list into a
// ctxmodel.Context so the compaction engine can reason about tool-call/
// result atomicity. Follow-up messages written by RunToolLoop carry ToolID
// on both halves of a call/result pair (Role=="assistant" for the call
// echo, Role=="tool" for the result), which is enough to reconstruct the
// tagging compaction needs.
func turnMessagesToContext(msgs []harness.Message) *ctxmodel.Context {
	c := &ctxmodel.Context{}
	for _, m := range msgs {
		switch {
		case m.Role == harness.RoleTool:
			c.Messages = append(c.Messages, ctxmodel.NewToolMessage(ctxmodel.ToolResult{
				Name: m.Name, CallID: m.ToolID,
				Values: []ctxmodel.ResultValue{{Kind: ctxmodel.ResultText, Text: m.Content}},
			}))
		case m.Role == harness.RoleAssistant && m.ToolID != "":
			tm := ctxmodel.NewTextMessage(ctxmodel.RoleAssistant, "")
			tm.ToolCalls = []ctxmodel.ToolCallFull{{Name: m.Name, CallID: m.ToolID, Arguments: m.Content}}
			c.Messages = append(c.Messages, tm)
		case m.Role == harness.RoleSystem:
			c.Messages = append(c.Messages, ctxmodel.NewTextMessage(ctxmodel.RoleSystem, m.Content))
		case m.Role == harness.RoleAssistant:
			c.Messages = append(c.Messages, ctxmodel.NewTextMessage(ctxmodel.RoleAssistant, m.Content))
		default:
			c.Messages = append(c.Messages, ctxmodel.NewTextMessage(ctxmodel.RoleUser, m.Content))
		}
	}
	return c
}

// gatingHandler implements harness.ToolHandler, consulting the policy
// engine and tool-error tracker before delegating to the real executor.
type gatingHandler struct {
	runtime  *Runtime
	exec     ToolExecutor
	ctx      context.Context
	limitHit bool
}

func (g *gatingHandler) Available() []harness.ToolSpec { return g.exec.Available() }

func (g *gatingHandler) Handle(ctx context.Context, call harness.ToolCallEvent) (*harness.ToolResultEvent, error) {
	r := g.runtime
	if r.tracker.LimitReached() {
		g.limitHit = true
		return &harness.ToolResultEvent{CallID: call.CallID, Output: "tool error limit reached; turn aborted", IsError: true}, nil
	}

	if r.cfg.Classify == nil {
		return g.execute(ctx, call)
	}

	op := r.cfg.Classify(call)
	verdict, err := r.cfg.Policy.Evaluate(op)
	if err != nil {
		return nil, fmt.Errorf("policy evaluate: %w", err)
	}
	metrics.RecordPolicyDecision(op.Kind.String(), string(verdict))

	switch verdict {
	case policy.Deny:
		return &harness.ToolResultEvent{CallID: call.CallID, Output: "operation denied by policy", IsError: true}, nil
	case policy.Confirm:
		answer := policy.Reject
		if r.cfg.Confirm != nil {
			answer = r.cfg.Confirm(ctx, op)
		}
		allowed, err := r.cfg.Policy.Resolve(op, answer)
		if err != nil {
			return nil, fmt.Errorf("policy resolve: %w", err)
		}
		if !allowed {
			return &harness.ToolResultEvent{CallID: call.CallID, Output: "operation rejected by user", IsError: true}, nil
		}
		return g.execute(ctx, call)
	default: // policy.Allow
		return g.execute(ctx, call)
	}
}

func (g *gatingHandler) execute(ctx context.Context, call harness.ToolCallEvent) (*harness.ToolResultEvent, error) {
	result, err := g.exec.Execute(ctx, call)
	if err != nil {
		g.runtime.tracker.Failed(call.Name)
		metrics.RecordToolOutcome(call.Name, true)
		return nil, err
	}
	if result != nil && result.IsError {
		g.runtime.tracker.Failed(call.Name)
		metrics.RecordToolOutcome(call.Name, true)
	} else {
		g.runtime.tracker.Succeed(call.Name)
		metrics.RecordToolOutcome(call.Name, false)
	}
	if g.runtime.tracker.LimitReached() {
		g.limitHit = true
		metrics.RecordToolErrorLimitReached()
	}
	return result, nil
}

func appendLimitReachedNotice(result *harness.TurnResult) *harness.TurnResult {
	if result == nil {
		result = &harness.TurnResult{}
	}
	result.Events = append(result.Events, harness.Event{
		Kind:      harness.EventError,
		Timestamp: time.Now(),
		Error:     &harness.ErrorEvent{Code: "limit_reached", Message: "tool failure limit reached; ending turn"},
	})
	result.FinalText += "\n[attempt_completion: tool failure limit reached]"
	return result
}
