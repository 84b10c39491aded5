package harness

import (
	"context"
	"fmt"
	"time"
)

// RunToolLoop drives the model→tool→model cycle any Harness.RunToolLoop can
// delegate to: stream a turn, collect the tool calls it emits, execute each
// through handler, append the assistant call plus its tool result as
// follow-up messages, and repeat until a turn produces no tool calls or
// opts.MaxTurns is hit. pkg/agent.Runtime layers its own error-budget
// tracking (pkg/toolerrors.Tracker) and context compaction on top of this;
// this loop itself stays unopinionated about why a turn ended.
func RunToolLoop(
	ctx context.Context,
	streamTurn func(ctx context.Context, turn *Turn, onEvent func(Event) error) error,
	turn *Turn,
	handler ToolHandler,
	opts LoopOptions,
) (*TurnResult, error) {
	start := time.Now()
	combined := &TurnResult{}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	currentTurn := turn
	for i := 0; i < maxTurns; i++ {
		var pendingCalls []ToolCallEvent
		err := streamTurn(ctx, currentTurn, func(ev Event) error {
			combined.Events = append(combined.Events, ev)
			if opts.OnEvent != nil {
				if err := opts.OnEvent(ev); err != nil {
					return err
				}
			}
			switch ev.Kind {
			case EventText:
				if ev.Text != nil {
					combined.FinalText += ev.Text.Delta
					if ev.Text.Complete != "" {
						combined.FinalText = ev.Text.Complete
					}
				}
			case EventUsage:
				combined.Usage = ev.Usage
			case EventToolCall:
				if ev.ToolCall != nil {
					pendingCalls = append(pendingCalls, *ev.ToolCall)
					combined.ToolCalls = append(combined.ToolCalls, *ev.ToolCall)
				}
			}
			return nil
		})
		if err != nil {
			combined.Duration = time.Since(start)
			return combined, err
		}

		if len(pendingCalls) == 0 {
			break
		}

		// Execute tools and build follow-up messages
		followupMsgs := make([]Message, 0, len(pendingCalls)*2)
		for callIdx, call := range pendingCalls {
			if opts.OnEvent != nil {
				plan := NewPlanEvent(call.Name, "in_progress")
				plan.Plan.StepIndex = callIdx
				if err := opts.OnEvent(plan); err != nil {
					combined.Duration = time.Since(start)
					return combined, err
				}
				if err := opts.OnEvent(NewPreambleEvent(fmt.Sprintf("running %s", call.Name))); err != nil {
					combined.Duration = time.Since(start)
					return combined, err
				}
			}
			result, err := handler.Handle(ctx, call)
			if err != nil {
				combined.Duration = time.Since(start)
				return combined, err
			}
			if result != nil {
				ev := NewToolResultEvent(result.CallID, result.Output, result.IsError)
				combined.Events = append(combined.Events, ev)
				if opts.OnEvent != nil {
					status := "done"
					if result.IsError {
						status = "failed"
					}
					plan := NewPlanEvent(call.Name, status)
					plan.Plan.StepIndex = callIdx
					if err := opts.OnEvent(plan); err != nil {
						combined.Duration = time.Since(start)
						return combined, err
					}
				}
			}
			followupMsgs = append(followupMsgs,
				Message{Role: RoleAssistant, Content: call.Arguments, Name: call.Name, ToolID: call.CallID},
				Message{Role: RoleTool, Content: result.Output, ToolID: call.CallID},
			)
		}

		nextTurn := *currentTurn
		nextTurn.Messages = append(nextTurn.Messages, followupMsgs...)
		currentTurn = &nextTurn
	}

	combined.Duration = time.Since(start)
	return combined, nil
}
