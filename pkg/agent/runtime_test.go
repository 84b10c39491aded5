package agent

import (
	"context"
	"path/filepath"
	"testing"

	"forgecore/pkg/harness"
	"forgecore/pkg/policy"
)

// fakeHarness emits one tool call on its first turn, then a done event with
// no further tool calls on any follow-up turn.
type fakeHarness struct {
	calls int
}

func (f *fakeHarness) Name() string { return "fake" }

func (f *fakeHarness) StreamTurn(ctx context.Context, turn *harness.Turn, onEvent func(harness.Event) error) error {
	f.calls++
	if f.calls == 1 {
		if err := onEvent(harness.NewToolCallEvent("c1", "read", `{"path":"a.txt"}`)); err != nil {
			return err
		}
	} else {
		if err := onEvent(harness.NewTextEvent("done")); err != nil {
			return err
		}
	}
	return onEvent(harness.NewDoneEvent())
}

func (f *fakeHarness) StreamAndCollect(ctx context.Context, turn *harness.Turn) (*harness.TurnResult, error) {
	return nil, nil
}

func (f *fakeHarness) RunToolLoop(ctx context.Context, turn *harness.Turn, handler harness.ToolHandler, opts harness.LoopOptions) (*harness.TurnResult, error) {
	return harness.RunToolLoop(ctx, f.StreamTurn, turn, handler, opts)
}

func (f *fakeHarness) ListModels(ctx context.Context) ([]harness.ModelInfo, error) { return nil, nil }
func (f *fakeHarness) ExpandAlias(alias string) string                            { return alias }
func (f *fakeHarness) MatchesModel(model string) bool                             { return true }

type fakeExecutor struct{}

func (fakeExecutor) Available() []harness.ToolSpec { return nil }
func (fakeExecutor) Execute(ctx context.Context, call harness.ToolCallEvent) (*harness.ToolResultEvent, error) {
	return &harness.ToolResultEvent{CallID: call.CallID, Output: "ok"}, nil
}

func TestRuntimeAllowsAndExecutes(t *testing.T) {
	dir := t.TempDir()
	eng := policy.NewEngine(filepath.Join(dir, "policies.yaml"))
	_ = eng // Load() will write embedded defaults on first Evaluate

	rt := New(Config{
		Harness: &fakeHarness{},
		Policy:  eng,
		Limit:   3,
		Classify: func(call harness.ToolCallEvent) policy.Operation {
			return policy.Operation{Kind: policy.OpRead, Path: "a.txt"}
		},
	})

	result, err := rt.RunTurn(context.Background(), &harness.Turn{Model: "fake"}, fakeExecutor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(result.ToolCalls))
	}
}

type denyingExecutor struct{}

func (denyingExecutor) Available() []harness.ToolSpec { return nil }
func (denyingExecutor) Execute(ctx context.Context, call harness.ToolCallEvent) (*harness.ToolResultEvent, error) {
	return &harness.ToolResultEvent{CallID: call.CallID, Output: "boom", IsError: true}, nil
}

func TestRuntimeLimitReachedStopsTurn(t *testing.T) {
	dir := t.TempDir()
	eng := policy.NewEngine(filepath.Join(dir, "policies.yaml"))

	rt := New(Config{
		Harness: &fakeHarness{},
		Policy:  eng,
		Limit:   0, // trips on first failure
		Classify: func(call harness.ToolCallEvent) policy.Operation {
			return policy.Operation{Kind: policy.OpRead, Path: "a.txt"}
		},
	})

	result, err := rt.RunTurn(context.Background(), &harness.Turn{Model: "fake"}, denyingExecutor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, ev := range result.Events {
		if ev.Kind == harness.EventError && ev.Error != nil && ev.Error.Code == "limit_reached" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a limit_reached error event, got %+v", result.Events)
	}
}
