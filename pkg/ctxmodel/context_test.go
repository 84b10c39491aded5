package ctxmodel

import (
	"testing"

	"forgecore/pkg/apierr"
)

func TestAddMessageSystemMustBeFirst(t *testing.T) {
	c := New()
	if err := c.AddMessage(NewTextMessage(RoleUser, "hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := c.AddMessage(NewTextMessage(RoleSystem, "late system"))
	if !apierr.Is(err, apierr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestAddToolResultsRequiresPriorCall(t *testing.T) {
	c := New()
	err := c.AddToolResults(ToolResult{Name: "read", CallID: "c1"})
	if !apierr.Is(err, apierr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for orphan call_id, got %v", err)
	}

	assistant := NewTextMessage(RoleAssistant, "")
	assistant.ToolCalls = []ToolCallFull{{Name: "read", CallID: "c1", Arguments: "{}"}}
	if err := c.AddMessage(assistant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.AddToolResults(ToolResult{Name: "read", CallID: "c1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetToolsRejectsDuplicateNames(t *testing.T) {
	c := New()
	err := c.SetTools([]ToolDefinition{{Name: "read"}, {Name: "read"}})
	if !apierr.Is(err, apierr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestSamplingSettersRangeValidation(t *testing.T) {
	c := New()
	if err := c.SetTemperature(2.1); !apierr.Is(err, apierr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for temperature, got %v", err)
	}
	if err := c.SetTemperature(1.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SetTopP(1.5); !apierr.Is(err, apierr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for top_p, got %v", err)
	}
	if err := c.SetTopK(0); !apierr.Is(err, apierr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for top_k, got %v", err)
	}
	if err := c.SetMaxTokens(100001); !apierr.Is(err, apierr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for max_tokens, got %v", err)
	}
}

func TestTokenCountApproximation(t *testing.T) {
	c := New()
	_ = c.AddMessage(NewTextMessage(RoleUser, "abcd")) // 4 chars -> 1 token
	if got := c.TokenCount(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestFirstAssistantIndex(t *testing.T) {
	c := New()
	_ = c.AddMessage(NewTextMessage(RoleUser, "hi"))
	_ = c.AddMessage(NewTextMessage(RoleAssistant, "hello"))
	if got := c.FirstAssistantIndex(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	empty := New()
	if got := empty.FirstAssistantIndex(); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}
