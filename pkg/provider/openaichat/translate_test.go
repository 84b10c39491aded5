package openaichat

import (
	"testing"

	"forgecore/pkg/ctxmodel"
)

func TestEncodeKeepsSystemInline(t *testing.T) {
	ctx := ctxmodel.New()
	ctx.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleSystem, "be terse"))
	ctx.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "hi"))

	req := Encode(ctx, "gpt-4o")
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("expected system kept inline as first message, got %+v", req.Messages)
	}
}

func TestEncodeToolChoiceCall(t *testing.T) {
	ctx := ctxmodel.New()
	ctx.SetToolChoice(ctxmodel.ToolChoice{Kind: ctxmodel.ToolChoiceCall, Name: "read"})
	req := Encode(ctx, "gpt-4o")
	tc, ok := req.ToolChoice.(toolChoiceFunction)
	if !ok || tc.Function.Name != "read" {
		t.Fatalf("expected tool_choice {type:function,function:{name:read}}, got %+v", req.ToolChoice)
	}
}

func TestEncodeToolResultUsesToolRole(t *testing.T) {
	ctx := ctxmodel.New()
	ctx.AddMessage(ctxmodel.ContextMessage{Kind: ctxmodel.MessageText, Role: ctxmodel.RoleAssistant, ToolCalls: []ctxmodel.ToolCallFull{
		{CallID: "c1", Name: "read", Arguments: `{}`},
	}})
	ctx.AddToolResults(ctxmodel.ToolResult{CallID: "c1", Name: "read", Values: []ctxmodel.ResultValue{{Kind: ctxmodel.ResultText, Text: "ok"}}})

	req := Encode(ctx, "gpt-4o")
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" || last.Content != "ok" {
		t.Fatalf("unexpected tool result message: %+v", last)
	}
}

func TestEncodeRequestsUsageChunk(t *testing.T) {
	req := Encode(ctxmodel.New(), "gpt-4o")
	if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
		t.Fatalf("expected stream_options.include_usage set, got %+v", req.StreamOptions)
	}
}

func TestDecodeEventToolCallFragment(t *testing.T) {
	deltas := DecodeEvent(StreamChunk{Choices: []StreamChoice{{
		Delta: StreamDelta{ToolCalls: []StreamToolCall{{ID: "c1", Function: StreamToolCallFn{Name: "read", Arguments: `{"path":`}}}},
	}}}, &StreamState{})
	if len(deltas) != 1 || deltas[0].ToolCallPart == nil || deltas[0].ToolCallPart.CallID != "c1" {
		t.Fatalf("unexpected deltas: %+v", deltas)
	}
}

func TestDecodeEventParallelToolCallFragments(t *testing.T) {
	state := &StreamState{}
	first := DecodeEvent(StreamChunk{Choices: []StreamChoice{{
		Delta: StreamDelta{ToolCalls: []StreamToolCall{
			{Index: 0, ID: "c1", Function: StreamToolCallFn{Name: "read", Arguments: `{"path":`}},
			{Index: 1, ID: "c2", Function: StreamToolCallFn{Name: "fetch", Arguments: `{"url":`}},
		}},
	}}}, state)
	if len(first) != 2 {
		t.Fatalf("expected one delta per tool_calls entry, got %+v", first)
	}

	// Later fragments carry only the index; the id must be restored.
	second := DecodeEvent(StreamChunk{Choices: []StreamChoice{{
		Delta: StreamDelta{ToolCalls: []StreamToolCall{
			{Index: 1, Function: StreamToolCallFn{Arguments: `"https://x"}`}},
		}},
	}}}, state)
	if len(second) != 1 || second[0].ToolCallPart.CallID != "c2" {
		t.Fatalf("expected index 1 mapped back to c2, got %+v", second)
	}
}

func TestDecodeEventUsageChunk(t *testing.T) {
	deltas := DecodeEvent(StreamChunk{Usage: &ChunkUsage{PromptTokens: 10, CompletionTokens: 5}}, &StreamState{})
	if len(deltas) != 1 || deltas[0].Usage == nil || deltas[0].Usage.InputTokens != 10 {
		t.Fatalf("unexpected deltas: %+v", deltas)
	}
}
