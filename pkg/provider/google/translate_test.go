package google

import (
	"strings"
	"testing"

	"forgecore/pkg/ctxmodel"
)

func TestURLStripsLeadingModelsPrefix(t *testing.T) {
	got := URL("https://generativelanguage.googleapis.com/v1beta", "models/gemini-2.5-pro")
	want := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-pro:streamGenerateContent?alt=sse"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAuthHeaderChoosesBearerForVertex(t *testing.T) {
	name, value := AuthHeader("token123", true)
	if name != "Authorization" || value != "Bearer token123" {
		t.Fatalf("unexpected bearer header: %s=%s", name, value)
	}
	name, value = AuthHeader("token123", false)
	if name != "x-goog-api-key" || value != "token123" {
		t.Fatalf("unexpected api-key header: %s=%s", name, value)
	}
}

func TestEncodeLiftsSystemToSystemInstruction(t *testing.T) {
	ctx := ctxmodel.New()
	ctx.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleSystem, "be terse"))
	ctx.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "hi"))

	req := Encode(ctx)
	if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "be terse" {
		t.Fatalf("expected system instruction, got %+v", req.SystemInstruction)
	}
	if len(req.Contents) != 1 || req.Contents[0].Role != "user" {
		t.Fatalf("unexpected contents: %+v", req.Contents)
	}
}

func TestDecodeEventFabricatesCallIDWhenAbsent(t *testing.T) {
	chunk := StreamChunk{Candidates: []StreamCandidate{{
		Content: Content{Parts: []Part{{FunctionCall: &FunctionCall{Name: "read", Args: map[string]any{"path": "a.txt"}}}}},
	}}}
	deltas, err := DecodeEvent(chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deltas) != 1 || deltas[0].ToolCallPart == nil {
		t.Fatalf("expected one tool call delta, got %+v", deltas)
	}
	if !strings.HasPrefix(deltas[0].ToolCallPart.CallID, "forge_call_id_") {
		t.Fatalf("expected fabricated call id, got %q", deltas[0].ToolCallPart.CallID)
	}
}

func TestDecodeEventMapsFinishReasons(t *testing.T) {
	cases := map[string]string{"STOP": "stop", "MAX_TOKENS": "length", "SAFETY": "content_filter", "RECITATION": "content_filter", "OTHER": "stop"}
	for reason, want := range cases {
		deltas, err := DecodeEvent(StreamChunk{Candidates: []StreamCandidate{{FinishReason: reason}}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(deltas) != 1 || deltas[0].FinishReason != want {
			t.Fatalf("reason %q: expected %q, got %+v", reason, want, deltas)
		}
	}
}
