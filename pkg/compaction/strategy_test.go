package compaction

import (
	"testing"

	"forgecore/pkg/ctxmodel"
)

// buildPattern constructs a Context from a short pattern string where:
// s = system, u = user, a = assistant (no tool call), t = assistant tool
// call + matching tool result ("tt" marks a call letter followed by its
// paired result).
func buildPattern(t *testing.T, pattern string) *ctxmodel.Context {
	t.Helper()
	c := ctxmodel.New()
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case 's':
			must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleSystem, "sys")))
		case 'u':
			must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "hi")))
		case 'a':
			must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleAssistant, "ok")))
		case 't':
			call := ctxmodel.NewTextMessage(ctxmodel.RoleAssistant, "")
			call.ToolCalls = []ctxmodel.ToolCallFull{{Name: "read", CallID: "c", Arguments: "{}"}}
			must(t, c.AddMessage(call))
			must(t, c.AddToolResults(ctxmodel.ToolResult{Name: "read", CallID: "c"}))
			i++ // consumed the paired "t" for the result half of the pattern
		}
	}
	return c
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompactionIncludesWholeToolCallBlock(t *testing.T) {
	// s u t t u -> system, user, tool-call, tool-result, user
	c := ctxmodel.New()
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleSystem, "sys")))
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "hi")))
	call := ctxmodel.NewTextMessage(ctxmodel.RoleAssistant, "")
	call.ToolCalls = []ctxmodel.ToolCallFull{{Name: "read", CallID: "c", Arguments: "{}"}}
	must(t, c.AddMessage(call))
	must(t, c.AddToolResults(ctxmodel.ToolResult{Name: "read", CallID: "c"}))
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "bye")))

	start, end, ok := Retain(0).EvictionRange(c)
	if !ok {
		t.Fatalf("expected a compactable range")
	}
	if start != 2 || end != 4 {
		t.Fatalf("expected (2,4), got (%d,%d)", start, end)
	}
}

func TestCompactionNoneWithoutAssistantMessage(t *testing.T) {
	// u r r u -- no assistant message at all -> nothing compactable
	c := ctxmodel.New()
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "hi")))
	must(t, c.AddToolResults(ctxmodel.ToolResult{Name: "read", CallID: ""}))
	must(t, c.AddToolResults(ctxmodel.ToolResult{Name: "read", CallID: ""}))
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "bye")))

	_, _, ok := Retain(0).EvictionRange(c)
	if ok {
		t.Fatalf("expected no compactable range without an assistant message")
	}
}

func TestRetainInvariant(t *testing.T) {
	c := ctxmodel.New()
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "1")))
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleAssistant, "2")))
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "3")))
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleAssistant, "4")))
	must(t, c.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "5")))

	n := 1
	start, end, ok := Retain(n).EvictionRange(c)
	if !ok {
		t.Fatalf("expected compactable range")
	}
	a := c.FirstAssistantIndex()
	if start != a {
		t.Fatalf("expected start == first assistant index %d, got %d", a, start)
	}
	if end > len(c.Messages)-n-1 {
		t.Fatalf("end %d exceeds L-n-1 bound", end)
	}
}

func TestMinMaxCompose(t *testing.T) {
	c := buildPattern(t, "uttu")
	_, endMin, okMin := Retain(0).Min(Retain(5)).EvictionRange(c)
	_, endMax, okMax := Retain(0).Max(Retain(5)).EvictionRange(c)
	if okMin && okMax && endMin > endMax {
		t.Fatalf("Min should never retain more than Max: endMin=%d endMax=%d", endMin, endMax)
	}
}
