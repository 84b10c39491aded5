package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"forgecore/pkg/apierr"
	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/harness"
	"forgecore/pkg/registry"
)

func sseServer(t *testing.T, wantPath string, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer test-key", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestStreamOpenAIChat(t *testing.T) {
	srv := sseServer(t, "/chat/completions", []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"read_file","arguments":"{\"path\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"a.txt\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"usage":{"prompt_tokens":10,"completion_tokens":5}}`,
	})
	defer srv.Close()

	cfg := Config{
		Entry:  registry.Entry{ID: "test", ResponseType: registry.ResponseOpenAIChat},
		URL:    srv.URL,
		Model:  "test-model",
		APIKey: "test-key",
	}

	cc := ctxmodel.New()
	if err := cc.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, "hi")); err != nil {
		t.Fatal(err)
	}

	var text string
	var calls []ctxmodel.ToolCallFull
	usage, diags, err := Stream(context.Background(), cfg, cc, func(d Delta) error {
		text += d.TextDelta
		if d.ToolCall != nil {
			calls = append(calls, *d.ToolCall)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text != "Hello" {
		t.Errorf("text = %q, want %q", text, "Hello")
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 reassembled tool call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" || calls[0].CallID != "call_1" {
		t.Errorf("call = %+v", calls[0])
	}
	if calls[0].Arguments != `{"path":"a.txt"}` {
		t.Errorf("arguments = %q", calls[0].Arguments)
	}
	if usage == nil || usage.InputTokens != 10 || usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", usage)
	}
	if len(diags) != 0 {
		t.Errorf("no repair expected, got diagnostics %v", diags)
	}
}

func TestStreamUnsupportedResponseType(t *testing.T) {
	cfg := Config{Entry: registry.Entry{ResponseType: "smoke-signals"}}
	cc := ctxmodel.New()
	_, _, err := Stream(context.Background(), cfg, cc, func(Delta) error { return nil })
	if !apierr.Is(err, apierr.TranslationFailed) {
		t.Fatalf("expected TranslationFailed, got %v", err)
	}
}

func testRegistry(srvURL string) *registry.Registry {
	return registry.New(&registry.Catalog{Entries: map[string]registry.Entry{
		"test": {
			ID:           "test",
			APIKeyVar:    "TESTPROV_API_KEY",
			ResponseType: registry.ResponseOpenAIChat,
			URL:          srvURL,
			Models:       []string{"test-model", "test-model-mini"},
		},
	}})
}

func TestHarnessStreamAndCollect(t *testing.T) {
	srv := sseServer(t, "/chat/completions", []string{
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`{"usage":{"prompt_tokens":3,"completion_tokens":1}}`,
	})
	defer srv.Close()

	h := New(HarnessConfig{
		Registry: testRegistry(srv.URL),
		Credentials: func(ctx context.Context, e registry.Entry) (Credential, error) {
			return Credential{Key: "test-key"}, nil
		},
		Env: map[string]string{"TESTPROV_API_KEY": "set"},
	})

	result, err := h.StreamAndCollect(context.Background(), &harness.Turn{
		Model:    "test-model",
		Messages: []harness.Message{{Role: harness.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamAndCollect: %v", err)
	}
	if result.FinalText != "Hello" {
		t.Errorf("FinalText = %q", result.FinalText)
	}
	if result.Usage == nil || result.Usage.InputTokens != 3 {
		t.Errorf("Usage = %+v", result.Usage)
	}
	last := result.Events[len(result.Events)-1]
	if last.Kind != harness.EventDone {
		t.Errorf("last event = %v, want done", last.Kind)
	}
}

func TestHarnessUnknownModel(t *testing.T) {
	h := New(HarnessConfig{
		Registry: testRegistry("http://unused.invalid"),
		Env:      map[string]string{"TESTPROV_API_KEY": "set"},
	})
	err := h.StreamTurn(context.Background(), &harness.Turn{
		Model:    "no-such-model",
		Messages: []harness.Message{{Role: harness.RoleUser, Content: "hi"}},
	}, func(harness.Event) error { return nil })
	if !apierr.Is(err, apierr.CredentialMissing) {
		t.Fatalf("expected CredentialMissing for unresolvable model, got %v", err)
	}
}

func TestHarnessListModelsAndExpandAlias(t *testing.T) {
	h := New(HarnessConfig{
		Registry: testRegistry("http://unused.invalid"),
		Env:      map[string]string{"TESTPROV_API_KEY": "set"},
	})

	models, err := h.ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %v", models)
	}
	if got := h.ExpandAlias("test-model"); got != "test-model-mini" {
		t.Errorf("ExpandAlias = %q, want latest matching id", got)
	}
	if !h.MatchesModel("test-model") {
		t.Error("MatchesModel should accept a served model")
	}
	if h.MatchesModel("gpt-unknown") {
		t.Error("MatchesModel should reject an unserved model")
	}
}

func TestNewDefaultsAnthropicCacheMarking(t *testing.T) {
	h := New(HarnessConfig{Registry: testRegistry("http://unused.invalid")})
	if !h.cfg.Anthropic.CacheSystemAndTail {
		t.Error("zero-value Anthropic config should default CacheSystemAndTail on")
	}
}

func TestEnvCredentials(t *testing.T) {
	entry := registry.Entry{ID: "test", APIKeyVar: "CHAT_TEST_KEY"}

	t.Setenv("CHAT_TEST_KEY", "")
	if _, err := EnvCredentials(context.Background(), entry); !apierr.Is(err, apierr.CredentialMissing) {
		t.Errorf("expected CredentialMissing, got %v", err)
	}

	t.Setenv("CHAT_TEST_KEY", "from-env")
	cred, err := EnvCredentials(context.Background(), entry)
	if err != nil || cred.Key != "from-env" {
		t.Errorf("cred = %+v, err = %v", cred, err)
	}

	ctx := harness.WithProviderKey(context.Background(), "override")
	cred, err = EnvCredentials(ctx, entry)
	if err != nil || cred.Key != "override" {
		t.Errorf("context override should win: cred = %+v, err = %v", cred, err)
	}
}

func TestOAuthCredentialsFallsThroughWithoutStore(t *testing.T) {
	fallback := func(ctx context.Context, e registry.Entry) (Credential, error) {
		return Credential{Key: "fallback"}, nil
	}
	lookup := OAuthCredentials(nil, fallback)
	cred, err := lookup(context.Background(), registry.Entry{ResponseType: registry.ResponseAnthropic})
	if err != nil || cred.Key != "fallback" || cred.OAuth {
		t.Errorf("cred = %+v, err = %v", cred, err)
	}
}

func TestHarnessListModelsViaDiscovery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"}]}`)
	}))
	defer srv.Close()

	reg := registry.New(&registry.Catalog{Entries: map[string]registry.Entry{
		"test": {
			ID:           "test",
			APIKeyVar:    "TESTPROV_API_KEY",
			ResponseType: registry.ResponseOpenAIChat,
			URL:          srv.URL,
			Models:       []string{"stale-inline-model"},
			ModelsURL:    srv.URL + "/models",
		},
	}})
	h := New(HarnessConfig{
		Registry: reg,
		Credentials: func(ctx context.Context, e registry.Entry) (Credential, error) {
			return Credential{Key: "test-key"}, nil
		},
		Env: map[string]string{"TESTPROV_API_KEY": "set"},
	})

	models, err := h.ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].ID != "gpt-4o" {
		t.Errorf("discovered models should replace the inline list, got %+v", models)
	}
}
