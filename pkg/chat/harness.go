package chat

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"forgecore/pkg/apierr"
	"forgecore/pkg/obslog"
	anthropicp "forgecore/pkg/provider/anthropic"
	"forgecore/pkg/provider/openairesponses"
	"forgecore/pkg/registry"

	"forgecore/pkg/harness"
)

// HarnessConfig wires a Harness to a live Registry and credential source.
// One HarnessConfig drives all four wire formats, dispatched per-turn by
// Registry.ResolveModel.
type HarnessConfig struct {
	Registry     *registry.Registry
	Credentials  CredentialLookup
	DefaultModel string
	UserAgent    string

	// Env supplies the variables RenderURL and Instantiable read (API keys,
	// URL template params). Defaults to a snapshot of os.Environ() if nil.
	Env map[string]string

	Anthropic anthropicp.Config
	Responses openairesponses.Config

	Log *zerolog.Logger
}

// Harness implements harness.Harness by resolving each turn's model against
// a registry.Registry and driving the matching provider through Stream.
type Harness struct {
	cfg HarnessConfig
}

var _ harness.Harness = (*Harness)(nil)

// New builds a Harness from cfg. An Anthropic config left entirely at its
// zero value gets CacheSystemAndTail defaulted to true, so every turn gets
// the prompt-cache breakpoints on the system prompt and conversation tail
// unless the caller set any Anthropic field themselves.
func New(cfg HarnessConfig) *Harness {
	if cfg.Credentials == nil {
		cfg.Credentials = EnvCredentials
	}
	if cfg.Env == nil {
		cfg.Env = environMap()
	}
	cfg.Env = registry.WithURLDefaults(cfg.Env)
	if cfg.Anthropic == (anthropicp.Config{}) {
		cfg.Anthropic.CacheSystemAndTail = true
	}
	return &Harness{cfg: cfg}
}

func environMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

// Name returns "chat"; the Harness itself is vendor-neutral, dispatching
// per turn to whichever provider registry.Registry.ResolveModel selects.
func (h *Harness) Name() string { return "chat" }

// StreamTurn resolves turn.Model against the registry, builds the
// provider-specific Config, and drives Stream, translating each chat.Delta
// into the matching harness.Event.
func (h *Harness) StreamTurn(ctx context.Context, turn *harness.Turn, onEvent func(harness.Event) error) error {
	model := turn.Model
	if model == "" {
		model = h.cfg.DefaultModel
	}
	if model == "" {
		return apierr.New(apierr.TranslationFailed, "no model specified and no default configured", nil)
	}

	entry, url, err := h.cfg.Registry.ResolveModel(model, h.cfg.Env)
	if err != nil {
		return err
	}
	cred, err := h.cfg.Credentials(ctx, entry)
	if err != nil {
		return err
	}

	cc, err := buildContext(turn)
	if err != nil {
		return fmt.Errorf("chat: build context: %w", err)
	}

	providerCfg := Config{
		Entry:     entry,
		URL:       url,
		Model:     model,
		APIKey:    cred.Key,
		OAuth:     cred.OAuth,
		Anthropic: h.cfg.Anthropic,
		Responses: h.cfg.Responses,
		UserAgent: h.cfg.UserAgent,
		Log:       h.cfg.Log,
	}

	usage, diagnostics, err := Stream(ctx, providerCfg, cc, func(d Delta) error {
		return h.emit(d, onEvent)
	})
	if h.cfg.Log != nil {
		obslog.LogStreamDiagnostics(*h.cfg.Log, model, diagnostics)
	}
	if err != nil {
		if everr := onEvent(harness.NewErrorEvent(err.Error())); everr != nil {
			return everr
		}
		return err
	}
	if usage != nil {
		if everr := onEvent(harness.NewUsageEvent(usage.InputTokens, usage.OutputTokens)); everr != nil {
			return everr
		}
	}
	return onEvent(harness.NewDoneEvent())
}

func (h *Harness) emit(d Delta, onEvent func(harness.Event) error) error {
	switch {
	case d.ToolCall != nil:
		return onEvent(harness.NewToolCallEvent(d.ToolCall.CallID, d.ToolCall.Name, d.ToolCall.Arguments))
	case d.ReasoningDelta != "":
		return onEvent(harness.NewThinkingEvent(d.ReasoningDelta))
	case d.TextDelta != "":
		return onEvent(harness.NewTextEvent(d.TextDelta))
	default:
		return nil
	}
}

// StreamAndCollect executes a turn and returns the collected result.
func (h *Harness) StreamAndCollect(ctx context.Context, turn *harness.Turn) (*harness.TurnResult, error) {
	start := time.Now()
	result := &harness.TurnResult{}
	err := h.StreamTurn(ctx, turn, func(ev harness.Event) error {
		result.Events = append(result.Events, ev)
		switch ev.Kind {
		case harness.EventText:
			if ev.Text != nil {
				result.FinalText += ev.Text.Delta
				if ev.Text.Complete != "" {
					result.FinalText = ev.Text.Complete
				}
			}
		case harness.EventUsage:
			result.Usage = ev.Usage
		case harness.EventToolCall:
			if ev.ToolCall != nil {
				result.ToolCalls = append(result.ToolCalls, *ev.ToolCall)
			}
		}
		return nil
	})
	result.Duration = time.Since(start)
	return result, err
}

// RunToolLoop delegates to the shared harness.RunToolLoop, the same
// composition every harness in this module uses.
func (h *Harness) RunToolLoop(ctx context.Context, turn *harness.Turn, handler harness.ToolHandler, opts harness.LoopOptions) (*harness.TurnResult, error) {
	return harness.RunToolLoop(ctx, h.StreamTurn, turn, handler, opts)
}

// ListModels enumerates every model of every registry entry instantiable
// given h.cfg.Env. Entries that declare a discovery endpoint are queried
// live; a discovery failure falls back to the entry's inline model list
// rather than failing the whole enumeration.
func (h *Harness) ListModels(ctx context.Context) ([]harness.ModelInfo, error) {
	cat := h.cfg.Registry.Snapshot()
	var out []harness.ModelInfo
	for _, id := range cat.Available(h.cfg.Env) {
		e := cat.Entries[id]
		if e.ModelsURL != "" {
			if discovered := h.discoverModels(ctx, e); len(discovered) > 0 {
				out = append(out, discovered...)
				continue
			}
		}
		for _, m := range e.Models {
			out = append(out, harness.ModelInfo{ID: m, Provider: id})
		}
	}
	return out, nil
}

func (h *Harness) discoverModels(ctx context.Context, e registry.Entry) []harness.ModelInfo {
	cred, err := h.cfg.Credentials(ctx, e)
	if err != nil {
		return nil
	}
	models, err := registry.FetchModels(ctx, e, h.cfg.Env, cred.Key)
	if err != nil {
		if h.cfg.Log != nil {
			h.cfg.Log.Warn().Str("provider", e.ID).Err(err).Msg("model discovery failed, using inline list")
		}
		return nil
	}
	out := make([]harness.ModelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, harness.ModelInfo{ID: m.ID, Name: m.Name, Provider: e.ID})
	}
	return out
}

// ExpandAlias resolves a bare model prefix (e.g. "claude-sonnet") to the
// latest matching full model id in the catalog.
func (h *Harness) ExpandAlias(alias string) string {
	cat := h.cfg.Registry.Snapshot()
	for _, e := range cat.Entries {
		if picked := registry.PickLatestModel(e.Models, alias); picked != "" {
			return picked
		}
	}
	return alias
}

// MatchesModel reports whether some instantiable registry entry serves
// model.
func (h *Harness) MatchesModel(model string) bool {
	_, _, err := h.cfg.Registry.ResolveModel(model, h.cfg.Env)
	return err == nil
}
