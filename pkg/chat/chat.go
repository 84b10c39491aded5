// Package chat is the driver behind the four wire-format translators
// (pkg/provider/openaichat, openairesponses, anthropic, google): it issues
// the actual HTTP/SSE call (or, for Anthropic, the SDK's native streaming
// client) for one resolved registry.Entry, decodes every event through that
// provider's DecodeEvent, and reassembles streamed tool-call fragments via
// pkg/stream.Collector.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"forgecore/pkg/apierr"
	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/obslog"
	"forgecore/pkg/provider"
	anthropicp "forgecore/pkg/provider/anthropic"
	"forgecore/pkg/provider/google"
	"forgecore/pkg/provider/openaichat"
	"forgecore/pkg/provider/openairesponses"
	"forgecore/pkg/registry"
	"forgecore/pkg/sse"
	"forgecore/pkg/stream"
	"forgecore/pkg/transport"
)

// Delta is one decoded increment of a turn, emitted by Stream. It is either
// a raw text/reasoning/usage fragment passed straight through from a
// provider.CanonicalDelta, or a ToolCall populated once pkg/stream.Collector
// has reassembled every fragment sharing a call id.
type Delta struct {
	TextDelta        string
	ReasoningDelta   string
	ThoughtSignature string
	ToolCall         *ctxmodel.ToolCallFull
	Usage            *provider.Usage
	FinishReason     string
	Done             bool
}

// Config wires one resolved provider endpoint for Stream to drive.
type Config struct {
	Entry Entry
	URL   string // rendered endpoint, from Registry.ResolveModel
	Model string

	APIKey string
	// OAuth marks APIKey as a Claude-subscription OAuth token rather than a
	// raw API key, switching anthropicp.NewClient's beta-feature header set.
	OAuth bool
	// GoogleUseBearer selects Authorization:Bearer over x-goog-api-key for
	// the Google translator (Vertex AI deployments use ADC bearer tokens).
	GoogleUseBearer bool

	Anthropic anthropicp.Config
	Responses openairesponses.Config
	UserAgent string

	// Log is optional; a nil Log disables the transport-response debug logs
	// Stream's provider drivers emit.
	Log *zerolog.Logger
}

func (cfg Config) logResponse(method, url string, status int, elapsed time.Duration) {
	if cfg.Log == nil {
		return
	}
	obslog.LogTransportResponse(*cfg.Log, method, url, status, elapsed)
}

// Entry aliases registry.Entry so callers outside this package never need
// to import pkg/registry just to build a Config.
type Entry = registry.Entry

// Stream drives one full provider turn end to end: encode cc into cfg's
// wire format, issue the call, decode every event through the matching
// translator, reassemble tool-call fragments, and invoke onDelta for each
// canonical increment plus once more for every fully reassembled tool call,
// in first-appearance order. Returns the final usage observed (if any) and
// any diagnostics pkg/stream.Collector recorded for repaired tool-call
// arguments.
func Stream(ctx context.Context, cfg Config, cc *ctxmodel.Context, onDelta func(Delta) error) (*provider.Usage, []string, error) {
	collector := stream.NewCollector()
	var usage *provider.Usage

	emit := func(d provider.CanonicalDelta) error {
		if d.Usage != nil {
			usage = d.Usage
		}
		if d.ToolCallPart != nil {
			full, err := collector.Observe(*d.ToolCallPart)
			if err != nil {
				return err
			}
			if full == nil {
				return nil
			}
			return onDelta(Delta{ToolCall: full})
		}
		return onDelta(Delta{
			TextDelta:        d.TextDelta,
			ReasoningDelta:   d.ReasoningDelta,
			ThoughtSignature: d.ThoughtSignature,
			Usage:            d.Usage,
			FinishReason:     d.FinishReason,
			Done:             d.Done,
		})
	}

	var err error
	switch cfg.Entry.ResponseType {
	case registry.ResponseOpenAIChat:
		err = streamOpenAIChat(ctx, cfg, cc, emit)
	case registry.ResponseOpenAIResponses:
		err = streamOpenAIResponses(ctx, cfg, cc, emit)
	case registry.ResponseAnthropic:
		err = streamAnthropic(ctx, cfg, cc, emit)
	case registry.ResponseGoogle:
		err = streamGoogle(ctx, cfg, cc, emit)
	default:
		err = apierr.New(apierr.TranslationFailed, fmt.Sprintf("unsupported response type %q", cfg.Entry.ResponseType), nil)
	}
	if err != nil {
		return usage, collector.Diagnostics(), err
	}

	if full, ferr := collector.Flush(); ferr != nil {
		return usage, collector.Diagnostics(), ferr
	} else if full != nil {
		if derr := onDelta(Delta{ToolCall: full}); derr != nil {
			return usage, collector.Diagnostics(), derr
		}
	}
	return usage, collector.Diagnostics(), nil
}

func (cfg Config) httpClient() *transport.Client {
	c := transport.New(cfg.URL, staticCredentials{token: cfg.APIKey})
	c.AuthStyle = transport.AuthBearer
	c.UserAgent = cfg.UserAgent
	return c
}

// staticCredentials adapts an already-resolved API key into a
// transport.CredentialSource with no refresh support, for the providers
// Stream drives over plain HTTP (Anthropic instead goes through its own SDK
// client, built directly from cfg.APIKey in streamAnthropic).
type staticCredentials struct{ token string }

func (s staticCredentials) Token(context.Context) (string, error)          { return s.token, nil }
func (s staticCredentials) ExtraHeaders(context.Context) map[string]string { return nil }
func (s staticCredentials) Refresh(context.Context) bool                   { return false }

func streamOpenAIChat(ctx context.Context, cfg Config, cc *ctxmodel.Context, emit func(provider.CanonicalDelta) error) error {
	req := openaichat.Encode(cc, cfg.Model)
	body, err := json.Marshal(req)
	if err != nil {
		return apierr.New(apierr.TranslationFailed, "encode openai-chat request", err)
	}

	client := cfg.httpClient()
	start := time.Now()
	resp, err := client.Post(ctx, "/chat/completions", body, nil)
	if err != nil {
		return err
	}
	cfg.logResponse("POST", cfg.URL+"/chat/completions", resp.StatusCode, time.Since(start))
	defer resp.Body.Close()

	state := &openaichat.StreamState{}
	return sse.ParseRawStream(resp.Body, func(raw json.RawMessage) error {
		var chunk openaichat.StreamChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil
		}
		for _, d := range openaichat.DecodeEvent(chunk, state) {
			if d == nil {
				continue
			}
			if err := emit(*d); err != nil {
				return err
			}
		}
		return nil
	})
}

func streamOpenAIResponses(ctx context.Context, cfg Config, cc *ctxmodel.Context, emit func(provider.CanonicalDelta) error) error {
	req, err := openairesponses.Encode(cc, cfg.Model, cfg.Responses)
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return apierr.New(apierr.TranslationFailed, "encode openai-responses request", err)
	}

	client := cfg.httpClient()
	start := time.Now()
	err = client.EventSource(ctx, "/responses", body, nil, func(ev sse.Event) error {
		d, derr := openairesponses.DecodeEvent(ev.Value)
		if derr != nil {
			return derr
		}
		if d == nil {
			return nil
		}
		return emit(*d)
	})
	cfg.logResponse("POST", cfg.URL+"/responses", statusOf(err), time.Since(start))
	return err
}

func streamGoogle(ctx context.Context, cfg Config, cc *ctxmodel.Context, emit func(provider.CanonicalDelta) error) error {
	req := google.Encode(cc)
	body, err := json.Marshal(req)
	if err != nil {
		return apierr.New(apierr.TranslationFailed, "encode google request", err)
	}

	url := google.URL(cfg.URL, cfg.Model)
	headerName, headerValue := google.AuthHeader(cfg.APIKey, cfg.GoogleUseBearer)

	client := transport.New("", nil)
	client.UserAgent = cfg.UserAgent
	start := time.Now()
	resp, err := client.Post(ctx, url, body, map[string]string{headerName: headerValue})
	if err != nil {
		return err
	}
	cfg.logResponse("POST", url, resp.StatusCode, time.Since(start))
	defer resp.Body.Close()

	return sse.ParseRawStream(resp.Body, func(raw json.RawMessage) error {
		var chunk google.StreamChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil
		}
		deltas, derr := google.DecodeEvent(chunk)
		if derr != nil {
			return derr
		}
		for _, d := range deltas {
			if d == nil {
				continue
			}
			if err := emit(*d); err != nil {
				return err
			}
		}
		return nil
	})
}

func streamAnthropic(ctx context.Context, cfg Config, cc *ctxmodel.Context, emit func(provider.CanonicalDelta) error) error {
	params, err := anthropicp.Encode(cc, cfg.Model, cfg.Anthropic)
	if err != nil {
		return err
	}

	client := anthropicp.NewClient(cfg.APIKey, cfg.OAuth)
	state := &anthropicp.StreamState{}

	start := time.Now()
	st := client.Messages.NewStreaming(ctx, params)
	for st.Next() {
		d, derr := anthropicp.DecodeEvent(st.Current(), state)
		if derr != nil {
			return derr
		}
		if d == nil {
			continue
		}
		if err := emit(*d); err != nil {
			return err
		}
	}
	cfg.logResponse("POST", cfg.URL+"/messages", statusOf(st.Err()), time.Since(start))
	if err := st.Err(); err != nil {
		return apierr.New(apierr.ProviderHTTP, "anthropic stream error", err)
	}
	return nil
}

func statusOf(err error) int {
	if err != nil {
		return 0
	}
	return 200
}
