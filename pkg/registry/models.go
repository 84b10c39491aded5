package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"forgecore/pkg/apierr"
	"forgecore/pkg/transport"
)

// Model is the provider-neutral shape of one discovered model.
type Model struct {
	ID                        string
	Name                      string
	Description               string
	ContextLength             int
	ToolsSupported            bool
	SupportsParallelToolCalls bool
	SupportsReasoning         bool
}

// URLDefaults are the base-URL values assumed when the matching environment
// variable is unset. Catalog URL templates reference these variables so a
// user can repoint a provider at a proxy or regional endpoint without
// editing the catalog.
var URLDefaults = map[string]string{
	"OPENAI_URL":    "https://api.openai.com/v1",
	"ANTHROPIC_URL": "https://api.anthropic.com/v1",
	"GEMINI_URL":    "https://generativelanguage.googleapis.com/v1beta",
}

// WithURLDefaults returns a copy of env with URLDefaults filled in for any
// variable env leaves unset or empty.
func WithURLDefaults(env map[string]string) map[string]string {
	out := make(map[string]string, len(env)+len(URLDefaults))
	for k, v := range env {
		out[k] = v
	}
	for k, v := range URLDefaults {
		if out[k] == "" {
			out[k] = v
		}
	}
	return out
}

// FetchModels performs the entry's model-discovery GET and decodes the
// native response into the common Model shape. Entries with no ModelsURL
// return (nil, nil); the caller falls back to the inline Models list.
func FetchModels(ctx context.Context, e Entry, env map[string]string, apiKey string) ([]Model, error) {
	if e.ModelsURL == "" {
		return nil, nil
	}
	url, err := RenderURL(e.ID, e.ModelsURL, env)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	switch e.ResponseType {
	case ResponseAnthropic:
		headers["x-api-key"] = apiKey
		headers["anthropic-version"] = "2023-06-01"
	case ResponseGoogle:
		headers["x-goog-api-key"] = apiKey
	default:
		headers["Authorization"] = "Bearer " + apiKey
	}

	client := transport.New("", nil)
	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.New(apierr.Transport, fmt.Sprintf("read model list from %s", url), err)
	}
	return DecodeModelList(e.ResponseType, body)
}

// DecodeModelList decodes a provider's native model-list response body.
// OpenAI and Anthropic both wrap entries in a top-level "data" array; Google
// uses "models" with a "models/"-prefixed name field.
func DecodeModelList(rt ResponseType, body []byte) ([]Model, error) {
	if rt == ResponseGoogle {
		var resp struct {
			Models []struct {
				Name             string   `json:"name"`
				DisplayName      string   `json:"displayName"`
				Description      string   `json:"description"`
				InputTokenLimit  int      `json:"inputTokenLimit"`
				SupportedMethods []string `json:"supportedGenerationMethods"`
			} `json:"models"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, apierr.New(apierr.ProviderEvent, "decode google model list", err)
		}
		out := make([]Model, 0, len(resp.Models))
		for _, m := range resp.Models {
			generates := false
			for _, method := range m.SupportedMethods {
				if method == "generateContent" {
					generates = true
					break
				}
			}
			if !generates {
				continue
			}
			out = append(out, Model{
				ID:            strings.TrimPrefix(m.Name, "models/"),
				Name:          m.DisplayName,
				Description:   m.Description,
				ContextLength: m.InputTokenLimit,
			})
		}
		return out, nil
	}

	var resp struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierr.New(apierr.ProviderEvent, "decode model list", err)
	}
	out := make([]Model, 0, len(resp.Data))
	for _, m := range resp.Data {
		out = append(out, Model{ID: m.ID, Name: m.DisplayName})
	}
	return out, nil
}
