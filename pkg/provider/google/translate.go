// Package google translates a canonical Context into Gemini's
// streamGenerateContent wire format and decodes its SSE events back,
// including the thought/thoughtSignature passthrough for reasoning parts.
package google

import (
	"encoding/json"
	"fmt"
	"strings"

	"forgecore/pkg/ctxmodel"
)

// Request is the generateContent/streamGenerateContent request body.
type Request struct {
	Contents         []Content         `json:"contents"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	Tools            []Tool            `json:"tools,omitempty"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one turn's parts, tagged with a role ("user" or "model").
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a tagged union mirroring Gemini's untagged Part JSON shape: at
// most one of Text/FunctionCall/FunctionResponse is set per part.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FunctionCall is a model-issued tool invocation.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse is a tool's result, keyed by the function name Gemini
// expects back (Gemini has no call_id concept; name is the correlation key).
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Tool declares the function set the model may call.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionDeclaration is one callable function's schema.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// GenerationConfig carries sampling and thinking knobs.
type GenerationConfig struct {
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"topP,omitempty"`
	TopK             *int              `json:"topK,omitempty"`
	MaxOutputTokens  *int              `json:"maxOutputTokens,omitempty"`
	ThinkingConfig   *ThinkingConfig   `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig enables/budgets Gemini's reasoning trace.
type ThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget,omitempty"`
}

// URL builds the streamGenerateContent endpoint, stripping any leading
// "models/" prefix from model.
func URL(baseURL, model string) string {
	model = strings.TrimPrefix(model, "models/")
	return fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", strings.TrimRight(baseURL, "/"), model)
}

// AuthHeader returns the header name/value pair to use, choosing between
// Gemini's native x-goog-api-key and a Vertex-AI-style bearer token.
func AuthHeader(apiKey string, useBearer bool) (name, value string) {
	if useBearer {
		return "Authorization", "Bearer " + apiKey
	}
	return "x-goog-api-key", apiKey
}

// Encode builds a Request from a canonical Context. Gemini has no system
// role; the lone leading system message (ctxmodel.Context enforces at most
// one, first) becomes SystemInstruction.
func Encode(ctx *ctxmodel.Context) Request {
	var req Request
	for _, m := range ctx.Messages {
		switch m.Kind {
		case ctxmodel.MessageText:
			switch m.Role {
			case ctxmodel.RoleSystem:
				req.SystemInstruction = &Content{Parts: []Part{{Text: m.Content}}}
			case ctxmodel.RoleUser:
				req.Contents = append(req.Contents, Content{Role: "user", Parts: []Part{{Text: m.Content}}})
			case ctxmodel.RoleAssistant:
				var parts []Part
				if m.Content != "" {
					parts = append(parts, Part{Text: m.Content})
				}
				for _, tc := range m.ToolCalls {
					var args map[string]any
					if tc.Arguments != "" {
						_ = json.Unmarshal([]byte(tc.Arguments), &args)
					}
					parts = append(parts, Part{FunctionCall: &FunctionCall{Name: tc.Name, Args: args}, ThoughtSignature: tc.ThoughtSignature})
				}
				if len(parts) > 0 {
					req.Contents = append(req.Contents, Content{Role: "model", Parts: parts})
				}
			}
		case ctxmodel.MessageTool:
			if m.Tool != nil {
				req.Contents = append(req.Contents, Content{Role: "user", Parts: []Part{{
					FunctionResponse: &FunctionResponse{Name: m.Tool.Name, Response: map[string]any{"output": resultText(m.Tool)}},
				}}})
			}
		}
	}

	if len(ctx.Tools) > 0 {
		decls := make([]FunctionDeclaration, 0, len(ctx.Tools))
		for _, t := range ctx.Tools {
			decls = append(decls, FunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		req.Tools = []Tool{{FunctionDeclarations: decls}}
	}

	cfg := &GenerationConfig{Temperature: ctx.Temperature, TopP: ctx.TopP, TopK: ctx.TopK, MaxOutputTokens: ctx.MaxTokens}
	if ctx.Reasoning != nil && ctx.Reasoning.Enabled {
		cfg.ThinkingConfig = &ThinkingConfig{IncludeThoughts: true, ThinkingBudget: ctx.Reasoning.MaxTokens}
	}
	req.GenerationConfig = cfg

	return req
}

func resultText(r *ctxmodel.ToolResult) string {
	var out string
	for _, v := range r.Values {
		if v.Kind == ctxmodel.ResultText {
			out += v.Text
		}
	}
	return out
}
