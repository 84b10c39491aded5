// Package openaichat translates a canonical Context into the OpenAI Chat
// Completions wire format and decodes its SSE events back: one function
// builds the request struct, one switch-on-chunk-shape decoder translates
// each stream delta.
package openaichat

import (
	"forgecore/pkg/ctxmodel"
)

// Request is the Chat Completions request body.
type Request struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Tools         []Tool         `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// StreamOptions asks the server to append the final usage chunk to the
// stream; DecodeEvent's usage branch only ever fires when include_usage
// was set on the request.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Message is one Chat Completions message.
type Message struct {
	Role             string     `json:"role"`
	Content          string     `json:"content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
	ReasoningDetails []string   `json:"reasoning_details,omitempty"`
}

// ToolCall is an assistant-issued function call.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries a tool call's name and JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a callable function definition.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function schema nested under Tool.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// toolChoiceFunction names a specific required tool call.
type toolChoiceFunction struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// Encode builds a Request from a canonical Context.
func Encode(ctx *ctxmodel.Context, model string) Request {
	messages := make([]Message, 0, len(ctx.Messages))
	for _, m := range ctx.Messages {
		switch m.Kind {
		case ctxmodel.MessageText:
			msg := Message{Role: m.Role.String(), Content: m.Content, ReasoningDetails: m.ReasoningDetails}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					ID:       tc.CallID,
					Type:     "function",
					Function: FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
				})
			}
			messages = append(messages, msg)
		case ctxmodel.MessageTool:
			if m.Tool != nil {
				messages = append(messages, Message{
					Role:       "tool",
					Content:    resultText(m.Tool),
					ToolCallID: m.Tool.CallID,
				})
			}
		}
	}

	req := Request{
		Model:         model,
		Messages:      messages,
		Temperature:   ctx.Temperature,
		TopP:          ctx.TopP,
		MaxTokens:     ctx.MaxTokens,
		Stream:        true,
		StreamOptions: &StreamOptions{IncludeUsage: true},
		ToolChoice:    encodeToolChoice(ctx.ToolChoice),
	}
	if len(ctx.Tools) > 0 {
		req.Tools = encodeTools(ctx.Tools)
	}
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

func encodeTools(tools []ctxmodel.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// encodeToolChoice maps Auto to "auto", None to "none", Required to
// "required", and Call(n) to {type:"function", function:{name:n}}.
func encodeToolChoice(tc ctxmodel.ToolChoice) any {
	switch tc.Kind {
	case ctxmodel.ToolChoiceNone:
		return "none"
	case ctxmodel.ToolChoiceRequired:
		return "required"
	case ctxmodel.ToolChoiceCall:
		c := toolChoiceFunction{Type: "function"}
		c.Function.Name = tc.Name
		return c
	default:
		return "auto"
	}
}
