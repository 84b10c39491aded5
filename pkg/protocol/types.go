// Package protocol holds the raw OpenAI Responses API wire-format structs
// pkg/provider/openairesponses encodes requests into and decodes SSE
// events out of. Anthropic and OpenAI Chat Completions wire formats live
// closer to their own callers (the anthropic-sdk-go types, and
// pkg/provider/openaichat's own request/response structs); the Responses
// API has no first-party Go SDK, so its shapes are hand-declared here,
// trimmed to the fields openairesponses actually reads or writes.
package protocol

import "encoding/json"

type ResponsesRequest struct {
	Model         string              `json:"model"`
	Instructions  string              `json:"instructions,omitempty"`
	Input         []ResponseInputItem `json:"input,omitempty"`
	Tools         []ToolSpec          `json:"tools,omitempty"`
	ToolChoice    string              `json:"tool_choice,omitempty"`
	Reasoning     *Reasoning          `json:"reasoning,omitempty"`
	Store         bool                `json:"store"`
	Stream        bool                `json:"stream"`
	StreamOptions *StreamOptions      `json:"stream_options,omitempty"`
}

// StreamOptions asks the server to append a usage-bearing chunk to the
// stream; without include_usage the completed event carries no usage block.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type Reasoning struct {
	Effort string `json:"effort,omitempty"`
}

type ResponseInputItem struct {
	Type      string             `json:"type"`
	Role      string             `json:"role,omitempty"`
	Content   []InputContentPart `json:"content,omitempty"`
	Name      string             `json:"name,omitempty"`
	Arguments string             `json:"arguments,omitempty"`
	CallID    string             `json:"call_id,omitempty"`
	Output    string             `json:"output,omitempty"`
}

type InputContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ToolSpec struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type StreamEvent struct {
	Type      string             `json:"type"`
	Response  *ResponseRef       `json:"response,omitempty"`
	Item      *OutputItem        `json:"item,omitempty"`
	Delta     string             `json:"delta,omitempty"`
	Message   string             `json:"message,omitempty"`
	CallID    string             `json:"call_id,omitempty"`
	ItemID    string             `json:"item_id,omitempty"`
	Name      string             `json:"name,omitempty"`
	Arguments string             `json:"arguments,omitempty"`
	Part      *OutputContentPart `json:"part,omitempty"`
}

// OutputContentPart is a fragment of a "response.content_part.added" event.
type OutputContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ResponseRef struct {
	Usage *Usage `json:"usage,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

type OutputItem struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

func UserMessage(text string) ResponseInputItem {
	return ResponseInputItem{
		Type: "message",
		Role: "user",
		Content: []InputContentPart{{
			Type: "input_text",
			Text: text,
		}},
	}
}

func FunctionCallInput(name, callID, arguments string) ResponseInputItem {
	return ResponseInputItem{Type: "function_call", Name: name, CallID: callID, Arguments: arguments}
}

func FunctionCallOutputInput(callID, output string) ResponseInputItem {
	return ResponseInputItem{Type: "function_call_output", CallID: callID, Output: output}
}
