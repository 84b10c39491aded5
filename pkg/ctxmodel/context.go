// Package ctxmodel holds the canonical, provider-neutral conversation the
// agent runtime builds and mutates before handing it to a provider
// translator. Nothing in this package knows about wire formats.
package ctxmodel

import (
	"fmt"

	"forgecore/pkg/apierr"
)

// Role identifies a message's speaker.
type Role int

const (
	RoleSystem Role = iota
	RoleUser
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// ToolChoiceKind selects how the model must use tools.
type ToolChoiceKind int

const (
	ToolChoiceAuto ToolChoiceKind = iota
	ToolChoiceRequired
	ToolChoiceNone
	ToolChoiceCall
)

// ToolChoice pairs a ToolChoiceKind with the tool name for ToolChoiceCall.
type ToolChoice struct {
	Kind ToolChoiceKind
	Name string // populated only when Kind == ToolChoiceCall
}

// ReasoningConfig controls model "thinking" behavior.
type ReasoningConfig struct {
	Enabled   bool
	Effort    string // "high", "medium", "low"
	MaxTokens int
	Exclude   bool
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// MessageKind discriminates the ContextMessage sum.
type MessageKind int

const (
	MessageText MessageKind = iota
	MessageTool
	MessageImage
)

// ToolCallFull is a complete, ready-to-execute tool invocation.
type ToolCallFull struct {
	Name             string
	CallID           string
	Arguments        string // canonical JSON
	ThoughtSignature string
}

// ToolCallPart is one fragment of a tool call still being streamed.
type ToolCallPart struct {
	Name             string // may be empty
	CallID           string // may be empty
	ArgumentsPart    string
	ThoughtSignature string
}

// ToolResult is the paired output of a ToolCallFull.
type ToolResult struct {
	Name    string
	CallID  string
	Values  []ResultValue
	IsError bool
}

// ResultValueKind discriminates ResultValue.
type ResultValueKind int

const (
	ResultText ResultValueKind = iota
	ResultImage
	ResultEmpty
)

// ResultValue is one element of a ToolResult's output.
type ResultValue struct {
	Kind ResultValueKind
	Text string
	URL  string // image URL, when Kind == ResultImage and not inline bytes
	Mime string
	Data []byte // inline image bytes, when non-nil
}

// ImageRef is an Image-kind message payload.
type ImageRef struct {
	URL  string
	Data []byte
	Mime string
}

// ContextMessage is a tagged sum of text/tool/image content; exactly one
// variant's fields are populated per message.
type ContextMessage struct {
	Kind MessageKind

	// Populated when Kind == MessageText.
	Role             Role
	Content          string
	ToolCalls        []ToolCallFull
	ReasoningDetails []string
	Model            string

	// Populated when Kind == MessageTool.
	Tool *ToolResult

	// Populated when Kind == MessageImage.
	Image *ImageRef
}

// HasToolCall reports whether this message carries at least one tool call.
func (m ContextMessage) HasToolCall() bool {
	return m.Kind == MessageText && len(m.ToolCalls) > 0
}

// HasToolResult reports whether this message is a tool result.
func (m ContextMessage) HasToolResult() bool {
	return m.Kind == MessageTool && m.Tool != nil
}

// HasRole reports whether this message (a MessageText) has the given role.
func (m ContextMessage) HasRole(r Role) bool {
	return m.Kind == MessageText && m.Role == r
}

// NewTextMessage constructs a MessageText ContextMessage.
func NewTextMessage(role Role, content string) ContextMessage {
	return ContextMessage{Kind: MessageText, Role: role, Content: content}
}

// NewToolMessage constructs a MessageTool ContextMessage.
func NewToolMessage(result ToolResult) ContextMessage {
	return ContextMessage{Kind: MessageTool, Tool: &result}
}

// NewImageMessage constructs a MessageImage ContextMessage.
func NewImageMessage(image ImageRef) ContextMessage {
	return ContextMessage{Kind: MessageImage, Image: &image}
}

// Context is the canonical conversation unit owned exclusively by the
// Agent Runtime for the duration of one turn.
type Context struct {
	Messages []ContextMessage
	Tools    []ToolDefinition

	Temperature *float64
	TopP        *float64
	TopK        *int
	MaxTokens   *int

	ToolChoice ToolChoice
	Reasoning  *ReasoningConfig
}

// New returns an empty Context with ToolChoice defaulted to Auto.
func New() *Context {
	return &Context{ToolChoice: ToolChoice{Kind: ToolChoiceAuto}}
}

// AddMessage appends a message, enforcing that at most one System message
// exists and, if present, it is the first in the sequence.
func (c *Context) AddMessage(m ContextMessage) error {
	if m.Kind == MessageText && m.Role == RoleSystem {
		if len(c.Messages) > 0 {
			return apierr.New(apierr.ValidationFailed, "system message must be first in the conversation", nil)
		}
	}
	c.Messages = append(c.Messages, m)
	return nil
}

// AddToolResults appends one or more tool-result messages, validating that
// each references a ToolCallFull with a matching call_id earlier in the
// sequence.
func (c *Context) AddToolResults(results ...ToolResult) error {
	for _, r := range results {
		if r.CallID != "" && !c.hasPriorCall(r.CallID) {
			return apierr.New(apierr.ValidationFailed,
				fmt.Sprintf("tool result call_id %q has no matching prior tool call", r.CallID), nil)
		}
		c.Messages = append(c.Messages, NewToolMessage(r))
	}
	return nil
}

func (c *Context) hasPriorCall(callID string) bool {
	for _, m := range c.Messages {
		if m.Kind != MessageText {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.CallID == callID {
				return true
			}
		}
	}
	return false
}

// SetTools replaces the tool set, rejecting duplicate names.
func (c *Context) SetTools(tools []ToolDefinition) error {
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if seen[t.Name] {
			return apierr.New(apierr.ValidationFailed, fmt.Sprintf("duplicate tool name %q", t.Name), nil)
		}
		seen[t.Name] = true
	}
	c.Tools = tools
	return nil
}

// SetToolChoice sets the tool_choice knob.
func (c *Context) SetToolChoice(tc ToolChoice) { c.ToolChoice = tc }

// SetTemperature validates and sets temperature ∈ [0,2].
func (c *Context) SetTemperature(v float64) error {
	if v < 0 || v > 2 {
		return apierr.New(apierr.ValidationFailed, "temperature must be in [0,2]", nil)
	}
	c.Temperature = &v
	return nil
}

// SetTopP validates and sets top_p ∈ [0,1].
func (c *Context) SetTopP(v float64) error {
	if v < 0 || v > 1 {
		return apierr.New(apierr.ValidationFailed, "top_p must be in [0,1]", nil)
	}
	c.TopP = &v
	return nil
}

// SetTopK validates and sets top_k ∈ [1,1000].
func (c *Context) SetTopK(v int) error {
	if v < 1 || v > 1000 {
		return apierr.New(apierr.ValidationFailed, "top_k must be in [1,1000]", nil)
	}
	c.TopK = &v
	return nil
}

// SetMaxTokens validates and sets max_tokens ∈ [1,100000].
func (c *Context) SetMaxTokens(v int) error {
	if v < 1 || v > 100000 {
		return apierr.New(apierr.ValidationFailed, "max_tokens must be in [1,100000]", nil)
	}
	c.MaxTokens = &v
	return nil
}

// TokenCount returns a rough chars/4 heuristic over all message content.
// Consumed only by the compaction engine; never required to match any
// provider's real tokenizer.
func (c *Context) TokenCount() int {
	total := 0
	for _, m := range c.Messages {
		total += m.tokenCountApprox()
	}
	return total
}

func (m ContextMessage) tokenCountApprox() int {
	chars := 0
	switch m.Kind {
	case MessageText:
		chars = len(m.Content)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Name) + len(tc.Arguments)
		}
		for _, rd := range m.ReasoningDetails {
			chars += len(rd)
		}
	case MessageTool:
		if m.Tool != nil {
			for _, v := range m.Tool.Values {
				chars += len(v.Text)
			}
		}
	case MessageImage:
		chars = 256 // flat approximation; images aren't text-measurable
	}
	return (chars + 3) / 4
}

// FirstAssistantIndex returns the index of the first Assistant-role
// message, or -1 if there is none. Used directly by the compaction engine.
func (c *Context) FirstAssistantIndex() int {
	for i, m := range c.Messages {
		if m.HasRole(RoleAssistant) {
			return i
		}
	}
	return -1
}
