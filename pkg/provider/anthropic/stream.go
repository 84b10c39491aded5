package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go"

	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/provider"
)

// StreamState accumulates the fields an Anthropic stream spreads across
// several events (tool id/name/arguments, token counts) before a single
// CanonicalDelta can be emitted for them. One per in-flight turn.
type StreamState struct {
	blockType    string
	toolID       string
	toolName     string
	toolArgsJSON string
	inputTokens  int
	outputTokens int
}

// DecodeEvent translates one raw Anthropic stream event into a
// CanonicalDelta, or nil if the event carries no canonical content (e.g. a
// content_block_start for a block type with no immediate delta).
func DecodeEvent(event anthropic.MessageStreamEventUnion, state *StreamState) (*provider.CanonicalDelta, error) {
	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		block := e.ContentBlock
		switch block.Type {
		case "text":
			state.blockType = "text"
		case "thinking":
			state.blockType = "thinking"
		case "tool_use":
			state.blockType = "tool_use"
			toolBlock := block.AsToolUse()
			state.toolID = toolBlock.ID
			state.toolName = toolBlock.Name
			state.toolArgsJSON = ""
		}
		return nil, nil

	case anthropic.ContentBlockDeltaEvent:
		switch delta := e.Delta; delta.Type {
		case "text_delta":
			return &provider.CanonicalDelta{TextDelta: delta.AsTextDelta().Text}, nil
		case "thinking_delta":
			return &provider.CanonicalDelta{ReasoningDelta: delta.AsThinkingDelta().Thinking}, nil
		case "signature_delta":
			return &provider.CanonicalDelta{ThoughtSignature: delta.AsSignatureDelta().Signature}, nil
		case "input_json_delta":
			state.toolArgsJSON += delta.AsInputJSONDelta().PartialJSON
			return nil, nil
		}
		return nil, nil

	case anthropic.ContentBlockStopEvent:
		blockType := state.blockType
		state.blockType = ""
		if blockType == "tool_use" {
			return &provider.CanonicalDelta{
				ToolCallPart: &ctxmodel.ToolCallPart{
					CallID:        state.toolID,
					Name:          state.toolName,
					ArgumentsPart: state.toolArgsJSON,
				},
			}, nil
		}
		return nil, nil

	case anthropic.MessageStartEvent:
		if e.Message.Usage.InputTokens > 0 {
			state.inputTokens = int(e.Message.Usage.InputTokens)
		}
		return nil, nil

	case anthropic.MessageDeltaEvent:
		if e.Usage.OutputTokens > 0 {
			state.outputTokens = int(e.Usage.OutputTokens)
		}
		if string(e.Delta.StopReason) != "" {
			return &provider.CanonicalDelta{FinishReason: string(e.Delta.StopReason)}, nil
		}
		return nil, nil

	case anthropic.MessageStopEvent:
		delta := &provider.CanonicalDelta{Done: true}
		if state.inputTokens > 0 || state.outputTokens > 0 {
			delta.Usage = &provider.Usage{InputTokens: state.inputTokens, OutputTokens: state.outputTokens}
		}
		return delta, nil
	}

	return nil, nil
}
