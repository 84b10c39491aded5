package openaichat

import (
	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/provider"
)

// StreamChunk is one `data:` line of a Chat Completions stream response.
type StreamChunk struct {
	Choices []StreamChoice `json:"choices"`
	Usage   *ChunkUsage    `json:"usage"`
}

// StreamChoice carries one choice's incremental delta.
type StreamChoice struct {
	Delta        StreamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

// StreamDelta is the incremental content of a streamed choice.
type StreamDelta struct {
	Content   string          `json:"content"`
	ToolCalls []StreamToolCall `json:"tool_calls"`
}

// StreamToolCall is one fragment of an in-progress tool call; Index
// distinguishes concurrently-streamed parallel calls sharing one response.
type StreamToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id"`
	Function StreamToolCallFn `json:"function"`
}

// StreamToolCallFn is the function fragment nested under StreamToolCall.
type StreamToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChunkUsage mirrors the stream_options.include_usage final-chunk payload.
type ChunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// StreamState carries the call id assigned to each tool-call index across
// chunks; the wire format streams a call's id only on its first fragment,
// and later fragments identify the call by Index alone.
type StreamState struct {
	callIDs map[int]string
}

// DecodeEvent translates one parsed StreamChunk into zero or more
// CanonicalDeltas. A chunk's delta can carry several tool_calls entries at
// once (parallel calls, keyed by Index), so every entry is emitted as its
// own ToolCallPart with the index-mapped call id restored from state.
func DecodeEvent(chunk StreamChunk, state *StreamState) []*provider.CanonicalDelta {
	if chunk.Usage != nil {
		return []*provider.CanonicalDelta{{
			Usage: &provider.Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens},
			Done:  true,
		}}
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		return []*provider.CanonicalDelta{{TextDelta: choice.Delta.Content}}
	}
	if len(choice.Delta.ToolCalls) > 0 {
		if state.callIDs == nil {
			state.callIDs = make(map[int]string)
		}
		out := make([]*provider.CanonicalDelta, 0, len(choice.Delta.ToolCalls))
		for _, tc := range choice.Delta.ToolCalls {
			if tc.ID != "" {
				state.callIDs[tc.Index] = tc.ID
			}
			out = append(out, &provider.CanonicalDelta{ToolCallPart: &ctxmodel.ToolCallPart{
				CallID:        state.callIDs[tc.Index],
				Name:          tc.Function.Name,
				ArgumentsPart: tc.Function.Arguments,
			}})
		}
		return out
	}
	if choice.FinishReason != "" {
		return []*provider.CanonicalDelta{{FinishReason: choice.FinishReason, Done: true}}
	}
	return nil
}
