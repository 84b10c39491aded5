package google

import (
	"encoding/json"

	"github.com/google/uuid"

	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/provider"
)

// StreamChunk is one `data:` line of a streamGenerateContent SSE response.
type StreamChunk struct {
	Candidates    []StreamCandidate `json:"candidates"`
	UsageMetadata *StreamUsage      `json:"usageMetadata"`
}

// StreamCandidate carries one candidate's incremental content.
type StreamCandidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

// StreamUsage mirrors Gemini's usageMetadata block.
type StreamUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// finishReason maps Gemini's finishReason strings: STOP becomes Stop,
// MAX_TOKENS becomes Length, SAFETY and RECITATION become ContentFilter,
// anything else Stop.
func finishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

// DecodeEvent translates one parsed StreamChunk into zero or more
// CanonicalDeltas; Gemini can pack a text part, a function call, and a
// finish reason into the same chunk, each becoming its own delta.
func DecodeEvent(chunk StreamChunk) ([]*provider.CanonicalDelta, error) {
	var out []*provider.CanonicalDelta
	if len(chunk.Candidates) == 0 {
		if chunk.UsageMetadata != nil {
			out = append(out, &provider.CanonicalDelta{Usage: &provider.Usage{
				InputTokens:  chunk.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
			}})
		}
		return out, nil
	}

	cand := chunk.Candidates[0]
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return out, err
			}
			out = append(out, &provider.CanonicalDelta{ToolCallPart: &ctxmodel.ToolCallPart{
				// Gemini never sends a call id; synthesize one so the
				// result can be paired with the call.
				CallID:           "forge_call_id_" + uuid.NewString(),
				Name:             part.FunctionCall.Name,
				ArgumentsPart:    string(args),
				ThoughtSignature: part.ThoughtSignature,
			}})
		case part.Thought:
			out = append(out, &provider.CanonicalDelta{ReasoningDelta: part.Text, ThoughtSignature: part.ThoughtSignature})
		case part.Text != "":
			out = append(out, &provider.CanonicalDelta{TextDelta: part.Text})
		}
	}

	if cand.FinishReason != "" {
		out = append(out, &provider.CanonicalDelta{FinishReason: finishReason(cand.FinishReason), Done: true})
	}
	if chunk.UsageMetadata != nil {
		out = append(out, &provider.CanonicalDelta{Usage: &provider.Usage{
			InputTokens:  chunk.UsageMetadata.PromptTokenCount,
			OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
		}})
	}
	return out, nil
}
