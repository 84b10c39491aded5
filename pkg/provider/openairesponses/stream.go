package openairesponses

import (
	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/protocol"
	"forgecore/pkg/provider"
)

// DecodeEvent translates one raw Responses-API SSE event into a
// CanonicalDelta. Tool-call argument fragments are emitted as
// ctxmodel.ToolCallPart values for pkg/stream.Collector to reassemble; this
// function does no reassembly of its own.
func DecodeEvent(ev protocol.StreamEvent) (*provider.CanonicalDelta, error) {
	switch ev.Type {
	case "response.output_text.delta":
		if ev.Delta == "" {
			return nil, nil
		}
		return &provider.CanonicalDelta{TextDelta: ev.Delta}, nil

	case "response.function_call_arguments.delta":
		callID, name := callIDAndName(ev)
		if callID == "" {
			return nil, nil
		}
		return &provider.CanonicalDelta{ToolCallPart: &ctxmodel.ToolCallPart{
			CallID: callID, Name: name, ArgumentsPart: ev.Delta,
		}}, nil

	case "response.function_call_arguments.done":
		callID, name := callIDAndName(ev)
		args := ev.Delta
		if ev.Item != nil && ev.Item.Arguments != "" {
			args = ev.Item.Arguments
		}
		if callID == "" {
			return nil, nil
		}
		return &provider.CanonicalDelta{ToolCallPart: &ctxmodel.ToolCallPart{
			CallID: callID, Name: name, ArgumentsPart: args,
		}}, nil

	case "response.completed", "response.done":
		delta := &provider.CanonicalDelta{Done: true}
		if ev.Response != nil && ev.Response.Usage != nil {
			delta.Usage = &provider.Usage{
				InputTokens:  ev.Response.Usage.InputTokens,
				OutputTokens: ev.Response.Usage.OutputTokens,
			}
		}
		return delta, nil

	case "error":
		msg := ev.Message
		if msg == "" {
			msg = "unknown error"
		}
		return &provider.CanonicalDelta{FinishReason: "error: " + msg, Done: true}, nil
	}

	return nil, nil
}

func callIDAndName(ev protocol.StreamEvent) (callID, name string) {
	if ev.Item == nil {
		return "", ""
	}
	return ev.Item.CallID, ev.Item.Name
}
