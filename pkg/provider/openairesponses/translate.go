// Package openairesponses translates a canonical Context into OpenAI's
// Responses API wire format and decodes its SSE events back. Tool
// parameter schemas pass through the strict-schema normalization in
// pkg/schema.NormalizeStrictSchemaNode before encoding.
package openairesponses

import (
	"encoding/json"

	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/protocol"
	"forgecore/pkg/schema"
)

// Config controls request assembly.
type Config struct {
	Store bool // defaults to false: responses are never persisted server-side
}

// Encode builds a protocol.ResponsesRequest from a canonical Context.
func Encode(ctx *ctxmodel.Context, model string, cfg Config) (protocol.ResponsesRequest, error) {
	var instructions string
	input := make([]protocol.ResponseInputItem, 0, len(ctx.Messages))

	for _, m := range ctx.Messages {
		switch m.Kind {
		case ctxmodel.MessageText:
			switch m.Role {
			case ctxmodel.RoleSystem:
				instructions = m.Content
			case ctxmodel.RoleUser:
				input = append(input, protocol.UserMessage(m.Content))
			case ctxmodel.RoleAssistant:
				if m.Content != "" {
					input = append(input, protocol.ResponseInputItem{
						Type:    "message",
						Role:    "assistant",
						Content: []protocol.InputContentPart{{Type: "output_text", Text: m.Content}},
					})
				}
				for _, tc := range m.ToolCalls {
					input = append(input, protocol.FunctionCallInput(tc.Name, tc.CallID, tc.Arguments))
				}
			}
		case ctxmodel.MessageTool:
			if m.Tool != nil {
				input = append(input, protocol.FunctionCallOutputInput(m.Tool.CallID, resultText(m.Tool)))
			}
		}
	}

	tools, err := encodeTools(ctx.Tools)
	if err != nil {
		return protocol.ResponsesRequest{}, err
	}

	var reasoning *protocol.Reasoning
	if ctx.Reasoning != nil && ctx.Reasoning.Enabled {
		reasoning = &protocol.Reasoning{Effort: ctx.Reasoning.Effort}
	}

	return protocol.ResponsesRequest{
		Model:         model,
		Instructions:  instructions,
		Input:         input,
		Tools:         tools,
		ToolChoice:    encodeToolChoice(ctx.ToolChoice),
		Reasoning:     reasoning,
		Store:         cfg.Store,
		Stream:        true,
		StreamOptions: &protocol.StreamOptions{IncludeUsage: true},
	}, nil
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

// encodeTools applies strict-schema coercion: every object
// schema gets additionalProperties:false and a full required list via
// schema.NormalizeStrictSchemaNode before being marked strict:true.
func encodeTools(tools []ctxmodel.ToolDefinition) ([]protocol.ToolSpec, error) {
	out := make([]protocol.ToolSpec, 0, len(tools))
	for _, t := range tools {
		paramsMap := make(map[string]any, len(t.Parameters))
		for k, v := range t.Parameters {
			paramsMap[k] = v
		}
		typ, _ := paramsMap["type"].(string)
		if typ == "" && (paramsMap["properties"] != nil || paramsMap["required"] != nil) {
			paramsMap["type"] = "object"
			typ = "object"
		}
		if typ == "object" {
			if _, ok := paramsMap["additionalProperties"]; !ok {
				paramsMap["additionalProperties"] = false
			}
			schema.NormalizeStrictSchemaNode(paramsMap)
		}
		var params json.RawMessage
		if len(paramsMap) > 0 {
			var err error
			params, err = json.Marshal(paramsMap)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, protocol.ToolSpec{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
			Strict:      true,
		})
	}
	return out, nil
}

// encodeToolChoice maps ctxmodel.ToolChoice to the Responses API's string
// form; Call(n) has no structured form on this endpoint's request shape, so
// it degrades to "required" (the model must call some tool).
func encodeToolChoice(tc ctxmodel.ToolChoice) string {
	switch tc.Kind {
	case ctxmodel.ToolChoiceNone:
		return "none"
	case ctxmodel.ToolChoiceRequired, ctxmodel.ToolChoiceCall:
		return "required"
	default:
		return "auto"
	}
}
