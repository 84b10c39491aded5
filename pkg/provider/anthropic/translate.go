// Package anthropic translates a canonical Context into the Anthropic
// Messages API wire format and decodes its stream events back, including
// ephemeral cache-control marking on the system prompt and conversation
// tail.
package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"forgecore/pkg/ctxmodel"
)

// Config controls request assembly.
type Config struct {
	DefaultMaxTokens int
	ThinkingBudget   int
	// CacheSystemAndTail marks the system prompt and the last message in the
	// conversation as ephemeral cache breakpoints, so only the turn's new
	// content falls outside the provider's cached prefix.
	CacheSystemAndTail bool
}

// wireRole groups canonical messages the way Anthropic's alternating
// user/assistant turns require: consecutive messages with the same wireRole
// collapse into one anthropic.MessageParam with multiple content blocks.
type wireRole int

const (
	wireUser wireRole = iota
	wireAssistant
)

// Encode builds anthropic.MessageNewParams from a canonical Context.
func Encode(ctx *ctxmodel.Context, model string, cfg Config) (anthropic.MessageNewParams, error) {
	maxTokens := cfg.DefaultMaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if ctx.MaxTokens != nil {
		maxTokens = *ctx.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if ctx.Temperature != nil {
		params.Temperature = anthropic.Float(*ctx.Temperature)
	}
	if ctx.TopP != nil {
		params.TopP = anthropic.Float(*ctx.TopP)
	}
	if ctx.TopK != nil {
		params.TopK = anthropic.Int(int64(*ctx.TopK))
	}

	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	var curRole wireRole
	var curBlocks []anthropic.ContentBlockParamUnion
	haveCur := false

	flush := func() {
		if !haveCur {
			return
		}
		if curRole == wireUser {
			messages = append(messages, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: curBlocks})
		} else {
			messages = append(messages, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: curBlocks})
		}
		curBlocks = nil
		haveCur = false
	}
	push := func(role wireRole, block anthropic.ContentBlockParamUnion) {
		if haveCur && curRole != role {
			flush()
		}
		curRole = role
		haveCur = true
		curBlocks = append(curBlocks, block)
	}

	for _, m := range ctx.Messages {
		switch m.Kind {
		case ctxmodel.MessageText:
			switch m.Role {
			case ctxmodel.RoleSystem:
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			case ctxmodel.RoleUser:
				push(wireUser, anthropic.NewTextBlock(m.Content))
			case ctxmodel.RoleAssistant:
				if m.Content != "" {
					push(wireAssistant, anthropic.NewTextBlock(m.Content))
				}
				for _, tc := range m.ToolCalls {
					var input map[string]any
					if tc.Arguments != "" {
						if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
							return params, fmt.Errorf("anthropic: tool call %s arguments: %w", tc.CallID, err)
						}
					}
					push(wireAssistant, anthropic.NewToolUseBlock(tc.CallID, input, tc.Name))
				}
			}
		case ctxmodel.MessageTool:
			if m.Tool == nil {
				continue
			}
			push(wireUser, anthropic.NewToolResultBlock(m.Tool.CallID, resultText(m.Tool), m.Tool.IsError))
		case ctxmodel.MessageImage:
			if m.Image == nil || m.Image.Data == nil {
				continue
			}
			push(wireUser, anthropic.NewImageBlockBase64(m.Image.Mime, base64.StdEncoding.EncodeToString(m.Image.Data)))
		}
	}
	flush()

	if cfg.CacheSystemAndTail {
		system = cachedSystem(system, true)
		if n := len(messages); n > 0 {
			messages[n-1] = cachedMessage(messages[n-1], true)
		}
	}

	if len(system) > 0 {
		params.System = system
	}
	params.Messages = messages

	if len(ctx.Tools) > 0 {
		tools, err := encodeTools(ctx.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}
	params.ToolChoice = encodeToolChoice(ctx.ToolChoice)

	if ctx.Reasoning != nil && ctx.Reasoning.Enabled && ctx.MaxTokens != nil {
		budget := ctx.Reasoning.MaxTokens
		if budget <= 0 {
			budget = cfg.ThinkingBudget
		}
		if budget > 0 {
			params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
			if params.MaxTokens < int64(budget)+4096 {
				params.MaxTokens = int64(budget) + 4096
			}
		}
	}

	return params, nil
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

func encodeTools(tools []ctxmodel.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if t.Parameters != nil {
			if props, ok := t.Parameters["properties"].(map[string]any); ok {
				schema.Properties = props
			}
			if req, ok := t.Parameters["required"].([]any); ok {
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return result, nil
}

// encodeToolChoice maps ctxmodel.ToolChoice onto the Messages API union:
// Auto to Auto, Required to Any, Call(n) to Tool{name:n}. Anthropic has no
// real deny-all choice, so None also falls back to Auto.
func encodeToolChoice(tc ctxmodel.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch tc.Kind {
	case ctxmodel.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case ctxmodel.ToolChoiceCall:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tc.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}
