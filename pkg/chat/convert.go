package chat

import (
	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/harness"
)

// buildContext adapts a harness.Turn into a ctxmodel.Context. It is the
// fuller counterpart of pkg/agent.turnMessagesToContext: that adapter
// only exists to feed the compaction engine a token estimate and drops
// tools, instructions, and reasoning config, all three of which a real
// provider call needs.
func buildContext(turn *harness.Turn) (*ctxmodel.Context, error) {
	cc := ctxmodel.New()

	if turn.Instructions != "" {
		if err := cc.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleSystem, turn.Instructions)); err != nil {
			return nil, err
		}
	}

	for _, m := range turn.Messages {
		switch m.Role {
		case "system":
			if err := cc.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleSystem, m.Content)); err != nil {
				return nil, err
			}
		case "tool":
			err := cc.AddMessage(ctxmodel.NewToolMessage(ctxmodel.ToolResult{
				Name:   m.Name,
				CallID: m.ToolID,
				Values: []ctxmodel.ResultValue{{Kind: ctxmodel.ResultText, Text: m.Content}},
			}))
			if err != nil {
				return nil, err
			}
		case "assistant":
			am := ctxmodel.NewTextMessage(ctxmodel.RoleAssistant, m.Content)
			// RunToolLoop echoes each tool call as its own assistant Message
			// with ToolID set and Content holding the call's JSON arguments
			// (see pkg/harness/toolloop.go's followupMsgs construction).
			if m.ToolID != "" {
				am.Content = ""
				am.ToolCalls = []ctxmodel.ToolCallFull{{Name: m.Name, CallID: m.ToolID, Arguments: m.Content}}
			}
			if err := cc.AddMessage(am); err != nil {
				return nil, err
			}
		default:
			if err := cc.AddMessage(ctxmodel.NewTextMessage(ctxmodel.RoleUser, m.Content)); err != nil {
				return nil, err
			}
		}
	}

	if len(turn.Tools) > 0 {
		tools := make([]ctxmodel.ToolDefinition, 0, len(turn.Tools))
		for _, t := range turn.Tools {
			tools = append(tools, ctxmodel.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		if err := cc.SetTools(tools); err != nil {
			return nil, err
		}
	}

	if turn.Reasoning != nil && turn.Reasoning.Effort != "" {
		cc.Reasoning = &ctxmodel.ReasoningConfig{Enabled: true, Effort: turn.Reasoning.Effort}
	}

	return cc, nil
}
