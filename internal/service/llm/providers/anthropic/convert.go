package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	domainllm "parley/internal/domain/services/llm"
)

// convertMessages converts domain messages to Anthropic SDK format. Tool
// results travel in a user-role message per the Anthropic wire protocol.
func convertMessages(messages []domainllm.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case "user":
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))

		case "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolUses))
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, use := range msg.ToolUses {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    use.ID,
						Name:  use.Name,
						Input: use.Input,
					},
				})
			}
			if len(blocks) == 0 {
				return nil, fmt.Errorf("message %d: assistant message has no content", i)
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		case "tool":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResults))
			for _, res := range msg.ToolResults {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: res.ToolUseID,
						IsError:   anthropic.Bool(res.IsError),
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: res.Content}},
						},
					},
				})
			}
			if len(blocks) == 0 {
				return nil, fmt.Errorf("message %d: tool message has no results", i)
			}
			result = append(result, anthropic.NewUserMessage(blocks...))

		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}
	}

	return result, nil
}

// convertTools converts domain tool definitions to the SDK tool params.
func convertTools(defs []domainllm.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := def.InputSchema["properties"]; ok {
			schema.Properties = props
		}
		schema.Required = requiredFields(def.InputSchema["required"])

		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: schema,
			},
		})
	}
	return tools
}

// requiredFields tolerates both []string and []interface{} encodings of the
// JSON Schema "required" list.
func requiredFields(raw interface{}) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
