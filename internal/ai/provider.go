package ai

import "encoding/json"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	Role    string
	Content string

	// assistant turns that requested tools
	ToolCalls []ToolCall
	// tool result turns
	ToolCallID string
	ToolName   string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolSpec is the model-facing view of a tool: never the handler.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type functionSpec struct {
	Type     string   `json:"type"`
	Function ToolSpec `json:"function"`
}

func functionSpecs(tools []ToolSpec) []functionSpec {
	if len(tools) == 0 {
		return nil
	}
	out := make([]functionSpec, 0, len(tools))
	for _, t := range tools {
		out = append(out, functionSpec{Type: "function", Function: t})
	}
	return out
}
