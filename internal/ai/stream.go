package ai

import (
	"context"
	"encoding/json"
)

type EventType string

const (
	EventTextDelta          EventType = "text-delta"
	EventToolInputStart     EventType = "tool-input-start"
	EventToolInputDelta     EventType = "tool-input-delta"
	EventToolInputAvailable EventType = "tool-input-available"
)

// StreamEvent is one increment of model output. Tool events carry the
// provider's call id so deltas can be matched to their start.
type StreamEvent struct {
	Type       EventType
	Text       string
	ToolCallID string
	ToolName   string
	InputDelta string
	Input      json.RawMessage
}

// ToolCaller streams a model turn with tool calling enabled.
// Both channels are closed when the turn ends; at most one error is sent.
type ToolCaller interface {
	StreamWithTools(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan StreamEvent, <-chan error)
}

func send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
