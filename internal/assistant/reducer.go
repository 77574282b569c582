package assistant

import (
	"fmt"

	"github.com/suPer8Hu/jewelry-assistant/internal/ai"
)

// LabelFunc resolves a tool's in-progress label.
type LabelFunc func(toolName string) string

// Reduce folds one stream event into parts and returns the new list. parts is
// never modified. Parts keep model emission order.
func Reduce(parts []Part, ev ai.StreamEvent, label LabelFunc) ([]Part, error) {
	out := append(make([]Part, 0, len(parts)+1), parts...)

	switch ev.Type {
	case ai.EventTextDelta:
		if ev.Text == "" {
			return out, nil
		}
		if n := len(out); n > 0 && out[n-1].Type == PartText {
			p, err := out[n-1].AppendText(ev.Text)
			if err != nil {
				return parts, err
			}
			out[n-1] = p
			return out, nil
		}
		return append(out, TextPart(ev.Text)), nil

	case ai.EventToolInputStart:
		if indexOf(out, ev.ToolCallID) >= 0 {
			return parts, fmt.Errorf("duplicate tool call %s", ev.ToolCallID)
		}
		return append(out, ToolPart(ev.ToolCallID, ev.ToolName, labelOf(label, ev.ToolName))), nil

	case ai.EventToolInputDelta:
		i := indexOf(out, ev.ToolCallID)
		if i < 0 {
			return parts, fmt.Errorf("input delta for unknown tool call %s", ev.ToolCallID)
		}
		p, err := out[i].WithInputDelta(ev.InputDelta)
		if err != nil {
			return parts, err
		}
		out[i] = p
		return out, nil

	case ai.EventToolInputAvailable:
		i := indexOf(out, ev.ToolCallID)
		if i < 0 {
			// providers may skip the start event
			out = append(out, ToolPart(ev.ToolCallID, ev.ToolName, labelOf(label, ev.ToolName)))
			i = len(out) - 1
		}
		p, err := out[i].WithInput(ev.Input)
		if err != nil {
			return parts, err
		}
		out[i] = p
		return out, nil
	}
	return parts, fmt.Errorf("unknown stream event %q", ev.Type)
}

func indexOf(parts []Part, toolCallID string) int {
	for i, p := range parts {
		if p.Type == PartTool && p.ToolCallID == toolCallID {
			return i
		}
	}
	return -1
}

func labelOf(label LabelFunc, name string) string {
	if label == nil {
		return ""
	}
	return label(name)
}
