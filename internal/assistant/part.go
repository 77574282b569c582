package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
)

type PartType string

const (
	PartText PartType = "text"
	PartTool PartType = "tool"
)

type PartState string

const (
	StateInputStreaming  PartState = "input-streaming"
	StateInputAvailable  PartState = "input-available"
	StateOutputAvailable PartState = "output-available"
	StateOutputError     PartState = "output-error"
)

func (s PartState) Terminal() bool { return s == StateOutputAvailable || s == StateOutputError }

var ErrPartRegression = errors.New("tool part state cannot move backwards")

// Part is one rendered element of an assistant turn. Parts are values; every
// transition returns a new Part and leaves the receiver untouched.
type Part struct {
	Type          PartType        `json:"type"`
	Text          string          `json:"text,omitempty"`
	ToolCallID    string          `json:"toolCallId,omitempty"`
	ToolName      string          `json:"toolName,omitempty"`
	State         PartState       `json:"state,omitempty"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        string          `json:"output,omitempty"`
	ErrorText     string          `json:"errorText,omitempty"`
	ProgressLabel string          `json:"progressLabel,omitempty"`

	partialInput string
}

func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

func ToolPart(toolCallID, toolName, label string) Part {
	return Part{Type: PartTool, ToolCallID: toolCallID, ToolName: toolName, State: StateInputStreaming, ProgressLabel: label}
}

func (p Part) regression(to PartState) error {
	return fmt.Errorf("%w: %s %s -> %s", ErrPartRegression, p.ToolCallID, p.State, to)
}

// AppendText returns a text part extended by delta.
func (p Part) AppendText(delta string) (Part, error) {
	if p.Type != PartText {
		return p, fmt.Errorf("append text to %s part", p.Type)
	}
	p.Text += delta
	return p, nil
}

func (p Part) WithInputDelta(delta string) (Part, error) {
	if p.Type != PartTool || p.State != StateInputStreaming {
		return p, p.regression(StateInputStreaming)
	}
	p.partialInput += delta
	return p, nil
}

// WithInput moves input-streaming to input-available. Input that is not
// valid JSON is kept as a JSON string so schema validation rejects it.
func (p Part) WithInput(input json.RawMessage) (Part, error) {
	if p.Type != PartTool || p.State != StateInputStreaming {
		return p, p.regression(StateInputAvailable)
	}
	if len(input) == 0 {
		input = json.RawMessage(p.partialInput)
	}
	if !json.Valid(input) {
		quoted, _ := json.Marshal(string(input))
		input = quoted
	}
	p.Input = append(json.RawMessage(nil), input...)
	p.partialInput = ""
	p.State = StateInputAvailable
	return p, nil
}

func (p Part) WithOutput(out string) (Part, error) {
	if p.Type != PartTool || p.State != StateInputAvailable {
		return p, p.regression(StateOutputAvailable)
	}
	p.Output = out
	p.State = StateOutputAvailable
	return p, nil
}

// WithError fails a tool part that has not produced output yet.
func (p Part) WithError(msg string) (Part, error) {
	if p.Type != PartTool || p.State.Terminal() {
		return p, p.regression(StateOutputError)
	}
	if p.Input == nil {
		p.Input = json.RawMessage(`{}`)
	}
	p.partialInput = ""
	p.ErrorText = msg
	p.State = StateOutputError
	return p, nil
}
