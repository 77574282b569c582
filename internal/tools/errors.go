package tools

import (
	"errors"
	"fmt"
)

var ErrUnknownTool = errors.New("unknown tool")

// ValidationError means the input was rejected before execute ran.
type ValidationError struct {
	Tool   Name
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input for %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid input for %s: %s %s", e.Tool, e.Field, e.Reason)
}

// ExecutionError wraps a failure returned (or a panic raised) by execute.
type ExecutionError struct {
	Tool Name
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
