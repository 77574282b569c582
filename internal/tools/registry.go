package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/suPer8Hu/jewelry-assistant/internal/ai"
	"go.uber.org/zap"
)

// Navigator is the client-side navigation collaborator.
type Navigator interface {
	GoToProduct(productID string)
}

// Call identifies one tool invocation within a session.
type Call struct {
	SessionID  string
	ToolCallID string
	Nav        Navigator
}

type ExecuteFunc func(ctx context.Context, call Call, args Args) (string, error)

type Definition struct {
	Name          Name
	Description   string
	Schema        Schema
	Execute       ExecuteFunc
	ProgressLabel string
}

// Spec is the model-facing view of d.
func (d Definition) Spec() ai.ToolSpec {
	params, _ := json.Marshal(d.Schema)
	return ai.ToolSpec{Name: string(d.Name), Description: d.Description, Parameters: params}
}

// Registry is an immutable snapshot of tool definitions.
type Registry struct {
	defs    map[Name]Definition
	schemas map[Name]*jsonschema.Schema
	order   []Name
	logger  *zap.Logger
}

func newRegistry(logger *zap.Logger, defs ...Definition) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		defs:    make(map[Name]Definition, len(defs)),
		schemas: make(map[Name]*jsonschema.Schema, len(defs)),
		logger:  logger.Named("tools"),
	}
	for _, d := range defs {
		if _, dup := r.defs[d.Name]; dup {
			panic(fmt.Sprintf("tools: duplicate definition %s", d.Name))
		}
		compiled, err := d.Schema.compile(d.Name)
		if err != nil {
			panic(fmt.Sprintf("tools: schema for %s: %v", d.Name, err))
		}
		r.defs[d.Name] = d
		r.schemas[d.Name] = compiled
		r.order = append(r.order, d.Name)
	}
	return r
}

func (r *Registry) Specs() []ai.ToolSpec {
	out := make([]ai.ToolSpec, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.defs[n].Spec())
	}
	return out
}

func (r *Registry) Lookup(name string) (Definition, error) {
	n, err := ParseName(name)
	if err != nil {
		return Definition{}, err
	}
	d, ok := r.defs[n]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return d, nil
}

// ProgressLabel returns the in-progress label for name, or a generic one.
func (r *Registry) ProgressLabel(name string) string {
	if d, err := r.Lookup(name); err == nil && d.ProgressLabel != "" {
		return d.ProgressLabel
	}
	return "Working..."
}

// Invoke validates raw against the tool's schema and runs it. Errors are
// *ValidationError (execute never ran) or *ExecutionError.
func (r *Registry) Invoke(ctx context.Context, call Call, name string, raw json.RawMessage) (out string, err error) {
	d, err := r.Lookup(name)
	if err != nil {
		return "", &ValidationError{Tool: Name(name), Reason: err.Error()}
	}
	args, err := d.Schema.validate(d.Name, r.schemas[d.Name], raw)
	if err != nil {
		r.logger.Debug("tool input rejected", zap.String("tool", name), zap.String("tool_call_id", call.ToolCallID), zap.Error(err))
		return "", err
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", p))
			out, err = "", &ExecutionError{Tool: d.Name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	out, err = d.Execute(ctx, call, args)
	if err != nil {
		return "", &ExecutionError{Tool: d.Name, Err: err}
	}
	return out, nil
}
