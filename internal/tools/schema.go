package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

type PropType string

const (
	TypeString  PropType = "string"
	TypeNumber  PropType = "number"
	TypeInteger PropType = "integer"
	TypeBoolean PropType = "boolean"
)

type Property struct {
	Type        PropType `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
}

// Schema describes a flat JSON object. Properties not listed are rejected.
type Schema struct {
	Properties map[string]Property
	Required   []string
}

func (s Schema) MarshalJSON() ([]byte, error) {
	required := s.Required
	if required == nil {
		required = []string{}
	}
	props := s.Properties
	if props == nil {
		props = map[string]Property{}
	}
	return json.Marshal(struct {
		Type                 string              `json:"type"`
		Properties           map[string]Property `json:"properties"`
		Required             []string            `json:"required"`
		AdditionalProperties bool                `json:"additionalProperties"`
	}{"object", props, required, false})
}

// Args holds validated input: strings, float64 numbers, int64 integers and bools.
type Args map[string]any

func (a Args) String(key string) string {
	v, _ := a[key].(string)
	return v
}

func (a Args) Float(key string) (float64, bool) {
	v, ok := a[key].(float64)
	return v, ok
}

func (a Args) Int(key string) (int64, bool) {
	v, ok := a[key].(int64)
	return v, ok
}

// compile turns s into the validator for tool. The document is the same one
// Spec advertises to the model.
func (s Schema) compile(tool Name) (*jsonschema.Schema, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	url := "https://jewelry-assistant.local/tools/" + string(tool) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// validate decodes raw, checks it against the compiled schema and converts
// the accepted values into Args. Null values count as absent and strings are
// trimmed before their length is checked.
func (s Schema) validate(tool Name, compiled *jsonschema.Schema, raw json.RawMessage) (Args, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, &ValidationError{Tool: tool, Reason: "input must be a single JSON object"}
	}
	if obj, ok := inst.(map[string]any); ok {
		for k, v := range obj {
			switch v := v.(type) {
			case nil:
				delete(obj, k)
			case string:
				obj[k] = strings.TrimSpace(v)
			}
		}
	}
	if err := compiled.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, toValidationError(tool, verr)
		}
		return nil, &ValidationError{Tool: tool, Reason: err.Error()}
	}

	out := Args{}
	for k, v := range inst.(map[string]any) {
		switch s.Properties[k].Type {
		case TypeNumber:
			f, _ := v.(json.Number).Float64()
			out[k] = f
		case TypeInteger:
			f, _ := v.(json.Number).Float64()
			out[k] = int64(f)
		default:
			out[k] = v
		}
	}
	return out, nil
}

// toValidationError reports the first leaf failure by property name.
func toValidationError(tool Name, e *jsonschema.ValidationError) *ValidationError {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	switch k := e.ErrorKind.(type) {
	case *kind.Required:
		if len(k.Missing) > 0 {
			return &ValidationError{Tool: tool, Field: k.Missing[0], Reason: "is required"}
		}
	case *kind.AdditionalProperties:
		if len(k.Properties) > 0 {
			return &ValidationError{Tool: tool, Field: k.Properties[0], Reason: "is not a known property"}
		}
	}
	return &ValidationError{
		Tool:   tool,
		Field:  strings.Join(e.InstanceLocation, "."),
		Reason: leafMessage(e.Error()),
	}
}

// leafMessage keeps the last line of a rendered validation error without its
// location prefix.
func leafMessage(msg string) string {
	lines := strings.Split(strings.TrimSpace(msg), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	last = strings.TrimPrefix(last, "- ")
	if strings.HasPrefix(last, "at '") {
		if i := strings.Index(last, "': "); i >= 0 {
			last = last[i+3:]
		}
	}
	return last
}

func ptr[T any](v T) *T { return &v }
