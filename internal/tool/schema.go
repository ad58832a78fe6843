package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ebrain-io/ebrain/internal/apperr"
)

// ParamType is a JSON Schema primitive type.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Param declares one named argument of an operation.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// Default is applied when the argument is absent. Nil means no default.
	Default any
}

// Schema declares the arguments an operation accepts.
type Schema struct {
	Params []Param
	// AllowExtra passes undeclared arguments through to the handler instead
	// of dropping them.
	AllowExtra bool
}

// JSONSchema renders the schema as a JSON Schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := []string{}
	for _, p := range s.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	out := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": s.AllowExtra,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Validate checks args against the schema and returns a new argument map
// with defaults applied and numbers coerced to the declared type. Nil
// values count as absent. args itself is never modified. All violations
// are reported together as an invalid_input error.
func (s Schema) Validate(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	declared := make(map[string]bool, len(s.Params))
	var bad, problems []string

	for _, p := range s.Params {
		declared[p.Name] = true
		v, ok := args[p.Name]
		if !ok || v == nil {
			switch {
			case p.Default != nil:
				out[p.Name] = p.Default
			case p.Required:
				bad = append(bad, p.Name)
				problems = append(problems, p.Name+" is required")
			}
			continue
		}
		cv, err := coerce(p.Type, v)
		if err != nil {
			bad = append(bad, p.Name)
			problems = append(problems, p.Name+" "+err.Error())
			continue
		}
		out[p.Name] = cv
	}

	if s.AllowExtra {
		for k, v := range args {
			if !declared[k] && v != nil {
				out[k] = v
			}
		}
	}

	if len(bad) > 0 {
		return nil, apperr.InvalidInput(bad, strings.Join(problems, "; "))
	}
	return out, nil
}

func coerce(t ParamType, v any) (any, error) {
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case TypeInteger:
		if f, ok := toFloat(v); ok && f == math.Trunc(f) {
			// MaxInt rounds up to a power of two as a float64.
			if f < math.MinInt || f >= math.MaxInt {
				return nil, fmt.Errorf("is out of range for an integer: %v", f)
			}
			return int(f), nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("must be of type %s, got %s", t, describe(v))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
