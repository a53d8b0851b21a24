// Package schema translates loosely-typed capability descriptors received
// at discovery time into validated invocation contracts. Translation is a
// pure function: the same descriptor always yields the same contract.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/partsline/scm-agent/internal/agenterr"
)

// ParamType is the declared type of a single capability parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeList    ParamType = "list"
	TypeMap     ParamType = "map"
)

// Descriptor is the immutable capability advertisement received during the
// discovery round trip.
type Descriptor struct {
	Name            string
	Description     string
	InputSchemaJSON string
}

// ParamSpec describes one parameter of an invocation contract.
type ParamSpec struct {
	Type        ParamType
	Required    bool
	Description string
}

// Contract is the validated, strongly-typed invocation contract derived
// from a descriptor. Built once at discovery time, immutable thereafter.
type Contract struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
	// SchemaJSON preserves the raw parameter schema so it can be handed to
	// the model verbatim when the capability set is declared.
	SchemaJSON string
}

// Options carries translation policy. The zero value uses the defaults the
// reference behavior chose (unknown declared types become strings).
type Options struct {
	// FallbackType replaces unrecognized or missing declared types.
	FallbackType ParamType
}

func (o Options) fallback() ParamType {
	if o.FallbackType == "" {
		return TypeString
	}
	return o.FallbackType
}

// jsonObjectSchema mirrors the subset of JSON Schema that MCP servers emit
// for tool input.
type jsonObjectSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]jsonParamSchema `json:"properties"`
	Required   []string                   `json:"required"`
}

type jsonParamSchema struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Translate builds an invocation contract from a descriptor. A descriptor
// without a name is rejected as a setup failure: capability enumeration is
// a one-time handshake and a malformed entry aborts session setup.
func Translate(desc Descriptor, opts Options) (Contract, error) {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return Contract{}, agenterr.Setup("capability descriptor has no name")
	}

	contract := Contract{
		Name:        name,
		Description: strings.TrimSpace(desc.Description),
		Params:      map[string]ParamSpec{},
		SchemaJSON:  normalizeSchemaJSON(desc.InputSchemaJSON),
	}

	raw := strings.TrimSpace(desc.InputSchemaJSON)
	if raw == "" || raw == "{}" || raw == "null" {
		return contract, nil
	}

	var parsed jsonObjectSchema
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Contract{}, agenterr.Setup("capability %s: invalid parameter schema: %v", name, err)
	}

	required := map[string]bool{}
	for _, field := range parsed.Required {
		required[field] = true
	}
	for field, prop := range parsed.Properties {
		contract.Params[field] = ParamSpec{
			Type:        declaredType(prop.Type, opts.fallback()),
			Required:    required[field],
			Description: strings.TrimSpace(prop.Description),
		}
	}
	return contract, nil
}

// declaredType maps a JSON-Schema type token onto a parameter type. Any
// unknown or missing token falls back per policy rather than failing.
func declaredType(token string, fallback ParamType) ParamType {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "string":
		return TypeString
	case "integer":
		return TypeInteger
	case "number":
		return TypeNumber
	case "boolean":
		return TypeBoolean
	case "array":
		return TypeList
	case "object":
		return TypeMap
	default:
		return fallback
	}
}

// Validate checks a candidate argument mapping against the contract.
// Missing required parameters fail closed before any round trip. Unknown
// extra keys are permitted: the remote side is the source of truth.
func (c Contract) Validate(args map[string]any) error {
	for field, spec := range c.Params {
		if !spec.Required {
			continue
		}
		value, present := args[field]
		if !present || value == nil {
			return fmt.Errorf("%w: %s requires %q", agenterr.ErrMissingArgument, c.Name, field)
		}
	}
	return nil
}

// Coerce returns a copy of args with known parameters converted toward
// their declared types where the loose JSON decoding produced a different
// Go kind. Values that cannot be converted are passed through untouched.
func (c Contract) Coerce(args map[string]any) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		spec, known := c.Params[key]
		if !known || value == nil {
			out[key] = value
			continue
		}
		out[key] = coerceValue(value, spec.Type)
	}
	return out
}

func coerceValue(value any, target ParamType) any {
	switch target {
	case TypeString:
		switch v := value.(type) {
		case string:
			return v
		case float64, int, int64, bool:
			return fmt.Sprintf("%v", v)
		}
	case TypeInteger:
		switch v := value.(type) {
		case float64:
			if v == float64(int64(v)) {
				return int64(v)
			}
		case string:
			if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return parsed
			}
		case int:
			return int64(v)
		case int64:
			return v
		}
	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return parsed
			}
		}
	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return parsed
			}
		}
	}
	return value
}

// normalizeSchemaJSON guarantees a usable schema object for the model-facing
// declaration even when a capability takes no arguments.
func normalizeSchemaJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return `{"type":"object","properties":{}}`
	}
	return trimmed
}
