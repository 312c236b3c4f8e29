package util

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	invjsonschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema reflects a JSON schema object from a Go struct. Fields are
// required unless tagged omitempty; descriptions come from the
// jsonschema_description tag. Extra properties are allowed since models
// occasionally add fields of their own.
func CreateSchema(structType any) map[string]any {
	r := &invjsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(structType)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(out, "$schema")
	delete(out, "$id")
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

var schemaCache sync.Map

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

var missingProps = regexp.MustCompile(`'([^']+)'`)

// ValidateParameters validates parameters against a JSON schema. Compiled
// schemas are cached by their canonical JSON encoding.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// Round trip so typed Go values ([]string, int) validate like decoded JSON.
	payload, err := json.Marshal(params)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("encode parameters: %v", err)}
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return &ValidationError{Message: fmt.Sprintf("decode parameters: %v", err)}
	}

	if err := compiled.Validate(decoded); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return &ValidationError{Message: err.Error()}
		}
		for len(ve.Causes) > 0 {
			ve = ve.Causes[0]
		}
		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		if field == "" {
			if m := missingProps.FindStringSubmatch(ve.Message); m != nil {
				field = m[1]
			}
		}
		return &ValidationError{Field: field, Value: params[field], Message: ve.Message}
	}
	return nil
}
