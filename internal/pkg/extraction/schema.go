package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildReceiptJSONSchema returns the JSON schema the model reply must match.
// It is sent to the model as a response constraint and used locally to validate.
func BuildReceiptJSONSchema(allowedCategories []string) map[string]any {
	props := map[string]any{
		"merchant_name":    map[string]any{"type": "string", "minLength": 1, "maxLength": 255},
		"amount":           map[string]any{"type": "string", "pattern": `^\d+(\.\d{1,2})?$`},
		"currency":         map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`},
		"receipt_date":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"category":         map[string]any{"type": "string"},
		"confidence":       map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"extraction_notes": map[string]any{"type": "string", "maxLength": 2000},
	}
	if len(allowedCategories) > 0 {
		props["category"] = map[string]any{"type": "string", "enum": allowedCategories}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"merchant_name", "amount", "currency"},
	}
}

// Schema is a compiled receipt schema
type Schema struct {
	raw      map[string]any
	compiled *jsonschema.Schema
}

// CompileSchema compiles the schema once so each reply is only validated
func CompileSchema(schemaMap map[string]any) (*Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("receipt.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("receipt.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{raw: schemaMap, compiled: compiled}, nil
}

// Map returns the uncompiled schema for embedding into requests
func (s *Schema) Map() map[string]any {
	return s.raw
}

// Validate checks a JSON document against the schema
func (s *Schema) Validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
