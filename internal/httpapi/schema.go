package httpapi

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// bodySchema is a named JSON Schema for one request body.
type bodySchema struct {
	Name       string
	Definition map[string]any
}

var nameSchema = &bodySchema{
	Name: "student_name",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 1, "maxLength": 64},
		},
		"required":             []any{"name"},
		"additionalProperties": false,
	},
}

var balanceSchema = &bodySchema{
	Name: "balance_override",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"balance": map[string]any{"type": "integer", "minimum": 0},
		},
		"required":             []any{"balance"},
		"additionalProperties": false,
	},
}

var attemptSchema = &bodySchema{
	Name: "attempt_submission",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"student_id": map[string]any{"type": "string", "minLength": 1},
			"request_id": map[string]any{"type": "string", "minLength": 1},
			"raw_score":  map[string]any{"type": "integer", "minimum": 0},
			"review":     map[string]any{"type": "boolean"},
			"answers": map[string]any{
				"type": []any{"array", "null"},
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"item_id": map[string]any{"type": "string", "minLength": 1},
						"correct": map[string]any{"type": "boolean"},
					},
					"required": []any{"item_id", "correct"},
				},
			},
		},
		"required":             []any{"student_id", "request_id", "raw_score"},
		"additionalProperties": false,
	},
}

var studyOrderSchema = &bodySchema{
	Name: "study_order",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"item_ids": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []any{"item_ids"},
		"additionalProperties": false,
	},
}

// schemaCache caches compiled schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// validateBody checks raw JSON against schema.
func validateBody(schema *bodySchema, raw []byte) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	compiled, err := compiledSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", schema.Name, err)
	}
	if err := compiled.Validate(parsed); err != nil {
		return err
	}
	return nil
}

func compiledSchema(schema *bodySchema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a plain decoded JSON value.
	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(url, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}
