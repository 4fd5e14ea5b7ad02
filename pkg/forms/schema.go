package forms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// fieldListSchema is the JSON Schema applied to field lists at authoring time,
// before they are decoded into models. It catches malformed definitions early
// with positional error messages instead of zero-valued structs.
const fieldListSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "array",
	"items": {
		"type": "object",
		"required": ["key", "label", "definition"],
		"properties": {
			"key": {"type": "string", "minLength": 1},
			"label": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"required": {"type": "boolean"},
			"editable": {"type": "boolean"},
			"definition": {
				"type": "object",
				"required": ["kind"],
				"properties": {
					"kind": {
						"type": "string",
						"enum": [
							"single_line_text",
							"multi_line_text",
							"single_choice",
							"multiple_choice",
							"bool",
							"image",
							"file",
							"if_equal",
							"end_if"
						]
					},
					"max_chars": {"type": "integer", "minimum": 1},
					"max_lines": {"type": "integer", "minimum": 1},
					"options": {
						"type": "array",
						"items": {"type": ["integer", "string"]}
					},
					"max_options": {"type": "integer", "minimum": 1},
					"is_checkbox": {"type": "boolean"},
					"max_size": {"type": "integer", "minimum": 1},
					"min_width": {"type": "integer", "minimum": 1},
					"max_width": {"type": "integer", "minimum": 1},
					"min_height": {"type": "integer", "minimum": 1},
					"max_height": {"type": "integer", "minimum": 1},
					"mimes": {
						"type": "array",
						"items": {"type": "string"}
					},
					"key": {"type": "string"},
					"from": {"type": "string"},
					"value": {"type": ["integer", "string"]},
					"default": {
						"type": "object",
						"required": ["mode"],
						"properties": {
							"mode": {"type": "string", "enum": ["static", "dynamic"]},
							"source_template_id": {"type": "string"},
							"source_step_id": {"type": "string"},
							"field_key": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`

// ValidateFieldDocument checks a raw field list against the authoring schema.
func ValidateFieldDocument(document json.RawMessage) error {
	schemaLoader := gojsonschema.NewStringLoader(fieldListSchema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate field document: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("invalid field document: %s", strings.Join(details, "; "))
}
