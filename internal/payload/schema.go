package payload

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/vrsandeep/bom-preview/internal/models"
)

const previewSchema = `{
  "type": "object",
  "required": ["rubber_validation", "steel_validation", "rm_validation", "prod_validation"],
  "properties": {
    "rubber_validation": {"type": "array", "items": {"$ref": "#/$defs/row"}},
    "steel_validation":  {"type": "array", "items": {"$ref": "#/$defs/row"}},
    "rm_validation":     {"type": "array", "items": {"$ref": "#/$defs/row"}},
    "prod_validation":   {"type": "array", "items": {"$ref": "#/$defs/row"}}
  },
  "$defs": {
    "row": {
      "type": "object",
      "required": ["status"],
      "properties": {
        "status": {"type": "string"},
        "fields": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "required": ["value", "status"],
            "properties": {
              "status": {"enum": ["ok", "error", "same", "update", "new"]}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func previewResultSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("preview_result.json", strings.NewReader(previewSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("preview_result.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// ParsePreviewResult validates a preview result body (envelope allowed)
// and decodes it. The validated bytes are returned alongside so they can be
// posted unchanged as import input.
func ParsePreviewResult(raw []byte) (*models.PreviewResult, []byte, error) {
	inner := Unwrap(raw)

	schema, err := previewResultSchema()
	if err != nil {
		return nil, nil, err
	}
	var v any
	if err := json.Unmarshal(inner, &v); err != nil {
		return nil, nil, fmt.Errorf("unmarshal preview result: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, nil, fmt.Errorf("preview result does not match schema: %w", err)
	}

	var res models.PreviewResult
	if err := json.Unmarshal(inner, &res); err != nil {
		return nil, nil, fmt.Errorf("decode preview result: %w", err)
	}
	return &res, inner, nil
}
