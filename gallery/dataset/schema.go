package dataset

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// recordSchema rejects lines that are JSON but not records. Unknown fields
// are allowed.
const recordSchema = `{
  "type": "object",
  "properties": {
    "image_path":  {"type": ["string", "null"]},
    "text":        {"type": ["string", "null"]},
    "model":       {"type": ["string", "null"]},
    "contributor": {"type": ["string", "null"]},
    "source":      {"type": ["string", "null"]},
    "messages": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "role":    {"type": "string"},
          "content": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	})
	return schema, schemaErr
}

// validateLine checks one JSONL line against the record schema.
func validateLine(line []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("record schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(line))
	if err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if !result.Valid() {
		if errs := result.Errors(); len(errs) > 0 {
			return fmt.Errorf("not a record: %s", errs[0].String())
		}
		return fmt.Errorf("not a record")
	}
	return nil
}
