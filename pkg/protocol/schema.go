package protocol

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	requestSchema  = "schemas/secret-request.json"
	responseSchema = "schemas/secret-response.json"
)

// ErrInvalidPayload is returned when a payload fails schema validation
var ErrInvalidPayload = errors.New("invalid payload")

var (
	schemasOnce sync.Once
	schemas     map[string]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() {
	schemas = make(map[string]*gojsonschema.Schema)
	for _, path := range []string{requestSchema, responseSchema} {
		raw, err := schemaFS.ReadFile(path)
		if err != nil {
			schemasErr = fmt.Errorf("read schema %s: %w", path, err)
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			schemasErr = fmt.Errorf("compile schema %s: %w", path, err)
			return
		}
		schemas[path] = s
	}
}

func validate(schemaPath, what string, data []byte) error {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return schemasErr
	}

	result, err := schemas[schemaPath].Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %s is not valid JSON: %v", ErrInvalidPayload, what, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%w: %s failed validation:\n  - %s", ErrInvalidPayload, what, strings.Join(msgs, "\n  - "))
	}
	return nil
}
