// Package contracts checks request documents against the embedded JSON
// schemas before they are decoded into domain types.
package contracts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/JonMunkholm/listings/internal/core"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// CreateListing is the schema name of POST /api/listings bodies.
const CreateListing = "create_listing"

// Registry holds compiled schemas by name.
type Registry struct {
	schemas map[string]*jsonschema.Schema
}

// Load compiles every embedded schema.
func Load() (*Registry, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".schema.json") {
			continue
		}
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		if err := compiler.AddResource(e.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}

	r := &Registry{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		r.schemas[strings.TrimSuffix(name, ".schema.json")] = s
	}
	return r, nil
}

// Validate checks body against the named schema. Failures are returned as
// *core.ValidationError naming the offending field.
func (r *Registry) Validate(name string, body []byte) error {
	s, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("schema %q not found", name)
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return &core.ValidationError{Field: "body", Message: "request body is not valid JSON", Err: err}
	}

	if err := s.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return fmt.Errorf("validate %s: %w", name, err)
		}
		leaf := firstLeaf(verr)
		field := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if field == "" {
			field = "body"
		}
		return &core.ValidationError{
			Field:   strings.ReplaceAll(field, "/", "."),
			Message: leaf.Message,
			Err:     err,
		}
	}
	return nil
}

// firstLeaf descends to the most specific cause.
func firstLeaf(e *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	return e
}
