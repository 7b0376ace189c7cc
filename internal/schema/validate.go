// Package schema compiles result schemas and validates executor output against them.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/harrison/suitepilot/internal/models"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Schema is a compiled result schema for one unit.
// A Schema with no compiled document accepts any JSON value.
type Schema struct {
	unit     string
	compiled *jsonschema.Schema
}

// Compile compiles a JSON Schema document for the named unit.
// An empty document yields a permissive Schema.
func Compile(unit string, doc json.RawMessage) (*Schema, error) {
	s := &Schema{unit: unit}
	if len(bytes.TrimSpace(doc)) == 0 || string(bytes.TrimSpace(doc)) == "null" {
		return s, nil
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", unit, err)
	}

	loc := resourceName(unit)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(loc, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", unit, err)
	}

	compiled, err := compiler.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", unit, err)
	}
	s.compiled = compiled
	return s, nil
}

// Validate decodes raw executor output and checks it against the schema.
// The decoded value is returned on success. Any decode or validation
// failure is reported as a *models.SchemaError.
func (s *Schema) Validate(raw []byte) (any, error) {
	value, err := Decode(raw)
	if err != nil {
		return nil, &models.SchemaError{
			Unit:   s.unit,
			Issues: []string{fmt.Sprintf("result is not valid JSON: %v", err)},
			Err:    err,
		}
	}

	if s.compiled == nil {
		return value, nil
	}

	if err := s.compiled.Validate(value); err != nil {
		return nil, &models.SchemaError{
			Unit:   s.unit,
			Issues: issues(err),
			Err:    err,
		}
	}
	return value, nil
}

// Decode parses executor output into a generic JSON value.
// Output wrapped in a markdown code fence or surrounded by prose
// is unwrapped before giving up.
func Decode(raw []byte) (any, error) {
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, errors.New("empty result")
	}

	value, err := jsonschema.UnmarshalJSON(strings.NewReader(content))
	if err == nil {
		return value, nil
	}

	if unfenced := stripFence(content); unfenced != content {
		if v, ferr := jsonschema.UnmarshalJSON(strings.NewReader(unfenced)); ferr == nil {
			return v, nil
		}
	}

	if extracted := ExtractJSON(content); extracted != "" {
		if v, xerr := jsonschema.UnmarshalJSON(strings.NewReader(extracted)); xerr == nil {
			return v, nil
		}
	}
	return nil, err
}

// ExtractJSON returns the substring between the first '{' and the last '}'.
// Returns empty string if no object boundaries are found.
func ExtractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}

func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(content), "```"))
}

// issues flattens a validation error into one message per violated location.
func issues(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	printer := message.NewPrinter(language.English)
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := "/" + strings.Join(e.InstanceLocation, "/")
			out = append(out, fmt.Sprintf("at %s: %s", loc, e.ErrorKind.LocalizedString(printer)))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	if len(out) == 0 {
		return []string{ve.Error()}
	}
	return out
}

func resourceName(unit string) string {
	name := unsafeChars.ReplaceAllString(unit, "_")
	if name == "" {
		name = "unit"
	}
	return name + ".schema.json"
}
