package registry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/suitepilot/internal/models"
	"github.com/harrison/suitepilot/internal/schema"
)

// Assertion is a predicate over one value of a validated result.
// Path is a dotted lookup ("items.0.title"); an empty path selects the
// whole result. Every populated check must hold for the assertion to pass.
type Assertion struct {
	Path        string   `yaml:"path" json:"path,omitempty"`
	Exists      *bool    `yaml:"exists" json:"exists,omitempty"`
	Equals      any      `yaml:"equals" json:"equals,omitempty"`
	Contains    string   `yaml:"contains" json:"contains,omitempty"`
	NotContains string   `yaml:"not_contains" json:"not_contains,omitempty"`
	Prefix      string   `yaml:"prefix" json:"prefix,omitempty"`
	Suffix      string   `yaml:"suffix" json:"suffix,omitempty"`
	Matches     string   `yaml:"matches" json:"matches,omitempty"`
	MinItems    *int     `yaml:"min_items" json:"min_items,omitempty"`
	MaxItems    *int     `yaml:"max_items" json:"max_items,omitempty"`
	Min         *float64 `yaml:"min" json:"min,omitempty"`
	Max         *float64 `yaml:"max" json:"max,omitempty"`
	IgnoreCase  bool     `yaml:"ignore_case" json:"ignore_case,omitempty"`
	Message     string   `yaml:"message" json:"message,omitempty"`

	pattern *regexp.Regexp
}

// compile prepares the assertion for evaluation.
func (a *Assertion) compile() error {
	if a.Matches == "" {
		return nil
	}
	expr := a.Matches
	if a.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("assertion on %q: invalid pattern: %w", a.label(), err)
	}
	a.pattern = re
	return nil
}

func (a *Assertion) label() string {
	if a.Path == "" {
		return "$"
	}
	return a.Path
}

// Check evaluates the assertion against result.
// It returns one message per failed check.
func (a *Assertion) Check(result any) []string {
	value, found := lookup(result, a.Path)

	fail := func(format string, args ...interface{}) string {
		if a.Message != "" {
			return a.Message
		}
		return fmt.Sprintf("%s: %s", a.label(), fmt.Sprintf(format, args...))
	}

	if a.Exists != nil {
		if *a.Exists && !found {
			return []string{fail("expected value to exist")}
		}
		if !*a.Exists {
			if found {
				return []string{fail("expected value to be absent")}
			}
			return nil
		}
	}
	if !found {
		return []string{fail("value not found")}
	}

	var failures []string

	if a.Equals != nil && !equalValues(value, a.Equals, a.IgnoreCase) {
		failures = append(failures, fail("expected %v, got %v", a.Equals, render(value)))
	}

	if a.Contains != "" || a.NotContains != "" || a.Prefix != "" || a.Suffix != "" {
		s, ok := value.(string)
		if !ok {
			failures = append(failures, fail("expected a string, got %T", value))
		} else {
			cmp := func(v string) string { return v }
			if a.IgnoreCase {
				cmp = strings.ToLower
			}
			if a.Contains != "" && !strings.Contains(cmp(s), cmp(a.Contains)) {
				failures = append(failures, fail("%q does not contain %q", s, a.Contains))
			}
			if a.NotContains != "" && strings.Contains(cmp(s), cmp(a.NotContains)) {
				failures = append(failures, fail("%q contains %q", s, a.NotContains))
			}
			if a.Prefix != "" && !strings.HasPrefix(cmp(s), cmp(a.Prefix)) {
				failures = append(failures, fail("%q does not start with %q", s, a.Prefix))
			}
			if a.Suffix != "" && !strings.HasSuffix(cmp(s), cmp(a.Suffix)) {
				failures = append(failures, fail("%q does not end with %q", s, a.Suffix))
			}
		}
	}

	if a.pattern != nil {
		if s, ok := value.(string); !ok {
			failures = append(failures, fail("expected a string, got %T", value))
		} else if !a.pattern.MatchString(s) {
			failures = append(failures, fail("%q does not match %q", s, a.Matches))
		}
	}

	if a.MinItems != nil || a.MaxItems != nil {
		n, ok := length(value)
		switch {
		case !ok:
			failures = append(failures, fail("expected a list or object, got %T", value))
		case a.MinItems != nil && n < *a.MinItems:
			failures = append(failures, fail("expected at least %d items, got %d", *a.MinItems, n))
		case a.MaxItems != nil && n > *a.MaxItems:
			failures = append(failures, fail("expected at most %d items, got %d", *a.MaxItems, n))
		}
	}

	if a.Min != nil || a.Max != nil {
		f, ok := number(value)
		switch {
		case !ok:
			failures = append(failures, fail("expected a number, got %T", value))
		case a.Min != nil && f < *a.Min:
			failures = append(failures, fail("%v is below minimum %v", f, *a.Min))
		case a.Max != nil && f > *a.Max:
			failures = append(failures, fail("%v is above maximum %v", f, *a.Max))
		}
	}

	return failures
}

// lookup resolves a dotted path inside a decoded JSON value.
func lookup(value any, path string) (any, bool) {
	if path == "" || path == "$" {
		return value, true
	}
	current := value
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func length(value any) (int, bool) {
	switch v := value.(type) {
	case []any:
		return len(v), true
	case map[string]any:
		return len(v), true
	case string:
		return len([]rune(v)), true
	}
	return 0, false
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// equalValues compares a decoded result value with an expected value from a
// definition file. Both sides are normalised through JSON so YAML integers
// compare equal to JSON numbers.
func equalValues(actual, expected any, ignoreCase bool) bool {
	if a, ok := actual.(string); ok {
		if e, ok := expected.(string); ok {
			if ignoreCase {
				return strings.EqualFold(a, e)
			}
			return a == e
		}
	}
	if af, ok := number(actual); ok {
		if ef, ok := number(expected); ok {
			return af == ef
		}
	}
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Declarative is the Factory for units described entirely by their
// definition: task text, optional result schema and assertion list.
func Declarative(def Definition) (models.Unit, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("definition has no name")
	}

	task, err := def.TaskDescriptor()
	if err != nil {
		return nil, fmt.Errorf("test %s: %w", def.Name, err)
	}

	doc, err := def.SchemaJSON()
	if err != nil {
		return nil, fmt.Errorf("test %s: %w", def.Name, err)
	}
	if _, err := schema.Compile(def.Name, doc); err != nil {
		return nil, fmt.Errorf("test %s: %w", def.Name, err)
	}

	assertions := make([]Assertion, len(def.Assertions))
	copy(assertions, def.Assertions)
	for i := range assertions {
		if err := assertions[i].compile(); err != nil {
			return nil, fmt.Errorf("test %s: %w", def.Name, err)
		}
	}

	return &declarativeUnit{
		name:       def.Name,
		task:       task,
		schema:     doc,
		assertions: assertions,
	}, nil
}

type declarativeUnit struct {
	name       string
	task       models.Task
	schema     json.RawMessage
	assertions []Assertion
}

func (u *declarativeUnit) Name() string                  { return u.name }
func (u *declarativeUnit) Task() models.Task             { return u.task }
func (u *declarativeUnit) OutputSchema() json.RawMessage { return u.schema }

// Validate runs every assertion and reports all failures together.
func (u *declarativeUnit) Validate(result any) error {
	var failures []string
	for i := range u.assertions {
		failures = append(failures, u.assertions[i].Check(result)...)
	}
	if len(failures) > 0 {
		return models.NewAssertionError(failures...)
	}
	return nil
}
