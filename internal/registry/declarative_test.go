package registry

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/suitepilot/internal/models"
)

func boolPtr(b bool) *bool        { return &b }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestAssertion_Check(t *testing.T) {
	result := `{
		"title": "Golang - Search",
		"count": 42,
		"items": [{"name": "first"}, {"name": "second"}],
		"meta": {"ok": true}
	}`

	tests := []struct {
		name      string
		assertion Assertion
		wantFail  bool
	}{
		{"exists", Assertion{Path: "title", Exists: boolPtr(true)}, false},
		{"exists missing", Assertion{Path: "missing", Exists: boolPtr(true)}, true},
		{"absent", Assertion{Path: "missing", Exists: boolPtr(false)}, false},
		{"absent but present", Assertion{Path: "title", Exists: boolPtr(false)}, true},
		{"equals string", Assertion{Path: "title", Equals: "Golang - Search"}, false},
		{"equals ignore case", Assertion{Path: "title", Equals: "golang - search", IgnoreCase: true}, false},
		{"equals number", Assertion{Path: "count", Equals: 42}, false},
		{"equals number mismatch", Assertion{Path: "count", Equals: 41}, true},
		{"equals object", Assertion{Path: "meta", Equals: map[string]any{"ok": true}}, false},
		{"contains", Assertion{Path: "title", Contains: "Search"}, false},
		{"contains ignore case", Assertion{Path: "title", Contains: "golang", IgnoreCase: true}, false},
		{"contains case sensitive", Assertion{Path: "title", Contains: "golang"}, true},
		{"not contains", Assertion{Path: "title", NotContains: "Bing"}, false},
		{"prefix", Assertion{Path: "title", Prefix: "Golang"}, false},
		{"suffix mismatch", Assertion{Path: "title", Suffix: "Golang"}, true},
		{"matches", Assertion{Path: "title", Matches: `^Go\w+`}, false},
		{"contains on number", Assertion{Path: "count", Contains: "4"}, true},
		{"index path", Assertion{Path: "items.1.name", Equals: "second"}, false},
		{"index out of range", Assertion{Path: "items.5.name"}, true},
		{"min items", Assertion{Path: "items", MinItems: intPtr(2)}, false},
		{"min items failing", Assertion{Path: "items", MinItems: intPtr(3)}, true},
		{"max items failing", Assertion{Path: "items", MaxItems: intPtr(1)}, true},
		{"min", Assertion{Path: "count", Min: floatPtr(10)}, false},
		{"max failing", Assertion{Path: "count", Max: floatPtr(10)}, true},
		{"whole result", Assertion{MinItems: intPtr(4)}, false},
	}

	value := decode(t, result)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.assertion
			require.NoError(t, a.compile())
			failures := a.Check(value)
			if tt.wantFail {
				assert.NotEmpty(t, failures)
			} else {
				assert.Empty(t, failures)
			}
		})
	}
}

func TestAssertion_CustomMessage(t *testing.T) {
	a := Assertion{Path: "title", Equals: "x", Message: "title must be x"}
	failures := a.Check(decode(t, `{"title": "y"}`))
	assert.Equal(t, []string{"title must be x"}, failures)
}

func TestAssertion_InvalidPattern(t *testing.T) {
	a := Assertion{Path: "title", Matches: "("}
	assert.Error(t, a.compile())
}

func TestDeclarative(t *testing.T) {
	def := Definition{
		Name:   "search",
		Task:   "search for golang",
		Schema: map[string]any{"type": "object", "required": []any{"title"}},
		Assertions: []Assertion{
			{Path: "title", Contains: "go", IgnoreCase: true},
			{Path: "title", Prefix: "Z"},
			{Path: "rank", Max: floatPtr(3)},
		},
	}

	unit, err := Declarative(def)
	require.NoError(t, err)
	assert.Equal(t, "search", unit.Name())
	assert.Equal(t, models.ExecutorAgent, unit.Task().Executor)
	assert.JSONEq(t, `{"type":"object","required":["title"]}`, string(unit.OutputSchema()))

	assert.NoError(t, unit.Validate(decode(t, `{"title": "Zen of Go", "rank": 1}`)))

	err = unit.Validate(decode(t, `{"title": "Golang", "rank": 7}`))
	var ae *models.AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Len(t, ae.Failures, 2)
	assert.Equal(t, models.KindAssertion, models.Classify(err))
}

func TestDeclarative_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"no name", Definition{Task: "x"}},
		{"no task", Definition{Name: "x"}},
		{"bad schema", Definition{Name: "x", Task: "y", Schema: map[string]any{"type": 12}}},
		{"bad pattern", Definition{Name: "x", Task: "y", Assertions: []Assertion{{Matches: "("}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Declarative(tt.def)
			assert.Error(t, err)
		})
	}
}

func TestDeclarative_FreshInstances(t *testing.T) {
	def := Definition{Name: "x", Task: "y", Params: map[string]string{"k": "v"}}
	a, err := Declarative(def)
	require.NoError(t, err)
	b, err := Declarative(def)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	a.Task().Params["k"] = "changed"
	assert.Equal(t, "v", b.Task().Params["k"])
}
