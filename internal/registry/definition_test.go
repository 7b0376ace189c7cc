package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/harrison/suitepilot/internal/models"
)

func TestParseYAML_Inline(t *testing.T) {
	content := `
name: weather
task: Open the weather site and report today's forecast.
timeout: 90s
tags: [smoke, browser]
schema:
  type: object
  required: [forecast]
  properties:
    forecast: {type: string}
assertions:
  - path: forecast
    exists: true
`
	defs, err := ParseYAML([]byte(content))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, "weather", def.Name)
	assert.Equal(t, KindAgent, def.ResolvedKind())
	assert.Equal(t, TagList{"smoke", "browser"}, def.Tags)

	task, err := def.TaskDescriptor()
	require.NoError(t, err)
	assert.Equal(t, models.ExecutorAgent, task.Executor)
	assert.Equal(t, 90*time.Second, task.Timeout)

	doc, err := def.SchemaJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","required":["forecast"],"properties":{"forecast":{"type":"string"}}}`, string(doc))
}

func TestParseYAML_TestsListWithDefaults(t *testing.T) {
	content := `
defaults:
  kind: http
  params:
    method: GET
  tags: api
  assertions:
    - path: status
      equals: ok
tests:
  - name: health
    params:
      url: https://example.com/health
  - name: version
    params:
      url: https://example.com/version
      method: HEAD
    tags: [slow]
`
	defs, err := ParseYAML([]byte(content))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "health", defs[0].Name)
	assert.Equal(t, KindHTTP, defs[0].ResolvedKind())
	assert.Equal(t, "GET", defs[0].Params["method"])
	assert.Equal(t, TagList{"api"}, defs[0].Tags)
	require.Len(t, defs[0].Assertions, 1)

	assert.Equal(t, "HEAD", defs[1].Params["method"])
	assert.True(t, defs[1].Tags.Has("slow"))
	assert.True(t, defs[1].Tags.Has("api"))
}

func TestParseYAML_JSONDocument(t *testing.T) {
	content := `{"name": "json_test", "task": "do it", "schema": "{\"type\": \"object\"}"}`
	defs, err := ParseYAML([]byte(content))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	doc, err := defs[0].SchemaJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object"}`, string(doc))
}

func TestParseYAML_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty document", "defaults:\n  kind: agent\n", "no tests declared"},
		{"unknown field", "name: x\ntask: y\nbogus: 1\n", "bogus"},
		{"inline and list", "name: x\ntask: y\ntests:\n  - name: z\n    task: w\n", "both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTagList_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  TagList
	}{
		{"comma string", "tags: smoke, api ,  slow", TagList{"smoke", "api", "slow"}},
		{"array", "tags: [smoke, api]", TagList{"smoke", "api"}},
		{"single", "tags: smoke", TagList{"smoke"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Tags TagList `yaml:"tags"`
			}
			require.NoError(t, yaml.Unmarshal([]byte(tt.input), &v))
			assert.Equal(t, tt.want, v.Tags)
		})
	}
}

func TestDefinition_TaskDescriptorErrors(t *testing.T) {
	_, err := Definition{Name: "x", Task: "do", Timeout: "soon"}.TaskDescriptor()
	assert.ErrorContains(t, err, "invalid timeout")

	_, err = Definition{Name: "x"}.TaskDescriptor()
	assert.ErrorContains(t, err, "instructions or params")
}

func TestDefinition_SchemaJSONInvalidString(t *testing.T) {
	_, err := Definition{Schema: "{not json"}.SchemaJSON()
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	single := filepath.Join(dir, "test_google_search.yaml")
	require.NoError(t, os.WriteFile(single, []byte("task: search\n"), 0644))

	defs, err := LoadFile(single)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "google_search", defs[0].Name)
	assert.Equal(t, single, defs[0].Source)

	multi := filepath.Join(dir, "test_suite.yml")
	require.NoError(t, os.WriteFile(multi, []byte("tests:\n  - task: a\n  - task: b\n"), 0644))

	defs, err = LoadFile(multi)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "suite_1", defs[0].Name)
	assert.Equal(t, "suite_2", defs[1].Name)

	_, err = LoadFile(filepath.Join(dir, "test_missing.yaml"))
	assert.Error(t, err)

	other := filepath.Join(dir, "test_notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("hi"), 0644))
	_, err = LoadFile(other)
	assert.ErrorContains(t, err, "unsupported")
}
