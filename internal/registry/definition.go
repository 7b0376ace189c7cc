package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/suitepilot/internal/models"
)

// Definition is one test unit as declared in a definition file.
type Definition struct {
	Name       string            `yaml:"name"`
	Kind       string            `yaml:"kind"`
	Executor   string            `yaml:"executor"`
	Task       string            `yaml:"task"`
	Params     map[string]string `yaml:"params"`
	Schema     interface{}       `yaml:"schema"`
	Assertions []Assertion       `yaml:"assertions"`
	Timeout    string            `yaml:"timeout"`
	Tags       TagList           `yaml:"tags"`
	Skip       bool              `yaml:"skip"`

	Source string `yaml:"-"` // File the definition was loaded from
}

// definitionFile is the top-level layout of a YAML/JSON definition file.
// A file either holds one inline definition or a tests list sharing defaults.
type definitionFile struct {
	Definition `yaml:",inline"`
	Defaults   Definition   `yaml:"defaults"`
	Tests      []Definition `yaml:"tests"`
}

// TagList accepts both a comma-separated string and a YAML sequence.
type TagList []string

// UnmarshalYAML implements custom unmarshaling for TagList
func (t *TagList) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err == nil {
		parts := strings.Split(str, ",")
		*t = make(TagList, 0, len(parts))
		for _, part := range parts {
			if tag := strings.TrimSpace(part); tag != "" {
				*t = append(*t, tag)
			}
		}
		return nil
	}

	var arr []string
	if err := value.Decode(&arr); err == nil {
		*t = TagList(arr)
		return nil
	}

	return fmt.Errorf("tags must be either a comma-separated string or an array")
}

// Has reports whether the list contains tag.
func (t TagList) Has(tag string) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// ResolvedKind returns the registry kind, inferring it from the executor when unset.
func (d Definition) ResolvedKind() string {
	if d.Kind != "" {
		return d.Kind
	}
	if d.Executor != "" {
		return d.Executor
	}
	return KindAgent
}

// ResolvedExecutor returns the executor routing key for the definition.
func (d Definition) ResolvedExecutor() string {
	if d.Executor != "" {
		return d.Executor
	}
	if d.ResolvedKind() == KindHTTP {
		return models.ExecutorHTTP
	}
	return models.ExecutorAgent
}

// TaskDescriptor builds the executor task for the definition.
func (d Definition) TaskDescriptor() (models.Task, error) {
	var timeout time.Duration
	if d.Timeout != "" {
		parsed, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return models.Task{}, fmt.Errorf("invalid timeout %q: %w", d.Timeout, err)
		}
		timeout = parsed
	}

	params := make(map[string]string, len(d.Params))
	for k, v := range d.Params {
		params[k] = v
	}

	task := models.Task{
		Executor:     d.ResolvedExecutor(),
		Instructions: strings.TrimSpace(d.Task),
		Params:       params,
		Timeout:      timeout,
	}
	if err := task.Validate(); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// SchemaJSON returns the result schema as a JSON document.
// The schema may be written as a YAML mapping or as a JSON string.
func (d Definition) SchemaJSON() (json.RawMessage, error) {
	switch s := d.Schema.(type) {
	case nil:
		return nil, nil
	case string:
		trimmed := bytes.TrimSpace([]byte(s))
		if len(trimmed) == 0 {
			return nil, nil
		}
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("schema string is not valid JSON")
		}
		return json.RawMessage(trimmed), nil
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("convert schema to JSON: %w", err)
		}
		return data, nil
	}
}

// withDefaults fills unset fields of d from defaults.
func (d Definition) withDefaults(defaults Definition) Definition {
	if d.Kind == "" {
		d.Kind = defaults.Kind
	}
	if d.Executor == "" {
		d.Executor = defaults.Executor
	}
	if d.Timeout == "" {
		d.Timeout = defaults.Timeout
	}
	if d.Schema == nil {
		d.Schema = defaults.Schema
	}
	if len(defaults.Params) > 0 {
		merged := make(map[string]string, len(defaults.Params)+len(d.Params))
		for k, v := range defaults.Params {
			merged[k] = v
		}
		for k, v := range d.Params {
			merged[k] = v
		}
		d.Params = merged
	}
	for _, tag := range defaults.Tags {
		if !d.Tags.Has(tag) {
			d.Tags = append(d.Tags, tag)
		}
	}
	d.Assertions = append(append([]Assertion(nil), defaults.Assertions...), d.Assertions...)
	if defaults.Skip {
		d.Skip = true
	}
	return d
}

// LoadFile reads every definition declared in a definition file.
// The format is chosen from the file extension.
func LoadFile(path string) ([]Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var defs []Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		defs, err = ParseMarkdown(content)
	case ".yaml", ".yml", ".json":
		defs, err = ParseYAML(content)
	default:
		return nil, fmt.Errorf("unsupported definition format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for i := range defs {
		defs[i].Source = path
		if defs[i].Name == "" {
			defs[i].Name = defaultName(path, i, len(defs))
		}
	}
	return defs, nil
}

// ParseYAML decodes a YAML or JSON definition document.
func ParseYAML(content []byte) ([]Definition, error) {
	var file definitionFile
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, err
	}

	if len(file.Tests) == 0 {
		if file.Task == "" && len(file.Params) == 0 && file.Kind == "" {
			return nil, fmt.Errorf("no tests declared")
		}
		return []Definition{file.Definition.withDefaults(file.Defaults)}, nil
	}

	if file.Task != "" || file.Name != "" {
		return nil, fmt.Errorf("file declares both an inline test and a tests list")
	}

	defs := make([]Definition, 0, len(file.Tests))
	for _, d := range file.Tests {
		defs = append(defs, d.withDefaults(file.Defaults))
	}
	return defs, nil
}

// defaultName derives a unit name from the file name, e.g.
// tests/suite/test_google_search.yaml -> google_search.
func defaultName(path string, index, count int) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimPrefix(base, DefinitionPrefix)
	if count > 1 {
		return fmt.Sprintf("%s_%d", base, index+1)
	}
	return base
}
