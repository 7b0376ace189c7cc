package registry

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

var testHeadingRegex = regexp.MustCompile(`^Test:\s*(.+)$`)

// markdownSection accumulates one "## Test: <name>" section.
type markdownSection struct {
	def   Definition
	task  strings.Builder
	parts []string
}

// ParseMarkdown decodes a markdown definition document.
//
// Layout:
//
//	---
//	kind: agent          # optional defaults for every test
//	---
//	## Test: google_search
//	Open google.com and search for "Go".
//	```schema
//	{"type": "object", "required": ["title"]}
//	```
//	```assertions
//	- path: title
//	  contains: go
//	```
//
// Prose, lists and quotes in a section form the task. Fenced blocks tagged
// schema (or json) hold the result schema, assertions the assertion list,
// and params a YAML mapping of executor parameters.
func ParseMarkdown(content []byte) ([]Definition, error) {
	body, frontmatter := extractFrontmatter(content)

	var defaults Definition
	if frontmatter != nil {
		if err := yaml.Unmarshal(frontmatter, &defaults); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(body))

	var sections []*markdownSection
	var current *markdownSection

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok && heading.Level <= 2 {
			current = nil
			if m := testHeadingRegex.FindStringSubmatch(strings.TrimSpace(nodeText(heading, body))); m != nil {
				current = &markdownSection{}
				current.def.Name = strings.TrimSpace(m[1])
				sections = append(sections, current)
			}
			continue
		}
		if current == nil {
			continue
		}

		if fence, ok := n.(*ast.FencedCodeBlock); ok {
			if err := current.applyFence(fence, body); err != nil {
				return nil, fmt.Errorf("test %q: %w", current.def.Name, err)
			}
			continue
		}

		if raw := blockSource(n, body); raw != "" {
			current.parts = append(current.parts, raw)
		}
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no \"## Test: <name>\" sections found")
	}

	defs := make([]Definition, 0, len(sections))
	for _, s := range sections {
		def := s.def
		if def.Task == "" {
			def.Task = strings.TrimSpace(strings.Join(s.parts, "\n\n"))
		}
		defs = append(defs, def.withDefaults(defaults))
	}
	return defs, nil
}

// applyFence routes a fenced code block to the section field it describes.
// Blocks with other languages are kept as part of the task.
func (s *markdownSection) applyFence(fence *ast.FencedCodeBlock, source []byte) error {
	lang := strings.ToLower(string(fence.Language(source)))
	content := fenceContent(fence, source)

	switch lang {
	case "schema", "json":
		s.def.Schema = content
	case "assertions":
		var assertions []Assertion
		if err := yaml.Unmarshal([]byte(content), &assertions); err != nil {
			return fmt.Errorf("invalid assertions block: %w", err)
		}
		s.def.Assertions = append(s.def.Assertions, assertions...)
	case "params":
		var params map[string]string
		if err := yaml.Unmarshal([]byte(content), &params); err != nil {
			return fmt.Errorf("invalid params block: %w", err)
		}
		if s.def.Params == nil {
			s.def.Params = make(map[string]string, len(params))
		}
		for k, v := range params {
			s.def.Params[k] = v
		}
	case "options":
		var opts struct {
			Kind     string  `yaml:"kind"`
			Executor string  `yaml:"executor"`
			Timeout  string  `yaml:"timeout"`
			Tags     TagList `yaml:"tags"`
			Skip     bool    `yaml:"skip"`
		}
		if err := yaml.Unmarshal([]byte(content), &opts); err != nil {
			return fmt.Errorf("invalid options block: %w", err)
		}
		s.def.Kind = opts.Kind
		s.def.Executor = opts.Executor
		s.def.Timeout = opts.Timeout
		s.def.Tags = opts.Tags
		s.def.Skip = opts.Skip
	default:
		s.parts = append(s.parts, blockSource(fence, source))
	}
	return nil
}

// nodeText concatenates the text segments below n.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func fenceContent(fence *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := fence.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// blockSource returns the raw markdown of a top-level block, from the start
// of its first line to the end of its last line.
func blockSource(n ast.Node, source []byte) string {
	start, stop := -1, -1
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || c.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := c.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		if first := lines.At(0).Start; start < 0 || first < start {
			start = first
		}
		if last := lines.At(lines.Len() - 1).Stop; last > stop {
			stop = last
		}
		return ast.WalkContinue, nil
	})
	if start < 0 || stop <= start {
		return ""
	}

	if _, isFence := n.(*ast.FencedCodeBlock); isFence {
		// Lines exclude the fence markers; keep them so the task reads as written.
		if open := bytes.LastIndex(source[:start], []byte("```")); open >= 0 {
			start = open
		}
		if closing := bytes.Index(source[stop:], []byte("```")); closing >= 0 {
			stop += closing + 3
		}
	}

	for start > 0 && source[start-1] != '\n' {
		start--
	}
	return strings.TrimRight(string(source[start:stop]), "\n")
}

// extractFrontmatter splits YAML frontmatter from markdown content.
// Returns the remaining body and the frontmatter (nil when absent).
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))
	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}
	return content, nil
}
