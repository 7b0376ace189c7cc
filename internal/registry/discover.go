package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/harrison/suitepilot/internal/models"
)

// DefinitionPrefix is the base-name prefix that marks a definition file.
const DefinitionPrefix = "test_"

var definitionExts = map[string]bool{
	".yaml":     true,
	".yml":      true,
	".json":     true,
	".md":       true,
	".markdown": true,
}

// ErrInvalidRoot is returned when the discovery root is missing or not a directory.
var ErrInvalidRoot = errors.New("invalid test root")

// Warner receives non-fatal discovery problems.
type Warner interface {
	LogWarn(msg string)
}

// Entry is one discovered, instantiable test unit.
type Entry struct {
	Name   string
	Kind   string
	Source string
	Tags   TagList

	def     Definition
	factory Factory
}

// NewEntry builds an entry backed by factory. Used for compiled-in units.
func NewEntry(def Definition, factory Factory) Entry {
	return Entry{
		Name:    def.Name,
		Kind:    def.ResolvedKind(),
		Source:  def.Source,
		Tags:    def.Tags,
		def:     def,
		factory: factory,
	}
}

// New constructs a fresh unit instance. Each call returns a new value.
// A factory that panics or returns no unit yields an error.
func (e Entry) New() (u models.Unit, err error) {
	if e.factory == nil {
		return nil, fmt.Errorf("entry %s has no factory", e.Name)
	}
	defer func() {
		if p := recover(); p != nil {
			u, err = nil, fmt.Errorf("factory for %s panicked: %v", e.Name, p)
		}
	}()

	u, err = e.factory(e.def)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("factory for %s returned no unit", e.Name)
	}
	if u.Name() != e.Name {
		return nil, fmt.Errorf("unit name mismatch: definition %q, unit %q", e.Name, u.Name())
	}
	return u, nil
}

// SkippedSource records a definition file that could not be loaded.
type SkippedSource struct {
	Path   string
	Reason string
}

// Catalog is the result of one discovery pass.
type Catalog struct {
	Root     string
	Entries  []Entry
	Skipped  []SkippedSource
	Disabled []string // Units declared with skip: true
}

// Names returns entry names in discovery order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		names[i] = e.Name
	}
	return names
}

// Filter returns a catalog holding the entries whose name matches pattern
// (when non-empty) and that carry at least one of tags (when non-empty).
func (c *Catalog) Filter(pattern string, tags []string) (*Catalog, error) {
	var re *regexp.Regexp
	if pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid --run pattern: %w", err)
		}
		re = compiled
	}

	out := &Catalog{Root: c.Root, Skipped: c.Skipped, Disabled: c.Disabled}
	for _, e := range c.Entries {
		if re != nil && !re.MatchString(e.Name) {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(e.Tags, tags) {
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}

func hasAnyTag(have TagList, want []string) bool {
	for _, t := range want {
		if have.Has(t) {
			return true
		}
	}
	return false
}

// IsDefinitionFile reports whether a path names a definition file.
func IsDefinitionFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, DefinitionPrefix) && definitionExts[strings.ToLower(filepath.Ext(base))]
}

// Discover walks root recursively and builds a catalog of every unit whose
// definition loads, resolves to a registered kind and constructs cleanly.
//
// Files are visited in lexical order so repeated discovery of an unchanged
// tree yields the same entries in the same order. A file that fails to load
// is skipped with a warning; so is a unit whose name was already taken.
func (r *Registry) Discover(root string, warn Warner) (*Catalog, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	catalog := &Catalog{Root: root}
	seen := make(map[string]string)

	warnf := func(format string, args ...interface{}) {
		if warn != nil {
			warn.LogWarn(fmt.Sprintf(format, args...))
		}
	}
	skip := func(path, reason string) {
		catalog.Skipped = append(catalog.Skipped, SkippedSource{Path: path, Reason: reason})
		warnf("skipping %s: %s", path, reason)
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			skip(path, err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsDefinitionFile(path) {
			return nil
		}

		defs, err := LoadFile(path)
		if err != nil {
			skip(path, err.Error())
			return nil
		}

		for _, def := range defs {
			if def.Skip {
				catalog.Disabled = append(catalog.Disabled, def.Name)
				continue
			}

			kind := def.ResolvedKind()
			factory, ok := r.Lookup(kind)
			if !ok {
				skip(path, fmt.Sprintf("test %s: unknown kind %q", def.Name, kind))
				continue
			}

			entry := NewEntry(def, factory)
			// Construct once so broken definitions surface at discovery.
			if _, err := entry.New(); err != nil {
				skip(path, err.Error())
				continue
			}

			if first, dup := seen[def.Name]; dup {
				warnf("duplicate test name %q in %s (first declared in %s), skipping", def.Name, path, first)
				continue
			}
			seen[def.Name] = path
			catalog.Entries = append(catalog.Entries, entry)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, walkErr)
	}

	return catalog, nil
}
