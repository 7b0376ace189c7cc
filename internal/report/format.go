package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harrison/suitepilot/internal/models"
)

// Report format names.
const (
	FormatJSON  = "json"
	FormatHTML  = "html"
	FormatJUnit = "junit"
	FormatText  = "text"

	// FormatAll selects the default structured and human-readable pair.
	FormatAll = "all"
)

// DefaultFormats are written when none are requested.
var DefaultFormats = []string{FormatJSON, FormatHTML}

// Formatter renders a report into one file format.
type Formatter interface {
	Extension() string
	Format(report *models.Report) ([]byte, error)
}

func defaultFormatters() map[string]Formatter {
	return map[string]Formatter{
		FormatJSON:  JSONFormatter{},
		FormatHTML:  NewHTMLFormatter(),
		FormatJUnit: JUnitFormatter{},
		FormatText:  TextFormatter{},
	}
}

// Formats returns the known format names in sorted order.
func Formats() []string {
	names := make([]string, 0, 4)
	for name := range defaultFormatters() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseFormats normalises a list of format names. Entries may be comma
// separated; "all" expands to DefaultFormats; duplicates are dropped.
// An empty list yields DefaultFormats.
func ParseFormats(values []string) ([]string, error) {
	known := defaultFormatters()

	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			switch {
			case name == "":
				continue
			case name == FormatAll:
				for _, f := range DefaultFormats {
					add(f)
				}
			case known[name] != nil:
				add(name)
			default:
				return nil, fmt.Errorf("unknown report format %q (valid: %s, %s)", name, strings.Join(Formats(), ", "), FormatAll)
			}
		}
	}

	if len(out) == 0 {
		return append([]string(nil), DefaultFormats...), nil
	}
	return out, nil
}
