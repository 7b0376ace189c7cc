package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"path/filepath"

	"github.com/harrison/suitepilot/internal/models"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html.tmpl").Funcs(template.FuncMap{
		"statusClass":  statusClass,
		"statusText":   statusText,
		"prettyJSON":   prettyJSON,
		"artifactHref": artifactHref,
		"seconds":      seconds,
	}).ParseFS(templateFS, "templates/report.html.tmpl"),
)

// HTMLFormatter writes a standalone HTML page.
type HTMLFormatter struct {
	template *template.Template
}

// NewHTMLFormatter creates a formatter using the embedded report template.
func NewHTMLFormatter() *HTMLFormatter {
	return &HTMLFormatter{template: reportTemplate}
}

// Extension implements Formatter.
func (f *HTMLFormatter) Extension() string { return "html" }

type htmlData struct {
	Report    *models.Report
	Generated string
}

// Format implements Formatter.
func (f *HTMLFormatter) Format(report *models.Report) ([]byte, error) {
	var buf bytes.Buffer
	data := htmlData{
		Report:    report,
		Generated: report.Timestamp.Format("2006-01-02 15:04:05"),
	}
	if err := f.template.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

func statusClass(s models.Status) string {
	if s == models.StatusPassed {
		return "pass"
	}
	return "fail"
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// artifactHref links a captured executor output file from the page.
func artifactHref(path string) template.URL {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return template.URL(u.String())
}
