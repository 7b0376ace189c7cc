package report

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/harrison/suitepilot/internal/models"
)

// JUnit XML layout as consumed by CI systems.

type junitDocument struct {
	XMLName xml.Name     `xml:"testsuites"`
	Name    string       `xml:"name,attr"`
	Tests   int          `xml:"tests,attr"`
	Fails   int          `xml:"failures,attr"`
	Time    string       `xml:"time,attr"`
	Suites  []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	Cases      []junitCase     `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitCase struct {
	Classname string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message  string `xml:"message,attr"`
	Type     string `xml:"type,attr"`
	Contents string `xml:",chardata"`
}

// JUnitFormatter writes the report as a JUnit XML document with one suite
// per run.
type JUnitFormatter struct{}

// Extension implements Formatter.
func (JUnitFormatter) Extension() string { return "xml" }

// Format implements Formatter.
func (JUnitFormatter) Format(report *models.Report) ([]byte, error) {
	suite := junitSuite{
		Name:      "suitepilot",
		Tests:     report.Summary.Total,
		Failures:  report.Summary.Failed,
		Time:      seconds(report.Duration),
		Timestamp: report.Timestamp.Format("2006-01-02T15:04:05"),
		Properties: []junitProperty{
			{Name: "run_id", Value: report.RunID},
			{Name: "pass_rate", Value: fmt.Sprintf("%.2f", report.Summary.PassRate)},
		},
	}
	if report.Summary.NoTests {
		suite.Properties = append(suite.Properties, junitProperty{Name: "message", Value: report.Summary.Message})
	}

	for _, o := range report.Details {
		c := junitCase{
			Classname: classname(o.Source),
			Name:      o.Name,
			Time:      seconds(o.Duration),
		}
		if !o.IsPassed() {
			var contents strings.Builder
			contents.WriteString(o.Error)
			if o.Artifact != "" {
				contents.WriteString("\nartifact: " + o.Artifact)
			}
			c.Failure = &junitFailure{
				Message:  firstLine(o.Error),
				Type:     string(o.Kind),
				Contents: contents.String(),
			}
		}
		suite.Cases = append(suite.Cases, c)
	}

	doc := junitDocument{
		Name:   "suitepilot",
		Tests:  report.Summary.Total,
		Fails:  report.Summary.Failed,
		Time:   seconds(report.Duration),
		Suites: []junitSuite{suite},
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	out := []byte(xml.Header)
	out = append(out, data...)
	return append(out, '\n'), nil
}

func seconds(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// classname groups cases by their definition file.
func classname(source string) string {
	if source == "" {
		return "suitepilot"
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
