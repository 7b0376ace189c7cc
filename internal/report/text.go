package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/harrison/suitepilot/internal/models"
)

// maxErrorWidth wraps long failure messages in table output.
const maxErrorWidth = 80

// TextFormatter writes the report as a plain text table.
type TextFormatter struct{}

// Extension implements Formatter.
func (TextFormatter) Extension() string { return "txt" }

// Format implements Formatter.
func (TextFormatter) Format(report *models.Report) ([]byte, error) {
	var buf bytes.Buffer
	RenderTable(&buf, report, false)
	return buf.Bytes(), nil
}

// RenderTable writes the report as a table to w. Colored output picks a
// style from the overall result.
func RenderTable(w io.Writer, report *models.Report, colored bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Report %s", report.Timestamp.Format("2006-01-02 15:04:05")))

	t.AppendHeader(table.Row{"#", "Test", "Status", "Kind", "Duration", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: maxErrorWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, o := range report.Details {
		t.AppendRow(table.Row{
			i + 1,
			o.Name,
			statusText(o.Status),
			string(o.Kind),
			fmt.Sprintf("%.2fs", o.Duration),
			o.Error,
		})
	}

	if colored {
		switch {
		case report.Summary.NoTests:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		case report.Summary.Failed > 0:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		}
	} else {
		t.SetStyle(table.StyleLight)
	}

	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%d total, %d passed, %d failed", report.Summary.Total, report.Summary.Passed, report.Summary.Failed),
		overallStatus(report.Summary),
		"",
		fmt.Sprintf("%.2fs", report.Duration),
		passRateText(report.Summary),
	})

	t.Render()
}

func statusText(s models.Status) string {
	if s == models.StatusPassed {
		return "PASS"
	}
	return "FAIL"
}

func overallStatus(s models.Summary) string {
	switch {
	case s.NoTests:
		return "NO TESTS"
	case s.Failed > 0:
		return "FAIL"
	default:
		return "PASS"
	}
}

func passRateText(s models.Summary) string {
	if s.NoTests {
		return s.Message
	}
	return fmt.Sprintf("pass rate %.2f%%", s.PassRate)
}
