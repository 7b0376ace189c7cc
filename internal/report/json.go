package report

import (
	"encoding/json"

	"github.com/harrison/suitepilot/internal/models"
)

// JSONFormatter writes the report as indented JSON.
type JSONFormatter struct{}

// Extension implements Formatter.
func (JSONFormatter) Extension() string { return "json" }

// Format implements Formatter.
func (JSONFormatter) Format(report *models.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
