package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/suitepilot/internal/models"
)

func TestMultiLogger_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMultiLogger(NewConsoleLogger(&a, "debug"), nil, NewConsoleLogger(&b, "warn"))

	m.LogUnitStart("test_a")
	m.LogOutcome(models.Passed("test_a", nil, time.Second))
	m.LogWarn("careful")

	assert.Contains(t, a.String(), "Running test_a")
	assert.Contains(t, a.String(), "test_a: PASSED")
	assert.Contains(t, a.String(), "careful")

	assert.NotContains(t, b.String(), "test_a")
	assert.Contains(t, b.String(), "careful")
}

func TestMultiLogger_Empty(t *testing.T) {
	m := NewMultiLogger()
	assert.NotPanics(t, func() {
		m.LogInfo("x")
		m.LogRunStart("r", 0)
		m.LogProgress(0, 0)
	})
}
