package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ProgressBar renders completed/total as an ASCII bar.
type ProgressBar struct {
	current     int
	total       int
	width       int
	enableColor bool
	mu          sync.RWMutex
}

// NewProgressBar creates a bar of the given width (minimum 1, default 10).
func NewProgressBar(total, width int, enableColor bool) *ProgressBar {
	if width < 1 {
		width = 10
	}
	return &ProgressBar{total: total, width: width, enableColor: enableColor}
}

// Update sets the current progress value.
func (pb *ProgressBar) Update(current int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = current
}

// Increment advances progress by one.
func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
}

// Percentage returns the progress clamped to 0-100. Zero total is 0%.
func (pb *ProgressBar) Percentage() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.percentage()
}

func (pb *ProgressBar) percentage() int {
	if pb.total <= 0 {
		return 0
	}
	perc := (pb.current * 100) / pb.total
	return max(0, min(perc, 100))
}

// Render returns "[=====     ] 5/10 (50%)".
func (pb *ProgressBar) Render() string {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	perc := pb.percentage()
	filled := (perc * pb.width) / 100

	bar := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", pb.width-filled) + "]"
	result := fmt.Sprintf("%s %d/%d (%d%%)", bar, pb.current, pb.total, perc)

	if !pb.enableColor {
		return result
	}
	if perc < 100 {
		return color.New(color.FgCyan).Sprint(result)
	}
	return color.New(color.FgGreen).Sprint(result)
}
