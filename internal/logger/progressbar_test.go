package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		current int
		width   int
		want    string
	}{
		{name: "empty", total: 10, current: 0, width: 10, want: "[          ] 0/10 (0%)"},
		{name: "half", total: 10, current: 5, width: 10, want: "[=====     ] 5/10 (50%)"},
		{name: "complete", total: 4, current: 4, width: 4, want: "[====] 4/4 (100%)"},
		{name: "overflow clamps", total: 2, current: 5, width: 4, want: "[====] 5/2 (100%)"},
		{name: "zero total", total: 0, current: 0, width: 4, want: "[    ] 0/0 (0%)"},
		{name: "invalid width defaults", total: 10, current: 10, width: 0, want: "[==========] 10/10 (100%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := NewProgressBar(tt.total, tt.width, false)
			pb.Update(tt.current)
			assert.Equal(t, tt.want, pb.Render())
		})
	}
}

func TestProgressBar_Increment(t *testing.T) {
	pb := NewProgressBar(4, 4, false)
	pb.Increment()
	pb.Increment()

	assert.Equal(t, 50, pb.Percentage())
	assert.Equal(t, "[==  ] 2/4 (50%)", pb.Render())
}

func TestProgressBar_NegativeClamps(t *testing.T) {
	pb := NewProgressBar(4, 4, false)
	pb.Update(-3)
	assert.Equal(t, 0, pb.Percentage())
}
