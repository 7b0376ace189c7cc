package models

import (
	"math"
	"time"
)

// NoTestsMessage is the marker emitted when a run recorded nothing.
const NoTestsMessage = "no tests executed"

// Summary holds the aggregate counters of a run.
// Total always equals Passed + Failed.
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
	NoTests  bool    `json:"no_tests,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// Report is the aggregated record of one run.
type Report struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration"`
	Summary   Summary   `json:"summary"`
	Details   []Outcome `json:"details"`
}

// OK reports whether the run had no failures.
func (r *Report) OK() bool {
	return r.Summary.Failed == 0
}

// Failures returns the failed outcomes in recording order.
func (r *Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Details {
		if !o.IsPassed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Summarize computes a summary for the given outcomes.
// A zero total yields the NoTests marker instead of a division.
func Summarize(details []Outcome) Summary {
	s := Summary{Total: len(details)}
	for _, o := range details {
		if o.IsPassed() {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	if s.Total == 0 {
		s.NoTests = true
		s.Message = NoTestsMessage
		return s
	}
	s.PassRate = math.Round(float64(s.Passed)/float64(s.Total)*100*100) / 100
	return s
}
