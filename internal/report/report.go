// Package report defines job outcomes and the aggregated run report.
package report

import "time"

// Status is the terminal state of a job or step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// NoFailedStep is the FailedStep value when no halting step failure occurred.
const NoFailedStep = -1

// StepResult captures one executed step within a job.
type StepResult struct {
	Name       string        `json:"name"`
	Run        string        `json:"run"`
	Status     Status        `json:"status"`
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"stdout,omitempty"`
	Stderr     string        `json:"stderr,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Outcome is the recorded result of running one JobSpec.
type Outcome struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
	// FailedStep is the index of the first halting step failure, or
	// NoFailedStep when the job passed or was skipped.
	FailedStep int    `json:"failed_step"`
	SkipReason string `json:"skip_reason,omitempty"`
	// Steps holds captured diagnostics for every step that ran, retained on
	// success as well as failure.
	Steps      []StepResult  `json:"steps,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Summary aggregates run totals.
type Summary struct {
	TotalJobs  int           `json:"total_jobs"`
	TotalSteps int           `json:"total_steps"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	ExitCode   int           `json:"exit_code"`
}

// Report is the final structured summary of one run. Outcomes are ordered
// exactly as the matrix expander enumerated the jobs, so repeated runs
// against identical configuration diff cleanly.
type Report struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Outcomes  []Outcome `json:"outcomes"`
	Summary   Summary   `json:"summary"`
	Verdict   Status    `json:"verdict"`
}

// Failed reports whether the overall verdict is failure.
func (r Report) Failed() bool {
	return r.Verdict == StatusFailed
}
