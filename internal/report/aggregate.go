package report

import (
	"fmt"
	"time"

	"github.com/bgricker/matrixdrive/internal/matrix"
)

// Aggregate combines the scheduler's identity→Outcome mapping into a Report
// ordered by the expander's enumeration order. The verdict is failed if and
// only if at least one outcome failed; skipped outcomes stay visible in the
// report but do not fail the verdict on their own. Every submitted spec must
// have exactly one outcome.
func Aggregate(runID string, startedAt time.Time, specs []matrix.JobSpec, outcomes map[string]Outcome) (Report, error) {
	if len(outcomes) != len(specs) {
		return Report{}, fmt.Errorf("aggregate: %d outcomes for %d jobs", len(outcomes), len(specs))
	}

	rep := Report{
		RunID:     runID,
		StartedAt: startedAt,
		Outcomes:  make([]Outcome, 0, len(specs)),
		Verdict:   StatusPassed,
	}
	rep.Summary.TotalJobs = len(specs)

	for _, spec := range specs {
		outcome, ok := outcomes[spec.ID()]
		if !ok {
			return Report{}, fmt.Errorf("aggregate: no outcome recorded for job %s", spec.ID())
		}
		rep.Outcomes = append(rep.Outcomes, outcome)
		rep.Summary.TotalSteps += len(outcome.Steps)
		rep.Summary.Duration += outcome.Duration

		switch outcome.Status {
		case StatusPassed:
			rep.Summary.Passed++
		case StatusFailed:
			rep.Summary.Failed++
			rep.Verdict = StatusFailed
		case StatusSkipped:
			rep.Summary.Skipped++
		default:
			return Report{}, fmt.Errorf("aggregate: job %s has unknown status %q", spec.ID(), outcome.Status)
		}
	}

	rep.Summary.DurationMS = rep.Summary.Duration.Milliseconds()
	if rep.Verdict == StatusFailed {
		rep.Summary.ExitCode = 1
	}
	return rep, nil
}
