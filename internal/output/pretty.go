package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/bgricker/matrixdrive/internal/matrix"
	"github.com/bgricker/matrixdrive/internal/report"
)

// PrettyRenderer renders plans and reports in a human-friendly format.
type PrettyRenderer struct {
	out io.Writer
}

// NewPretty creates a PrettyRenderer writing to the provided writer.
func NewPretty(out io.Writer) *PrettyRenderer {
	return &PrettyRenderer{out: out}
}

// RenderPlan lists the expanded jobs and their steps without running them.
func (p *PrettyRenderer) RenderPlan(specs []matrix.JobSpec) error {
	var family string
	for _, spec := range specs {
		if spec.Family != family {
			family = spec.Family
			if _, err := fmt.Fprintf(p.out, "Family %s\n", family); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(p.out, "  Job %s\n", spec.ID()); err != nil {
			return err
		}
		for _, step := range spec.Steps {
			if _, err := fmt.Fprintf(p.out, "    • %s\n", stepLabel(step)); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderReport shows every job's outcome followed by the run summary. Jobs
// appear in expansion order, so output is stable across runs.
func (p *PrettyRenderer) RenderReport(rep report.Report) error {
	for _, outcome := range rep.Outcomes {
		if _, err := fmt.Fprintf(p.out, "%s %s (%dms)\n", statusMark(outcome.Status), outcome.JobID, outcome.DurationMS); err != nil {
			return err
		}
		if outcome.Status == report.StatusSkipped && outcome.SkipReason != "" {
			if _, err := fmt.Fprintf(p.out, "    skipped: %s\n", outcome.SkipReason); err != nil {
				return err
			}
			continue
		}
		for i, step := range outcome.Steps {
			if _, err := fmt.Fprintf(p.out, "    %s %s\n", statusMark(step.Status), step.Name); err != nil {
				return err
			}
			if step.Status == report.StatusFailed {
				if err := p.renderDiagnostics(outcome, i, step); err != nil {
					return err
				}
			}
		}
	}

	s := rep.Summary
	verdict := strings.ToUpper(string(rep.Verdict))
	_, err := fmt.Fprintf(p.out, "\n%s — %d jobs: %d passed, %d failed, %d skipped (%dms)\n",
		verdict, s.TotalJobs, s.Passed, s.Failed, s.Skipped, s.DurationMS)
	return err
}

func (p *PrettyRenderer) renderDiagnostics(outcome report.Outcome, index int, step report.StepResult) error {
	if outcome.FailedStep == index {
		if _, err := fmt.Fprintf(p.out, "      command: %s (exit %d)\n", step.Run, step.ExitCode); err != nil {
			return err
		}
	}
	for _, chunk := range []struct {
		label string
		text  string
	}{{"stdout", step.Stdout}, {"stderr", step.Stderr}} {
		if chunk.text == "" {
			continue
		}
		if _, err := fmt.Fprintf(p.out, "      %s:\n", chunk.label); err != nil {
			return err
		}
		for _, line := range strings.Split(chunk.text, "\n") {
			if _, err := fmt.Fprintf(p.out, "        %s\n", line); err != nil {
				return err
			}
		}
	}
	return nil
}

func statusMark(status report.Status) string {
	switch status {
	case report.StatusPassed:
		return "✔"
	case report.StatusFailed:
		return "✘"
	case report.StatusSkipped:
		return "-"
	default:
		return "?"
	}
}

func stepLabel(step matrix.Step) string {
	if step.Name != "" {
		return step.Name
	}
	return step.Run
}
