package report

import (
	"testing"
	"time"

	"github.com/bgricker/matrixdrive/internal/matrix"
)

func expanded(t *testing.T) []matrix.JobSpec {
	t.Helper()
	specs, err := matrix.Expand(matrix.Family{
		Name: "matrix",
		Axes: []matrix.Axis{
			{Name: "platform", Values: []string{"A", "B"}},
			{Name: "features", Values: []string{"default", "no_std"}},
		},
		Steps: []matrix.Step{{Name: "check", Run: "true"}, {Name: "test", Run: "true"}},
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	return specs
}

func outcomesFor(specs []matrix.JobSpec, status Status) map[string]Outcome {
	out := make(map[string]Outcome, len(specs))
	for _, spec := range specs {
		out[spec.ID()] = Outcome{JobID: spec.ID(), Status: status, FailedStep: NoFailedStep}
	}
	return out
}

func TestAggregateAllPassed(t *testing.T) {
	specs := expanded(t)
	rep, err := Aggregate("run-1", time.Now(), specs, outcomesFor(specs, StatusPassed))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if rep.Verdict != StatusPassed || rep.Failed() {
		t.Fatalf("expected passed verdict, got %s", rep.Verdict)
	}
	if rep.Summary.Passed != 4 || rep.Summary.ExitCode != 0 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}
}

func TestAggregateSingleFailureFailsVerdict(t *testing.T) {
	specs := expanded(t)
	outcomes := outcomesFor(specs, StatusPassed)
	failing := "matrix(platform=B,features=no_std)"
	outcomes[failing] = Outcome{JobID: failing, Status: StatusFailed, FailedStep: 0}

	rep, err := Aggregate("run-1", time.Now(), specs, outcomes)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !rep.Failed() {
		t.Fatalf("expected failed verdict")
	}
	if rep.Summary.Failed != 1 || rep.Summary.Passed != 3 || rep.Summary.ExitCode != 1 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}

	// Report order matches expansion order regardless of map iteration.
	for i, spec := range specs {
		if rep.Outcomes[i].JobID != spec.ID() {
			t.Fatalf("outcome %d: expected %s, got %s", i, spec.ID(), rep.Outcomes[i].JobID)
		}
	}
	if rep.Outcomes[3].FailedStep != 0 {
		t.Fatalf("expected failing step index 0, got %d", rep.Outcomes[3].FailedStep)
	}
}

func TestAggregateSkippedDoesNotFail(t *testing.T) {
	specs := expanded(t)
	outcomes := outcomesFor(specs, StatusPassed)
	for _, spec := range specs {
		if v, _ := spec.Value("platform"); v == "B" {
			outcomes[spec.ID()] = Outcome{
				JobID:      spec.ID(),
				Status:     StatusSkipped,
				FailedStep: NoFailedStep,
				SkipReason: "toolchain unavailable",
			}
		}
	}

	rep, err := Aggregate("run-1", time.Now(), specs, outcomes)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if rep.Failed() {
		t.Fatalf("skipped outcomes must not fail the verdict")
	}
	if rep.Summary.Skipped != 2 || rep.Summary.Passed != 2 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}
}

func TestAggregateMissingOutcome(t *testing.T) {
	specs := expanded(t)
	outcomes := outcomesFor(specs, StatusPassed)
	delete(outcomes, specs[2].ID())
	if _, err := Aggregate("run-1", time.Now(), specs, outcomes); err == nil {
		t.Fatalf("expected error for missing outcome")
	}
}
