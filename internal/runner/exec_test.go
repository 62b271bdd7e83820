package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bgricker/matrixdrive/internal/matrix"
	"github.com/bgricker/matrixdrive/internal/report"
)

func spec(steps ...matrix.Step) matrix.JobSpec {
	return matrix.JobSpec{
		Family: "matrix",
		Axes: []matrix.AxisValue{
			{Axis: "platform", Value: "linux"},
			{Axis: "features", Value: "no_std"},
		},
		Steps: steps,
	}
}

func TestRunAllStepsPass(t *testing.T) {
	r := New(Options{})
	outcome := r.Run(context.Background(), spec(
		matrix.Step{Name: "check", Run: "true"},
		matrix.Step{Name: "test", Run: "true"},
	))
	if outcome.Status != report.StatusPassed {
		t.Fatalf("expected passed, got %s", outcome.Status)
	}
	if outcome.FailedStep != report.NoFailedStep {
		t.Fatalf("expected no failed step, got %d", outcome.FailedStep)
	}
	if len(outcome.Steps) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(outcome.Steps))
	}
}

func TestRunShortCircuitsOnFailure(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Root: dir})
	outcome := r.Run(context.Background(), spec(
		matrix.Step{Name: "check", Run: "touch ran-check"},
		matrix.Step{Name: "broken", Run: "exit 3"},
		matrix.Step{Name: "never", Run: "touch ran-never"},
	))
	if outcome.Status != report.StatusFailed {
		t.Fatalf("expected failed, got %s", outcome.Status)
	}
	if outcome.FailedStep != 1 {
		t.Fatalf("expected failing step index 1, got %d", outcome.FailedStep)
	}
	if len(outcome.Steps) != 2 {
		t.Fatalf("expected 2 executed steps, got %d", len(outcome.Steps))
	}
	if outcome.Steps[1].ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", outcome.Steps[1].ExitCode)
	}

	// The step after the failure must never have run.
	follow := New(Options{Root: dir})
	check := follow.Run(context.Background(), spec(
		matrix.Step{Name: "probe", Run: "test ! -e ran-never && test -e ran-check"},
	))
	if check.Status != report.StatusPassed {
		t.Fatalf("short-circuit violated: %+v", check)
	}
}

func TestRunAllowFailureContinues(t *testing.T) {
	r := New(Options{})
	outcome := r.Run(context.Background(), spec(
		matrix.Step{Name: "lint", Run: "false", AllowFailure: true},
		matrix.Step{Name: "test", Run: "true"},
	))
	if outcome.Status != report.StatusPassed {
		t.Fatalf("expected passed despite allowed failure, got %s", outcome.Status)
	}
	if len(outcome.Steps) != 2 {
		t.Fatalf("expected both steps to run, got %d", len(outcome.Steps))
	}
	if outcome.Steps[0].Status != report.StatusFailed {
		t.Fatalf("allowed failure must still be recorded, got %s", outcome.Steps[0].Status)
	}
}

func TestRunCapturesOutputOnSuccess(t *testing.T) {
	r := New(Options{})
	outcome := r.Run(context.Background(), spec(
		matrix.Step{Name: "fmt-check", Run: "echo all files formatted"},
	))
	if outcome.Status != report.StatusPassed {
		t.Fatalf("expected passed, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Steps[0].Stdout, "all files formatted") {
		t.Fatalf("stdout not captured on success: %q", outcome.Steps[0].Stdout)
	}
}

func TestRunInjectsAxisEnv(t *testing.T) {
	r := New(Options{})
	outcome := r.Run(context.Background(), spec(
		matrix.Step{Name: "env", Run: `test "$MATRIX_FEATURES" = no_std && test "$MATRIX_PLATFORM" = linux`},
	))
	if outcome.Status != report.StatusPassed {
		t.Fatalf("axis env not injected: %+v", outcome.Steps)
	}
}

func TestRunTimeoutTreatedAsFailure(t *testing.T) {
	r := New(Options{})
	outcome := r.Run(context.Background(), spec(
		matrix.Step{Name: "slow", Run: "sleep 5", Timeout: 50 * time.Millisecond},
	))
	if outcome.Status != report.StatusFailed {
		t.Fatalf("expected failed on timeout, got %s", outcome.Status)
	}
	if outcome.FailedStep != 0 {
		t.Fatalf("expected failing step index 0, got %d", outcome.FailedStep)
	}
	if !strings.Contains(outcome.Steps[0].Stderr, "timed out") {
		t.Fatalf("expected timeout note in diagnostics, got %q", outcome.Steps[0].Stderr)
	}
}

func TestRunDryRunSkips(t *testing.T) {
	r := New(Options{DryRun: true})
	outcome := r.Run(context.Background(), spec(matrix.Step{Name: "check", Run: "exit 1"}))
	if outcome.Status != report.StatusSkipped {
		t.Fatalf("expected skipped in dry run, got %s", outcome.Status)
	}
	if len(outcome.Steps) != 0 {
		t.Fatalf("dry run must not execute steps")
	}
}

func TestRunCancellationSkipsRemainingSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(Options{})
	outcome := r.Run(ctx, spec(matrix.Step{Name: "check", Run: "true"}))
	if outcome.Status != report.StatusSkipped {
		t.Fatalf("expected skipped after cancellation, got %s", outcome.Status)
	}
	if len(outcome.Steps) != 0 {
		t.Fatalf("no step may start after cancellation")
	}
}

func TestTailLines(t *testing.T) {
	input := "a\nb\nc\nd\n"
	if got := tailLines(input, 2); got != "c\nd" {
		t.Fatalf("expected last two lines, got %q", got)
	}
	if got := tailLines(input, 10); got != "a\nb\nc\nd" {
		t.Fatalf("expected all lines, got %q", got)
	}
}
