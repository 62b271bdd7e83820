// Package runner executes one job's verification steps in declared order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bgricker/matrixdrive/internal/ctxlog"
	"github.com/bgricker/matrixdrive/internal/matrix"
	"github.com/bgricker/matrixdrive/internal/report"
)

// Options configure how the runner executes steps.
type Options struct {
	Root      string
	Stdout    io.Writer
	Stderr    io.Writer
	Verbose   bool
	DryRun    bool
	TailLines int
	Env       []string
	Now       func() time.Time
}

// Runner executes a job's steps sequentially, short-circuiting on the first
// halting failure. The runner mutates nothing beyond the returned outcome;
// side effects belong to the step commands themselves.
type Runner struct {
	opts Options
}

// New creates a runner with the supplied options.
func New(opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.TailLines <= 0 {
		opts.TailLines = 40
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}
}

// Run executes spec's steps in order and returns the job outcome. Steps
// after the first halting failure never run. Cancellation lets the current
// step finish; remaining steps are not started and the job reports skipped
// when nothing failed before the cancellation.
func (r *Runner) Run(ctx context.Context, spec matrix.JobSpec) report.Outcome {
	logger := ctxlog.FromContext(ctx).With("job", spec.ID())
	outcome := report.Outcome{
		JobID:      spec.ID(),
		Status:     report.StatusPassed,
		FailedStep: report.NoFailedStep,
	}

	if r.opts.DryRun {
		outcome.Status = report.StatusSkipped
		outcome.SkipReason = "dry run"
		return outcome
	}

	start := r.opts.Now()
	for i, step := range spec.Steps {
		if ctx.Err() != nil {
			outcome.Status = report.StatusSkipped
			outcome.SkipReason = fmt.Sprintf("canceled before step %q", step.Name)
			logger.Info("job canceled", "step", step.Name)
			break
		}

		result := r.runStep(ctx, spec, step)
		outcome.Steps = append(outcome.Steps, result)

		if result.Status == report.StatusFailed {
			if step.AllowFailure {
				logger.Warn("step failed (allowed)", "step", step.Name, "exit_code", result.ExitCode)
				continue
			}
			logger.Warn("step failed", "step", step.Name, "exit_code", result.ExitCode)
			outcome.Status = report.StatusFailed
			outcome.FailedStep = i
			break
		}
		logger.Debug("step passed", "step", step.Name)
	}

	outcome.Duration = r.opts.Now().Sub(start)
	outcome.DurationMS = outcome.Duration.Milliseconds()
	return outcome
}

func (r *Runner) runStep(ctx context.Context, spec matrix.JobSpec, step matrix.Step) report.StepResult {
	result := report.StepResult{
		Name:   step.Name,
		Run:    step.Run,
		Status: report.StatusPassed,
	}

	// Cancellation is cooperative at step boundaries: a step already running
	// finishes (or times out) rather than being killed mid-flight.
	stepCtx := context.WithoutCancel(ctx)
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, step.Timeout)
		defer cancel()
	}

	env := mergeEnv(r.opts.Env, axisEnv(spec), step.Env)
	cmdArgs := commandArgs(step.Shell, step.Run)

	cmd := exec.CommandContext(stepCtx, cmdArgs[0], cmdArgs[1:]...)
	cmd.Dir = r.opts.Root
	cmd.Env = env

	var stdoutBuf, stderrBuf strings.Builder
	if r.opts.Verbose {
		cmd.Stdout = io.MultiWriter(r.opts.Stdout, &stdoutBuf)
		cmd.Stderr = io.MultiWriter(r.opts.Stderr, &stderrBuf)
	} else {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
	}

	start := r.opts.Now()
	err := cmd.Run()
	result.Duration = r.opts.Now().Sub(start)
	result.DurationMS = result.Duration.Milliseconds()

	result.Stdout = tailLines(stdoutBuf.String(), r.opts.TailLines)
	result.Stderr = tailLines(stderrBuf.String(), r.opts.TailLines)
	result.ExitCode = exitCode(err)

	if err != nil {
		// A timeout is recorded the same way as a command failure; only the
		// diagnostic text differs.
		result.Status = report.StatusFailed
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			note := fmt.Sprintf("step timed out after %s", step.Timeout)
			if result.Stderr == "" {
				result.Stderr = note
			} else {
				result.Stderr += "\n" + note
			}
		}
	}
	return result
}

// axisEnv exposes each pinned axis value to the step command, e.g.
// features=no_std becomes MATRIX_FEATURES=no_std.
func axisEnv(spec matrix.JobSpec) map[string]string {
	env := make(map[string]string, len(spec.Axes)+1)
	for _, av := range spec.Axes {
		env[matrix.EnvName(av.Axis)] = av.Value
	}
	env["MATRIX_JOB"] = spec.ID()
	return env
}

func commandArgs(shellSpec, script string) []string {
	if shellSpec == "" {
		if runtime.GOOS == "windows" {
			return []string{"cmd", "/C", script}
		}
		return []string{"sh", "-c", script}
	}

	fields := strings.Fields(shellSpec)
	shell := fields[0]
	args := append([]string{}, fields[1:]...)
	base := strings.ToLower(filepath.Base(shell))

	switch base {
	case "bash", "zsh", "ksh", "fish", "sh":
		args = append(args, "-c", script)
	case "cmd", "cmd.exe":
		args = append(args, "/C", script)
	case "pwsh", "powershell", "powershell.exe":
		args = append(args, "-Command", script)
	default:
		args = append(args, script)
	}
	return append([]string{shell}, args...)
}

func mergeEnv(base []string, overlays ...map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(overlays)*4)
	for _, kv := range base {
		if idx := strings.Index(kv, "="); idx != -1 {
			envMap[kv[:idx]] = kv[idx+1:]
		}
	}
	for _, overlay := range overlays {
		for k, v := range overlay {
			envMap[k] = v
		}
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, envMap[k]))
	}
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func tailLines(input string, maxLines int) string {
	if input == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(input, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}
