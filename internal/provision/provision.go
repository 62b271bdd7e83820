// Package provision probes toolchain availability before a run. An
// unavailable toolchain marks its jobs skipped, never failed: missing
// provisioning is an environment problem, not a build verdict.
package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bgricker/matrixdrive/internal/ctxlog"
	"github.com/bgricker/matrixdrive/internal/matrix"
)

// DefaultTimeout bounds a single probe invocation.
const DefaultTimeout = 30 * time.Second

// Prober runs a configured probe command once per value of one axis. The
// probe runs with the axis value exported in the environment the same way
// step commands receive it.
type Prober struct {
	axis    string
	command string
	timeout time.Duration
	env     []string
}

// New creates a prober for the named axis. An empty command disables
// probing: every value counts as available.
func New(axis, command string) *Prober {
	return &Prober{
		axis:    axis,
		command: command,
		timeout: DefaultTimeout,
		env:     os.Environ(),
	}
}

// WithTimeout overrides the per-probe timeout.
func (p *Prober) WithTimeout(d time.Duration) *Prober {
	p.timeout = d
	return p
}

// WithEnv overrides the base environment, primarily for tests.
func (p *Prober) WithEnv(env []string) *Prober {
	p.env = append([]string{}, env...)
	return p
}

// Axis returns the axis this prober covers.
func (p *Prober) Axis() string { return p.axis }

// Check probes each axis value and returns a value→reason map for the
// unavailable ones. Probe failures never abort the run; they only mark the
// affected jobs for skipping.
func (p *Prober) Check(ctx context.Context, values []string) map[string]string {
	unavailable := make(map[string]string)
	if p == nil || p.command == "" || p.axis == "" {
		return unavailable
	}

	logger := ctxlog.FromContext(ctx)
	for _, value := range values {
		if reason := p.probe(ctx, value); reason != "" {
			logger.Warn("toolchain unavailable", "axis", p.axis, "value", value, "reason", reason)
			unavailable[value] = reason
		} else {
			logger.Debug("toolchain available", "axis", p.axis, "value", value)
		}
	}
	return unavailable
}

func (p *Prober) probe(ctx context.Context, value string) string {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, "sh", "-c", p.command)
	cmd.Env = append(append([]string{}, p.env...), fmt.Sprintf("%s=%s", matrix.EnvName(p.axis), value))
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if err == nil {
		return ""
	}
	if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("probe timed out after %s", p.timeout)
	}
	if Missing(err) {
		return fmt.Sprintf("probe command not found: %v", err)
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return fmt.Sprintf("probe failed: %v", err)
	}
	return fmt.Sprintf("probe failed: %v: %s", err, firstLine(out))
}

// SkipCheck binds probe results to the scheduler's skip hook: any job whose
// value on the probed axis is unavailable reports a skip reason.
func (p *Prober) SkipCheck(unavailable map[string]string) func(matrix.JobSpec) (string, bool) {
	return func(spec matrix.JobSpec) (string, bool) {
		if p == nil || len(unavailable) == 0 {
			return "", false
		}
		value, ok := spec.Value(p.axis)
		if !ok {
			return "", false
		}
		reason, bad := unavailable[value]
		return reason, bad
	}
}

// Missing reports whether executing the command returned a not-found error.
func Missing(cmdErr error) bool {
	return errors.Is(cmdErr, exec.ErrNotFound)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
