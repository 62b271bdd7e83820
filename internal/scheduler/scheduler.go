// Package scheduler dispatches expanded jobs to step runners with bounded
// parallelism and collects exactly one outcome per job.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/bgricker/matrixdrive/internal/ctxlog"
	"github.com/bgricker/matrixdrive/internal/matrix"
	"github.com/bgricker/matrixdrive/internal/metrics"
	"github.com/bgricker/matrixdrive/internal/report"
)

// StepRunner runs one job's step sequence. Implemented by runner.Runner.
type StepRunner interface {
	Run(ctx context.Context, spec matrix.JobSpec) report.Outcome
}

// SkipCheck reports, before dispatch, whether a job must be skipped and why.
// Used for toolchain-provisioning unavailability.
type SkipCheck func(matrix.JobSpec) (string, bool)

// SchedulingError reports a job the scheduler failed to account for. It is
// fatal for the run: a dropped job would make the report lie by omission.
type SchedulingError struct {
	JobID  string
	Reason string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling: job %s: %s", e.JobID, e.Reason)
}

// Options configure a scheduler.
type Options struct {
	// MaxConcurrency bounds parallel jobs. Values below 1 run jobs serially.
	MaxConcurrency int
	// Skip, when set, is consulted before dispatching each job.
	Skip SkipCheck
	// Metrics optionally records job lifecycle measurements.
	Metrics *metrics.Recorder
}

// Scheduler runs job specs through a fixed-size worker pool. Jobs are
// mutually independent: one job's failure never aborts its siblings, and no
// completion order is guaranteed.
type Scheduler struct {
	runner StepRunner
	opts   Options
}

// New creates a scheduler dispatching to the given step runner.
func New(runner StepRunner, opts Options) *Scheduler {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	return &Scheduler{runner: runner, opts: opts}
}

// Run executes every spec and returns the identity→Outcome mapping with
// exactly one entry per submitted job. The mapping is write-once: each key
// is written a single time and never overwritten. Cancellation marks jobs
// that have not been dispatched as skipped; in-flight jobs finish their
// current step.
func (s *Scheduler) Run(ctx context.Context, specs []matrix.JobSpec) (map[string]report.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	results := newOutcomeMap(len(specs))
	jobs := make(chan matrix.JobSpec, len(specs))
	for _, spec := range specs {
		jobs <- spec
	}
	close(jobs)

	workers := s.opts.MaxConcurrency
	if workers > len(specs) {
		workers = len(specs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for spec := range jobs {
				s.dispatch(ctx, workerID, spec, results)
			}
		}(w)
	}
	wg.Wait()

	if err := results.firstError(); err != nil {
		return nil, err
	}
	mapping := results.snapshot()
	for _, spec := range specs {
		if _, ok := mapping[spec.ID()]; !ok {
			return nil, &SchedulingError{JobID: spec.ID(), Reason: "no outcome recorded"}
		}
	}

	logger.Debug("scheduling complete", "jobs", len(specs), "workers", workers)
	return mapping, nil
}

func (s *Scheduler) dispatch(ctx context.Context, workerID int, spec matrix.JobSpec, results *outcomeMap) {
	logger := ctxlog.FromContext(ctx).With("worker", workerID, "job", spec.ID())

	if ctx.Err() != nil {
		logger.Info("job skipped", "reason", "run canceled")
		results.record(spec.ID(), report.Outcome{
			JobID:      spec.ID(),
			Status:     report.StatusSkipped,
			FailedStep: report.NoFailedStep,
			SkipReason: "run canceled before dispatch",
		})
		return
	}

	if s.opts.Skip != nil {
		if reason, skip := s.opts.Skip(spec); skip {
			logger.Info("job skipped", "reason", reason)
			results.record(spec.ID(), report.Outcome{
				JobID:      spec.ID(),
				Status:     report.StatusSkipped,
				FailedStep: report.NoFailedStep,
				SkipReason: reason,
			})
			return
		}
	}

	logger.Info("job started")
	s.opts.Metrics.JobStarted()
	outcome := s.runner.Run(ctx, spec)
	s.opts.Metrics.JobFinished(outcome)
	logger.Info("job finished", "status", string(outcome.Status), "duration_ms", outcome.DurationMS)

	results.record(spec.ID(), outcome)
}

// outcomeMap is the only shared mutable state of a run: a write-once map
// keyed by job identity.
type outcomeMap struct {
	mu       sync.Mutex
	outcomes map[string]report.Outcome
	errs     []error
}

func newOutcomeMap(size int) *outcomeMap {
	return &outcomeMap{outcomes: make(map[string]report.Outcome, size)}
}

func (m *outcomeMap) record(id string, outcome report.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.outcomes[id]; dup {
		m.errs = append(m.errs, &SchedulingError{JobID: id, Reason: "outcome recorded twice"})
		return
	}
	m.outcomes[id] = outcome
}

func (m *outcomeMap) firstError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) > 0 {
		return m.errs[0]
	}
	return nil
}

func (m *outcomeMap) snapshot() map[string]report.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]report.Outcome, len(m.outcomes))
	for k, v := range m.outcomes {
		out[k] = v
	}
	return out
}
