package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bgricker/matrixdrive/internal/config"
	"github.com/bgricker/matrixdrive/internal/ctxlog"
	"github.com/bgricker/matrixdrive/internal/history"
	"github.com/bgricker/matrixdrive/internal/matrix"
	"github.com/bgricker/matrixdrive/internal/metrics"
	"github.com/bgricker/matrixdrive/internal/output"
	"github.com/bgricker/matrixdrive/internal/provision"
	"github.com/bgricker/matrixdrive/internal/report"
	"github.com/bgricker/matrixdrive/internal/runner"
	"github.com/bgricker/matrixdrive/internal/scheduler"
	"github.com/bgricker/matrixdrive/internal/watch"
)

var errJobsFailed = errors.New("one or more jobs failed")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Expand the matrix and run every verification job",
		RunE:  runExecute,
	}
	cmd.Flags().Bool("watch", false, "re-run verification when project files change")
	return cmd
}

func runExecute(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	specs, err := buildPlan(cfg)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching jobs")
		return nil
	}

	logger := newLogger(cfg, cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder(nil)
	}

	var store *history.Store
	if cfg.History.Enabled {
		path := cfg.History.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		store, err = history.New(path)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	orch := &orchestrator{
		cfg:      cfg,
		root:     root,
		specs:    specs,
		recorder: recorder,
		store:    store,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}

	rep, err := orch.execute(ctx)
	if err != nil {
		return err
	}

	watchMode, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return fmt.Errorf("parse --watch: %w", err)
	}
	if watchMode {
		return orch.watchLoop(ctx)
	}

	if rep.Failed() {
		return errJobsFailed
	}
	return nil
}

// orchestrator wires one verification run end to end: provisioning probe,
// scheduling, aggregation, rendering, and archival.
type orchestrator struct {
	cfg      config.Config
	root     string
	specs    []matrix.JobSpec
	recorder *metrics.Recorder
	store    *history.Store
	out      io.Writer
	errOut   io.Writer
}

func (o *orchestrator) execute(ctx context.Context) (report.Report, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now().UTC()

	prober := provision.New(o.cfg.Toolchain.Axis, o.cfg.Toolchain.Probe)
	unavailable := prober.Check(ctx, o.toolchainValues())

	run := runner.New(runner.Options{
		Root:    o.root,
		Stdout:  o.out,
		Stderr:  o.errOut,
		Verbose: o.cfg.Verbose,
		DryRun:  o.cfg.DryRun,
	})
	sched := scheduler.New(run, scheduler.Options{
		MaxConcurrency: o.cfg.EffectiveConcurrency(),
		Skip:           prober.SkipCheck(unavailable),
		Metrics:        o.recorder,
	})

	outcomes, err := sched.Run(ctx, o.specs)
	if err != nil {
		return report.Report{}, err
	}

	rep, err := report.Aggregate(uuid.NewString(), start, o.specs, outcomes)
	if err != nil {
		return report.Report{}, err
	}
	o.recorder.RunFinished(rep.Verdict, time.Since(start))

	if err := o.render(rep); err != nil {
		return report.Report{}, err
	}

	if o.store != nil {
		// Archive even when the run was interrupted; the report is complete
		// either way.
		if err := o.store.Append(context.WithoutCancel(ctx), rep); err != nil {
			logger.Warn("archiving run failed", "run_id", rep.RunID, "error", err)
		}
	}
	return rep, nil
}

func (o *orchestrator) render(rep report.Report) error {
	switch strings.ToLower(o.cfg.Format) {
	case config.FormatPretty:
		return output.NewPretty(o.out).RenderReport(rep)
	case config.FormatJSON:
		return output.NewJSON(o.out).RenderReport(rep)
	default:
		return fmt.Errorf("unsupported format %q", o.cfg.Format)
	}
}

func (o *orchestrator) toolchainValues() []string {
	if o.cfg.Toolchain.Axis == "" {
		return nil
	}
	for _, axis := range o.cfg.Matrix.Axes {
		if axis.Name == o.cfg.Toolchain.Axis {
			return axis.Values
		}
	}
	return nil
}

// watchLoop blocks re-running verification on file changes until the run is
// interrupted. Verdicts of individual iterations are reported but do not
// terminate the loop.
func (o *orchestrator) watchLoop(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	w, err := watch.New(o.root, o.cfg.WatchDebounce(), o.cfg.Watch.Ignore)
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.Run(ctx, func(triggerCtx context.Context) {
		if _, execErr := o.execute(triggerCtx); execErr != nil {
			logger.Error("verification run failed", "error", execErr)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
