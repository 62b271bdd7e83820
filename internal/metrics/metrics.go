// Package metrics records run and job measurements for Prometheus scraping.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/bgricker/matrixdrive/internal/report"
)

// Recorder registers and feeds the matrixdrive Prometheus metrics. A nil
// Recorder is valid and records nothing, so callers never branch on whether
// metrics are enabled.
type Recorder struct {
	registry     *prom.Registry
	jobOutcomes  *prom.CounterVec
	jobDuration  prom.Histogram
	stepDuration *prom.HistogramVec
	jobsInFlight prom.Gauge
	runVerdicts  *prom.CounterVec
	runDuration  prom.Histogram
}

// NewRecorder constructs and registers the metric set on reg, creating a
// fresh registry when reg is nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{registry: reg}
	r.jobOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "matrixdrive",
		Name:      "job_outcomes_total",
		Help:      "Job outcomes by terminal status",
	}, []string{"status"})
	r.jobDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "matrixdrive",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock duration of individual jobs",
		Buckets:   prom.DefBuckets,
	})
	r.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "matrixdrive",
		Name:      "step_duration_seconds",
		Help:      "Duration of individual verification steps",
		Buckets:   prom.DefBuckets,
	}, []string{"step"})
	r.jobsInFlight = prom.NewGauge(prom.GaugeOpts{
		Namespace: "matrixdrive",
		Name:      "jobs_in_flight",
		Help:      "Jobs currently executing",
	})
	r.runVerdicts = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "matrixdrive",
		Name:      "run_verdicts_total",
		Help:      "Completed runs by overall verdict",
	}, []string{"verdict"})
	r.runDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "matrixdrive",
		Name:      "run_duration_seconds",
		Help:      "Total run duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
	reg.MustRegister(r.jobOutcomes, r.jobDuration, r.stepDuration, r.jobsInFlight, r.runVerdicts, r.runDuration)
	return r
}

// Registry returns the backing registry for the /metrics endpoint.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// JobStarted marks one job entering execution.
func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.jobsInFlight.Inc()
}

// JobFinished records a terminal job outcome and its duration.
func (r *Recorder) JobFinished(outcome report.Outcome) {
	if r == nil {
		return
	}
	r.jobsInFlight.Dec()
	r.jobOutcomes.WithLabelValues(string(outcome.Status)).Inc()
	r.jobDuration.Observe(outcome.Duration.Seconds())
	for _, step := range outcome.Steps {
		r.stepDuration.WithLabelValues(step.Name).Observe(step.Duration.Seconds())
	}
}

// RunFinished records a completed run's verdict and duration.
func (r *Recorder) RunFinished(verdict report.Status, d time.Duration) {
	if r == nil {
		return
	}
	r.runVerdicts.WithLabelValues(string(verdict)).Inc()
	r.runDuration.Observe(d.Seconds())
}
