package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/kpi"
	"github.com/metalake-io/insight-engine/pkg/metrics"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/workflow"
)

// runTimeout bounds one scheduled pipeline run end to end, KPI
// evaluation included.
const runTimeout = 2 * time.Hour

// Scheduler triggers the data insight workflow on a cron spec and
// evaluates every registered KPI against the freshly written window.
type Scheduler struct {
	workflow  workflow.Workflow
	evaluator *kpi.Evaluator
	cronSpec  string
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// New creates a stopped scheduler. evaluator may be nil when KPI
// evaluation is not wanted.
func New(wf workflow.Workflow, evaluator *kpi.Evaluator, cronSpec string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		workflow:  wf,
		evaluator: evaluator,
		cronSpec:  cronSpec,
		metrics:   metrics.NewNop(),
		logger:    logger.Named("scheduler"),
		now:       time.Now,
	}
}

// WithClock overrides the run clock.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// WithMetrics attaches KPI evaluation instrumentation.
func (s *Scheduler) WithMetrics(m *metrics.Metrics) *Scheduler {
	s.metrics = m
	return s
}

// Start registers the cron entry and begins scheduling. The first run
// happens at the next cron tick, not immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.cronSpec, s.tick); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", s.cronSpec, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("Scheduler started", zap.String("cron", s.cronSpec))
	return nil
}

// Stop halts scheduling and waits for an in-flight run's cron slot to
// drain. A running workflow is cancelled via its own Stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	s.workflow.Stop()
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// tick is the cron entry point. Overlapping ticks are skipped: one run at
// a time, the clock does not queue work behind a slow pipeline.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Previous run still in progress, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Scheduled run failed", zap.Error(err))
	}
}

// RunOnce executes the workflow and then evaluates every registered KPI
// over the day that just ended. Exposed so operators can trigger a run
// out of band.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()
	if err := s.workflow.Execute(ctx); err != nil {
		return fmt.Errorf("execute workflow: %w", err)
	}

	if s.evaluator == nil {
		return nil
	}

	kpis, err := s.workflow.Kpis(ctx)
	if err != nil {
		return fmt.Errorf("list kpis for evaluation: %w", err)
	}

	// The window closes after the run returns: the workflow stamps rows
	// with its own clock read at execution time, and an end bound taken
	// before Execute would exclude those rows. 24 hours back from there
	// covers the rows this run just wrote.
	endTs := models.EpochMillis(s.now())
	startTs := endTs - (24 * time.Hour).Milliseconds()

	var failures int
	for i := range kpis {
		if _, err := s.evaluator.Evaluate(ctx, &kpis[i], startTs, endTs); err != nil {
			failures++
			s.metrics.KpiEvaluations.WithLabelValues("failure").Inc()
			s.logger.Error("KPI evaluation failed",
				zap.String("kpi", kpis[i].Name),
				zap.Error(err))
			continue
		}
		s.metrics.KpiEvaluations.WithLabelValues("success").Inc()
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d kpi evaluations failed", failures, len(kpis))
	}

	s.logger.Info("Run complete",
		zap.Int("kpis", len(kpis)),
		zap.Duration("elapsed", s.now().Sub(start)))
	return nil
}
