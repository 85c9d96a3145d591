package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/catalog"
	"github.com/metalake-io/insight-engine/pkg/lock"
	"github.com/metalake-io/insight-engine/pkg/metrics"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/sink"
)

// Stage discriminators accepted at create time. Anything else is a
// configuration error before any I/O happens.
const (
	SourceTypeDataInsight    = "dataInsight"
	ProcessorTypeDataInsight = "data-insight-processor"
	SinkTypeElasticsearch    = "elasticsearch"
	SinkTypePostgres         = "postgres"
)

const (
	defaultBatchSize = 100

	// recreateLockTTL bounds how long an index recreation may hold its
	// lock before it is presumed dead.
	recreateLockTTL = 10 * time.Minute
)

// Workflow drives one configured pipeline: ensure indices, stream entity
// snapshots through the processor, and flush row batches to the sink.
type Workflow interface {
	// Execute runs the pipeline to completion or until ctx is cancelled.
	// Re-running with the same catalog state is idempotent.
	Execute(ctx context.Context) error

	// Kpis lists the KPI definitions registered against the catalog.
	Kpis(ctx context.Context) ([]models.Kpi, error)

	// Stop cancels an in-flight Execute. Safe to call when idle.
	Stop()
}

type workflow struct {
	cfg       *models.WorkflowConfig
	processor Processor
	sink      sink.Sink
	catalog   catalog.Client
	lock      lock.Lock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

var _ Workflow = (*workflow)(nil)

// Option overrides a workflow collaborator, mostly for tests.
type Option func(*workflow)

// WithLock replaces the default process-local lock, e.g. with RedisLock
// for multi-instance deployments.
func WithLock(l lock.Lock) Option {
	return func(w *workflow) { w.lock = l }
}

// WithMetrics attaches workflow instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *workflow) { w.metrics = m }
}

// WithClock overrides the run clock.
func WithClock(now func() time.Time) Option {
	return func(w *workflow) { w.now = now }
}

// Create validates cfg against the stage registries and wires the pipeline.
// Validation is pure: no connection is opened until Execute.
func Create(cfg *models.WorkflowConfig, catalogClient catalog.Client, dataSink sink.Sink, logger *zap.Logger, opts ...Option) (Workflow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("workflow config is required: %w", apperrors.ErrConfiguration)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if catalogClient == nil {
		return nil, fmt.Errorf("catalog client is required: %w", apperrors.ErrConfiguration)
	}
	if dataSink == nil {
		return nil, fmt.Errorf("sink is required: %w", apperrors.ErrConfiguration)
	}

	w := &workflow{
		cfg:       cfg,
		processor: newDataInsightProcessor(),
		sink:      dataSink,
		catalog:   catalogClient,
		lock:      lock.NewLocalLock(),
		metrics:   metrics.NewNop(),
		logger:    logger.Named("workflow"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// validateConfig checks every stage discriminator and the selected sink's
// required settings. Errors wrap ErrConfiguration so callers can match.
func validateConfig(cfg *models.WorkflowConfig) error {
	if cfg.Source.Type != SourceTypeDataInsight {
		return fmt.Errorf("unknown source type %q: %w", cfg.Source.Type, apperrors.ErrConfiguration)
	}
	if cfg.Source.SourceConfig.Config.Type != SourceTypeDataInsight {
		return fmt.Errorf("unknown source config type %q: %w", cfg.Source.SourceConfig.Config.Type, apperrors.ErrConfiguration)
	}
	if cfg.Processor.Type != ProcessorTypeDataInsight {
		return fmt.Errorf("unknown processor type %q: %w", cfg.Processor.Type, apperrors.ErrConfiguration)
	}

	switch cfg.Sink.Type {
	case SinkTypeElasticsearch:
		if cfg.Sink.Config.ESHost == "" {
			return fmt.Errorf("elasticsearch sink requires es_host: %w", apperrors.ErrConfiguration)
		}
		if cfg.Sink.Config.ESPort <= 0 {
			return fmt.Errorf("elasticsearch sink requires es_port: %w", apperrors.ErrConfiguration)
		}
	case SinkTypePostgres:
		if cfg.Sink.Config.DatabaseDSN == "" {
			return fmt.Errorf("postgres sink requires database_dsn: %w", apperrors.ErrConfiguration)
		}
	default:
		return fmt.Errorf("unknown sink type %q: %w", cfg.Sink.Type, apperrors.ErrConfiguration)
	}

	if cfg.Sink.Config.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative: %w", apperrors.ErrConfiguration)
	}
	if cfg.WorkflowConfig.OpenMetadataServerConfig.HostPort == "" {
		return fmt.Errorf("openMetadataServerConfig.hostPort is required: %w", apperrors.ErrConfiguration)
	}
	return nil
}

func (w *workflow) Execute(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer func() {
		cancel()
		w.mu.Lock()
		w.cancel = nil
		w.mu.Unlock()
	}()

	start := w.now()
	err := w.run(ctx, start)
	w.observeRun(start, err)
	return err
}

func (w *workflow) run(ctx context.Context, start time.Time) error {
	w.logger.Info("Workflow started",
		zap.String("service", w.cfg.Source.ServiceName),
		zap.String("sink", w.cfg.Sink.Type),
		zap.Bool("recreate_indexes", w.cfg.Sink.Config.RecreateIndexes))

	if err := w.ensureIndexes(ctx); err != nil {
		return err
	}

	extractor := newDataInsightExtractor(w.catalog, start, w.logger)

	batchSize := w.cfg.Sink.Config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	batch := make([]models.ReportRow, 0, batchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.sink.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("flush batch of %d rows: %w", len(batch), err)
		}
		w.metrics.BatchesFlushed.Inc()
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for result := range extractor.Extract(ctx) {
		if result.Err != nil {
			return fmt.Errorf("extraction failed: %w", result.Err)
		}

		for _, row := range w.processor.Process(result.Snapshot) {
			w.metrics.RowsProduced.WithLabelValues(string(row.ChartType)).Inc()
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
				// Cancellation is honored between batches so a partial
				// batch is never dropped mid-flush.
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	w.logger.Info("Workflow finished",
		zap.Int("rows", total),
		zap.Duration("elapsed", w.now().Sub(start)))
	return nil
}

// ensureIndexes prepares every report index before rows flow. Recreation is
// destructive, so each index's recreation runs behind its lock; a held lock
// means another instance is already recreating and we fail the run rather
// than write into an index mid-teardown.
func (w *workflow) ensureIndexes(ctx context.Context) error {
	recreate := w.cfg.Sink.Config.RecreateIndexes
	for _, dataType := range models.AllReportDataTypes {
		if !recreate {
			if err := w.sink.EnsureIndex(ctx, dataType, false); err != nil {
				return fmt.Errorf("ensure index %s: %w", dataType.IndexName(), err)
			}
			continue
		}

		key := "recreate:" + dataType.IndexName()
		acquired, err := w.lock.TryLock(ctx, key, recreateLockTTL)
		if err != nil {
			return fmt.Errorf("acquire recreate lock for %s: %w", dataType.IndexName(), err)
		}
		if !acquired {
			return fmt.Errorf("index %s is being recreated by another instance: %w", dataType.IndexName(), apperrors.ErrConflict)
		}

		err = w.sink.EnsureIndex(ctx, dataType, true)
		if unlockErr := w.lock.Unlock(ctx, key); unlockErr != nil {
			w.logger.Warn("Failed to release recreate lock",
				zap.String("index", dataType.IndexName()),
				zap.Error(unlockErr))
		}
		if err != nil {
			return fmt.Errorf("recreate index %s: %w", dataType.IndexName(), err)
		}
		w.logger.Info("Index recreated", zap.String("index", dataType.IndexName()))
	}
	return nil
}

func (w *workflow) Kpis(ctx context.Context) ([]models.Kpi, error) {
	kpis, err := w.catalog.ListKpis(ctx)
	if err != nil {
		return nil, fmt.Errorf("list kpis: %w", err)
	}
	return kpis, nil
}

func (w *workflow) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *workflow) observeRun(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	w.metrics.WorkflowRuns.WithLabelValues(outcome).Inc()
	w.metrics.WorkflowSecs.Observe(w.now().Sub(start).Seconds())
}
