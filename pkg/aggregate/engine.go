package aggregate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/charts"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/sink"
)

// Engine answers time-windowed aggregation queries: it pulls the matching
// report rows out of the sink and hands them to the chart's aggregator.
// Queries are read-only and safe to run concurrently with an in-progress
// ingestion, at the cost of observing a partially written day.
type Engine struct {
	sink     sink.Sink
	registry *charts.Registry
	logger   *zap.Logger
}

// NewEngine creates an aggregation engine over the given sink and registry.
func NewEngine(s sink.Sink, registry *charts.Registry, logger *zap.Logger) *Engine {
	return &Engine{
		sink:     s,
		registry: registry,
		logger:   logger.Named("aggregate"),
	}
}

// Aggregate computes the chart's data points from rows in [startTs, endTs]
// (inclusive epoch millis) within the named index. An empty window yields an
// empty Data slice, not an error.
func (e *Engine) Aggregate(ctx context.Context, startTs, endTs int64, chart models.ChartType, indexName string) (*models.DataInsightChartResult, error) {
	if startTs > endTs {
		return nil, fmt.Errorf("start %d after end %d for chart %s: %w",
			startTs, endTs, chart, apperrors.ErrInvalidRange)
	}

	aggregator, ok := e.registry.Get(chart)
	if !ok {
		return nil, fmt.Errorf("chart type %q is not registered: %w", chart, apperrors.ErrConfiguration)
	}

	rows, err := e.sink.Search(ctx, indexName, chart, startTs, endTs)
	if err != nil {
		return nil, fmt.Errorf("query rows for chart %s in [%d, %d]: %w", chart, startTs, endTs, err)
	}

	data := aggregator.Aggregate(rows)
	e.logger.Debug("Aggregated chart window",
		zap.String("chart", string(chart)),
		zap.String("index", indexName),
		zap.Int("rows", len(rows)),
		zap.Int("data_points", len(data)))

	return &models.DataInsightChartResult{
		ChartType: chart,
		Data:      data,
	}, nil
}
