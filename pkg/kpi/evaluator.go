package kpi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/aggregate"
	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/catalog"
	"github.com/metalake-io/insight-engine/pkg/models"
)

// Evaluator judges whether a KPI's targets were met over a window and
// persists the verdict as a KpiResult in the catalog.
type Evaluator struct {
	engine  *aggregate.Engine
	catalog catalog.Client
	logger  *zap.Logger
	now     func() time.Time
}

// NewEvaluator creates a KPI evaluator.
func NewEvaluator(engine *aggregate.Engine, client catalog.Client, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		engine:  engine,
		catalog: client,
		logger:  logger.Named("kpi"),
		now:     time.Now,
	}
}

// Evaluate aggregates the KPI's chart over [startTs, endTs], computes
// targetMet per target, persists the KpiResult and returns it.
//
// A window with no aggregated data fails with ErrInsufficientData: "no data
// to judge" is distinct from "target missed". Nothing is persisted on any
// error path.
func (e *Evaluator) Evaluate(ctx context.Context, kpi *models.Kpi, startTs, endTs int64) (*models.KpiResult, error) {
	chart := chartTypeOf(kpi)
	if !chart.Valid() {
		return nil, fmt.Errorf("kpi %q references unknown chart %q: %w",
			kpi.Name, kpi.DataInsightChart.Name, apperrors.ErrConfiguration)
	}

	result, err := e.engine.Aggregate(ctx, startTs, endTs, chart, chart.ReportDataType().IndexName())
	if err != nil {
		return nil, fmt.Errorf("aggregate for kpi %q: %w", kpi.Name, err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no %s data in [%d, %d] for kpi %q: %w",
			chart, startTs, endTs, kpi.Name, apperrors.ErrInsufficientData)
	}

	targets := dedupeTargets(kpi.TargetDefinition)
	evaluated := make([]models.KpiTarget, 0, len(targets))
	for _, target := range targets {
		achieved, ok := achievedValue(result.Data, target.Name)
		if !ok {
			return nil, fmt.Errorf("no data point carries metric %q in [%d, %d] for kpi %q: %w",
				target.Name, startTs, endTs, kpi.Name, apperrors.ErrInsufficientData)
		}

		goal, err := strconv.ParseFloat(target.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("kpi %q target %q has non-numeric value %q: %w",
				kpi.Name, target.Name, target.Value, apperrors.ErrConfiguration)
		}

		met, err := targetMet(kpi.MetricType, achieved, goal)
		if err != nil {
			return nil, fmt.Errorf("kpi %q: %w", kpi.Name, err)
		}

		evaluated = append(evaluated, models.KpiTarget{
			Name:      target.Name,
			Value:     strconv.FormatFloat(achieved, 'f', -1, 64),
			TargetMet: met,
		})
	}

	kpiResult := &models.KpiResult{
		Timestamp:    models.EpochMillis(e.now()),
		KpiFqn:       kpiFqn(kpi),
		TargetResult: evaluated,
	}

	if err := e.catalog.AddKpiResult(ctx, kpiResult.KpiFqn, kpiResult); err != nil {
		return nil, fmt.Errorf("persist result for kpi %q: %w", kpi.Name, err)
	}

	e.logger.Info("Evaluated KPI",
		zap.String("kpi", kpiResult.KpiFqn),
		zap.String("chart", string(chart)),
		zap.Int("targets", len(evaluated)))

	return kpiResult, nil
}

func chartTypeOf(kpi *models.Kpi) models.ChartType {
	name := kpi.DataInsightChart.Name
	if name == "" {
		name = kpi.DataInsightChart.FullyQualifiedName
	}
	return models.ChartType(name)
}

func kpiFqn(kpi *models.Kpi) string {
	if kpi.FullyQualifiedName != "" {
		return kpi.FullyQualifiedName
	}
	return kpi.Name
}

// dedupeTargets keeps the last occurrence of each target name. Definitions
// listing a name twice are treated as overriding earlier entries.
func dedupeTargets(targets []models.KpiTarget) []models.KpiTarget {
	last := make(map[string]int, len(targets))
	for i, target := range targets {
		last[target.Name] = i
	}

	deduped := make([]models.KpiTarget, 0, len(last))
	for i, target := range targets {
		if last[target.Name] == i {
			deduped = append(deduped, target)
		}
	}
	return deduped
}

// achievedValue selects the metric from the aggregated data points. When
// several points carry the metric, the latest timestamp wins; equal
// timestamps fall back to the lowest entity type so selection is
// reproducible.
func achievedValue(data []models.ChartResult, metric string) (float64, bool) {
	var (
		best     float64
		bestTs   int64 = -1
		bestType string
		found    bool
	)
	for _, point := range data {
		value, ok := point.Metric(metric)
		if !ok {
			continue
		}
		ts := point.ResultTimestamp()
		entityType := point.ResultEntityType()
		if !found || ts > bestTs || (ts == bestTs && entityType < bestType) {
			best, bestTs, bestType, found = value, ts, entityType, true
		}
	}
	return best, found
}

func targetMet(metricType models.MetricType, achieved, goal float64) (bool, error) {
	switch metricType {
	case models.MetricTypePercentage, models.MetricTypeNumber:
		return achieved >= goal, nil
	default:
		return false, fmt.Errorf("unknown metric type %q: %w", metricType, apperrors.ErrConfiguration)
	}
}
