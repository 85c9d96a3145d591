package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/aggregate"
	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/charts"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/testhelpers"
)

var evalDay = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func descriptionKpi(target string) *models.Kpi {
	return &models.Kpi{
		ID:                 uuid.New(),
		Name:               "CompletedDescription",
		FullyQualifiedName: "CompletedDescription",
		DataInsightChart: models.EntityReference{
			Type: "dataInsightChart",
			Name: string(models.ChartTypeDescriptionByType),
		},
		TargetDefinition: []models.KpiTarget{
			{Name: "completedDescriptionFraction", Value: target},
		},
		MetricType: models.MetricTypePercentage,
	}
}

// seed writes description rows so that `described` of `total` entities have
// a description on evalDay.
func seed(t *testing.T, memSink *testhelpers.MemorySink, described, total int) {
	t.Helper()
	rows := make([]models.ReportRow, 0, total)
	for i := 0; i < total; i++ {
		value := 0.0
		if i < described {
			value = 1.0
		}
		fqn := "svc.db.schema.t" + strconvItoa(i)
		rows = append(rows, models.ReportRow{
			ID:         models.DeriveRowID(fqn, evalDay, models.ChartTypeDescriptionByType),
			ChartType:  models.ChartTypeDescriptionByType,
			Timestamp:  models.EpochMillis(evalDay),
			EntityType: "table",
			EntityFQN:  fqn,
			Value:      value,
		})
	}
	require.NoError(t, memSink.Upsert(context.Background(), rows))
}

func strconvItoa(i int) string {
	return string(rune('0' + i/10)) + string(rune('0'+i%10))
}

func newEvaluator(memSink *testhelpers.MemorySink, cat *testhelpers.FakeCatalog) *Evaluator {
	engine := aggregate.NewEngine(memSink, charts.NewRegistry(), zap.NewNop())
	evaluator := NewEvaluator(engine, cat, zap.NewNop())
	evaluator.now = func() time.Time { return evalDay }
	return evaluator
}

func window() (int64, int64) {
	return models.EpochMillis(evalDay.Add(-12 * time.Hour)), models.EpochMillis(evalDay.Add(12 * time.Hour))
}

func TestEvaluate_TargetMissed(t *testing.T) {
	memSink := testhelpers.NewMemorySink()
	cat := testhelpers.NewFakeCatalog()
	seed(t, memSink, 14, 25) // 0.56 described

	startTs, endTs := window()
	result, err := newEvaluator(memSink, cat).Evaluate(context.Background(), descriptionKpi("0.63"), startTs, endTs)

	require.NoError(t, err)
	require.Len(t, result.TargetResult, 1)
	assert.False(t, result.TargetResult[0].TargetMet)
	assert.Equal(t, "0.56", result.TargetResult[0].Value)
}

func TestEvaluate_TargetMet(t *testing.T) {
	memSink := testhelpers.NewMemorySink()
	cat := testhelpers.NewFakeCatalog()
	seed(t, memSink, 70, 100) // 0.70 described

	startTs, endTs := window()
	result, err := newEvaluator(memSink, cat).Evaluate(context.Background(), descriptionKpi("0.63"), startTs, endTs)

	require.NoError(t, err)
	require.Len(t, result.TargetResult, 1)
	assert.True(t, result.TargetResult[0].TargetMet)
}

func TestEvaluate_PersistsResult(t *testing.T) {
	memSink := testhelpers.NewMemorySink()
	cat := testhelpers.NewFakeCatalog()
	seed(t, memSink, 1, 2)

	startTs, endTs := window()
	written, err := newEvaluator(memSink, cat).Evaluate(context.Background(), descriptionKpi("0.4"), startTs, endTs)
	require.NoError(t, err)

	// Round-trip through the catalog: read back carries the same verdicts.
	readBack, err := cat.GetKpiResult(context.Background(), "CompletedDescription", startTs, endTs)
	require.NoError(t, err)
	require.Len(t, readBack, 1)
	assert.Equal(t, written.TargetResult, readBack[0].TargetResult)
}

func TestEvaluate_InsufficientData(t *testing.T) {
	memSink := testhelpers.NewMemorySink()
	cat := testhelpers.NewFakeCatalog()

	startTs, endTs := window()
	_, err := newEvaluator(memSink, cat).Evaluate(context.Background(), descriptionKpi("0.63"), startTs, endTs)

	assert.ErrorIs(t, err, apperrors.ErrInsufficientData,
		"an empty window must not read as a missed target")
	assert.Empty(t, cat.Results, "nothing is persisted on error paths")
}

func TestEvaluate_InvalidRangePropagates(t *testing.T) {
	memSink := testhelpers.NewMemorySink()
	cat := testhelpers.NewFakeCatalog()

	_, err := newEvaluator(memSink, cat).Evaluate(context.Background(), descriptionKpi("0.63"), 100, 50)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
}

func TestEvaluate_UnknownChart(t *testing.T) {
	memSink := testhelpers.NewMemorySink()
	cat := testhelpers.NewFakeCatalog()

	kpi := descriptionKpi("0.5")
	kpi.DataInsightChart.Name = "NoSuchChart"

	startTs, endTs := window()
	_, err := newEvaluator(memSink, cat).Evaluate(context.Background(), kpi, startTs, endTs)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestEvaluate_DuplicateTargetNamesLastWins(t *testing.T) {
	memSink := testhelpers.NewMemorySink()
	cat := testhelpers.NewFakeCatalog()
	seed(t, memSink, 6, 10) // 0.6 described

	kpi := descriptionKpi("0.9")
	kpi.TargetDefinition = append(kpi.TargetDefinition,
		models.KpiTarget{Name: "completedDescriptionFraction", Value: "0.5"})

	startTs, endTs := window()
	result, err := newEvaluator(memSink, cat).Evaluate(context.Background(), kpi, startTs, endTs)

	require.NoError(t, err)
	require.Len(t, result.TargetResult, 1, "duplicate names collapse to one target")
	assert.True(t, result.TargetResult[0].TargetMet, "the later 0.5 goal wins over the earlier 0.9")
}

func TestAchievedValue_LastByTimestamp(t *testing.T) {
	data := []models.ChartResult{
		models.PercentageOfEntitiesWithDescriptionByType{
			Timestamp: 100, EntityType: "table", CompletedDescriptionFraction: 0.2,
		},
		models.PercentageOfEntitiesWithDescriptionByType{
			Timestamp: 200, EntityType: "topic", CompletedDescriptionFraction: 0.8,
		},
		models.PercentageOfEntitiesWithDescriptionByType{
			Timestamp: 200, EntityType: "dashboard", CompletedDescriptionFraction: 0.5,
		},
	}

	value, ok := achievedValue(data, "completedDescriptionFraction")
	require.True(t, ok)
	assert.InDelta(t, 0.5, value, 1e-9,
		"latest timestamp wins, ties resolved by lowest entity type")
}
