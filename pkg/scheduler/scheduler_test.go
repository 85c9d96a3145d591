package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/aggregate"
	"github.com/metalake-io/insight-engine/pkg/catalog"
	"github.com/metalake-io/insight-engine/pkg/charts"
	"github.com/metalake-io/insight-engine/pkg/kpi"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/testhelpers"
	"github.com/metalake-io/insight-engine/pkg/workflow"
)

type mockWorkflow struct {
	executeCalls int
	executeErr   error
	kpis         []models.Kpi
	kpisErr      error
	stopped      bool
}

func (m *mockWorkflow) Execute(context.Context) error {
	m.executeCalls++
	return m.executeErr
}

func (m *mockWorkflow) Kpis(context.Context) ([]models.Kpi, error) {
	return m.kpis, m.kpisErr
}

func (m *mockWorkflow) Stop() { m.stopped = true }

func TestRunOnceExecutesWorkflow(t *testing.T) {
	wf := &mockWorkflow{}
	s := New(wf, nil, "0 2 * * *", zap.NewNop())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, wf.executeCalls)
}

func TestRunOncePropagatesExecuteFailure(t *testing.T) {
	wf := &mockWorkflow{executeErr: errors.New("sink unreachable")}
	s := New(wf, nil, "0 2 * * *", zap.NewNop())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink unreachable")
}

// steppingClock returns a clock advancing by step on every read.
func steppingClock(base time.Time, step time.Duration) func() time.Time {
	var calls int
	return func() time.Time {
		t := base.Add(step * time.Duration(calls))
		calls++
		return t
	}
}

func workflowConfig() *models.WorkflowConfig {
	return &models.WorkflowConfig{
		Source: models.SourceConfig{
			Type:        workflow.SourceTypeDataInsight,
			ServiceName: "OpenMetadata",
			SourceConfig: models.NestedSourceConfig{
				Config: models.SourceConfigDetails{Type: workflow.SourceTypeDataInsight},
			},
		},
		Processor: models.ProcessorConfig{Type: workflow.ProcessorTypeDataInsight},
		Sink: models.SinkConfig{
			Type:   workflow.SinkTypeElasticsearch,
			Config: models.SinkSettings{ESHost: "localhost", ESPort: 9200},
		},
		WorkflowConfig: models.ServerConfig{
			OpenMetadataServerConfig: models.OpenMetadataServerConfig{
				HostPort: "http://localhost:8585/api",
			},
		},
	}
}

func TestRunOnceWindowCoversFreshRows(t *testing.T) {
	fake := testhelpers.NewFakeCatalog()
	fake.Entities["tables"] = []catalog.Entity{
		{FullyQualifiedName: "svc.db.schema.orders", Description: "Order facts"},
		{FullyQualifiedName: "svc.db.schema.users"},
	}
	fake.Kpis = []models.Kpi{{
		Name:             "description-coverage",
		DataInsightChart: models.EntityReference{Name: string(models.ChartTypeDescriptionByType)},
		TargetDefinition: []models.KpiTarget{{Name: "completedDescriptionFraction", Value: "0.5"}},
		MetricType:       models.MetricTypePercentage,
	}}
	memSink := testhelpers.NewMemorySink()

	// The scheduler reads its clock before Execute; the workflow stamps
	// rows with a strictly later read. The evaluation window must still
	// contain those rows.
	base := time.Date(2024, 3, 14, 2, 0, 0, 0, time.UTC)
	wf, err := workflow.Create(workflowConfig(), fake, memSink, zap.NewNop(),
		workflow.WithClock(func() time.Time { return base.Add(5 * time.Millisecond) }))
	require.NoError(t, err)

	engine := aggregate.NewEngine(memSink, charts.NewRegistry(), zap.NewNop())
	evaluator := kpi.NewEvaluator(engine, fake, zap.NewNop())

	s := New(wf, evaluator, "0 2 * * *", zap.NewNop()).
		WithClock(steppingClock(base, 10*time.Millisecond))

	require.NoError(t, s.RunOnce(context.Background()))

	results := fake.Results["description-coverage"]
	require.Len(t, results, 1, "the fresh rows must be inside the evaluation window")
	require.Len(t, results[0].TargetResult, 1)
	assert.True(t, results[0].TargetResult[0].TargetMet, "1 of 2 entities described meets the 0.5 goal")
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	s := New(&mockWorkflow{}, nil, "not a cron spec", zap.NewNop())

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron spec")
}

func TestStartIsIdempotent(t *testing.T) {
	wf := &mockWorkflow{}
	s := New(wf, nil, "0 2 * * *", zap.NewNop())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	s.Stop()
	assert.True(t, wf.stopped)
}

func TestStopWithoutStart(t *testing.T) {
	s := New(&mockWorkflow{}, nil, "0 2 * * *", zap.NewNop())
	s.Stop()
}

func TestTickSkipsOverlap(t *testing.T) {
	wf := &mockWorkflow{}
	s := New(wf, nil, "0 2 * * *", zap.NewNop())

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.tick()
	assert.Equal(t, 0, wf.executeCalls)
}
