package testhelpers

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/catalog"
	"github.com/metalake-io/insight-engine/pkg/models"
)

// FakeCatalog is an in-memory catalog.Client for unit tests. Seed it with
// charts, entities and KPIs; it records KPI results per FQN.
type FakeCatalog struct {
	mu sync.RWMutex

	Charts   map[string]models.DataInsightChart
	Entities map[string][]catalog.Entity // entity type → entities
	Kpis     []models.Kpi
	Results  map[string][]models.KpiResult // kpi fqn → results

	// PageSize bounds ListEntities pages; 0 means everything in one page.
	PageSize int

	// FailWith, when set, makes every call fail with this error.
	FailWith error
}

// NewFakeCatalog creates an empty fake.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Charts:   make(map[string]models.DataInsightChart),
		Entities: make(map[string][]catalog.Entity),
		Results:  make(map[string][]models.KpiResult),
	}
}

var _ catalog.Client = (*FakeCatalog)(nil)

func (f *FakeCatalog) GetChartByName(_ context.Context, name string) (*models.DataInsightChart, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	chart, ok := f.Charts[name]
	if !ok {
		return nil, fmt.Errorf("chart %q: %w", name, apperrors.ErrNotFound)
	}
	return &chart, nil
}

func (f *FakeCatalog) ListEntities(_ context.Context, entityType string, limit int, after string) (*catalog.EntityPage, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	entities := f.Entities[entityType]
	pageSize := f.PageSize
	if pageSize <= 0 || pageSize > limit {
		pageSize = limit
	}

	start := 0
	if after != "" {
		var err error
		start, err = strconv.Atoi(after)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q: %w", after, err)
		}
	}

	end := start + pageSize
	if end > len(entities) {
		end = len(entities)
	}

	page := &catalog.EntityPage{
		Entities: entities[start:end],
		Total:    len(entities),
	}
	if end < len(entities) {
		page.After = strconv.Itoa(end)
	}
	return page, nil
}

func (f *FakeCatalog) CreateKpi(_ context.Context, req *models.CreateKpiRequest) (*models.Kpi, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.Kpis {
		if existing.Name == req.Name {
			return nil, fmt.Errorf("kpi %q already exists: %w", req.Name, apperrors.ErrConflict)
		}
	}

	kpi := models.Kpi{
		ID:                 uuid.New(),
		Name:               req.Name,
		FullyQualifiedName: req.Name,
		Description:        req.Description,
		DataInsightChart:   req.DataInsightChart,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		TargetDefinition:   req.TargetDefinition,
		MetricType:         req.MetricType,
	}
	f.Kpis = append(f.Kpis, kpi)
	return &kpi, nil
}

func (f *FakeCatalog) ListKpis(_ context.Context) ([]models.Kpi, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]models.Kpi(nil), f.Kpis...), nil
}

func (f *FakeCatalog) DeleteKpi(_ context.Context, id uuid.UUID, hardDelete, recursive bool) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, kpi := range f.Kpis {
		if kpi.ID == id {
			f.Kpis = append(f.Kpis[:i], f.Kpis[i+1:]...)
			if hardDelete && recursive {
				delete(f.Results, kpi.FullyQualifiedName)
			}
			return nil
		}
	}
	return fmt.Errorf("kpi %s: %w", id, apperrors.ErrNotFound)
}

func (f *FakeCatalog) AddKpiResult(_ context.Context, fqn string, result *models.KpiResult) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[fqn] = append(f.Results[fqn], *result)
	return nil
}

func (f *FakeCatalog) GetKpiResult(_ context.Context, fqn string, startTs, endTs int64) ([]models.KpiResult, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	var results []models.KpiResult
	for _, result := range f.Results[fqn] {
		if result.Timestamp >= startTs && result.Timestamp <= endTs {
			results = append(results, result)
		}
	}
	return results, nil
}

func (f *FakeCatalog) GetDataInsightReportData(context.Context, int64, int64, models.ReportDataType) ([]models.ReportRow, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	return nil, nil
}

func (f *FakeCatalog) GetAggregatedDataInsightResults(context.Context, int64, int64, models.ChartType, string) (*models.DataInsightChartResult, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	return &models.DataInsightChartResult{}, nil
}
