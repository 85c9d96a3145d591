package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/metalake-io/insight-engine/pkg/models"
)

// Entity is one catalog entity's identity and quality attributes, as listed
// by the catalog API.
type Entity struct {
	ID                 uuid.UUID               `json:"id"`
	FullyQualifiedName string                  `json:"fullyQualifiedName"`
	Description        string                  `json:"description,omitempty"`
	Owner              *models.EntityReference `json:"owner,omitempty"`
}

// EntityPage is one page of a paginated entity listing. After carries the
// cursor for the next page; empty means the listing is exhausted.
type EntityPage struct {
	Entities []Entity `json:"data"`
	After    string   `json:"after,omitempty"`
	Total    int      `json:"total,omitempty"`
}

// Client is the metadata catalog capability the engine consumes. All methods
// fail with apperrors.ErrTransport on network or credential failure and
// apperrors.ErrNotFound when the addressed entity does not exist. Retry
// policy lives inside the implementation; callers never retry.
type Client interface {
	// GetChartByName resolves a chart definition registered in the catalog.
	GetChartByName(ctx context.Context, name string) (*models.DataInsightChart, error)

	// ListEntities pages through entities of one type. Pass the previous
	// page's After cursor; an empty cursor starts from the beginning.
	ListEntities(ctx context.Context, entityType string, limit int, after string) (*EntityPage, error)

	// CreateKpi registers a new KPI definition.
	CreateKpi(ctx context.Context, req *models.CreateKpiRequest) (*models.Kpi, error)

	// ListKpis returns every registered KPI definition.
	ListKpis(ctx context.Context) ([]models.Kpi, error)

	// DeleteKpi removes a KPI. hardDelete is irreversible; recursive also
	// removes dependent KPI results.
	DeleteKpi(ctx context.Context, id uuid.UUID, hardDelete, recursive bool) error

	// AddKpiResult appends an evaluation result to the KPI's time series.
	AddKpiResult(ctx context.Context, fqn string, result *models.KpiResult) error

	// GetKpiResult reads a KPI's results in [startTs, endTs].
	GetKpiResult(ctx context.Context, fqn string, startTs, endTs int64) ([]models.KpiResult, error)

	// GetDataInsightReportData reads raw report rows of one report type.
	GetDataInsightReportData(ctx context.Context, startTs, endTs int64, reportType models.ReportDataType) ([]models.ReportRow, error)

	// GetAggregatedDataInsightResults runs the server-side aggregation for a
	// chart over a window.
	GetAggregatedDataInsightResults(ctx context.Context, startTs, endTs int64, chart models.ChartType, indexName string) (*models.DataInsightChartResult, error)
}
