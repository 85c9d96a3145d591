package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportDataType identifies a family of report rows sharing one sink index.
type ReportDataType string

const (
	ReportDataTypeEntity               ReportDataType = "EntityReportData"
	ReportDataTypeWebAnalyticEntityView ReportDataType = "WebAnalyticEntityViewReportData"
)

// AllReportDataTypes lists every report data type with a sink index.
// Index recreation walks this list.
var AllReportDataTypes = []ReportDataType{
	ReportDataTypeEntity,
	ReportDataTypeWebAnalyticEntityView,
}

// IndexName returns the sink index holding rows of this report data type.
func (t ReportDataType) IndexName() string {
	switch t {
	case ReportDataTypeEntity:
		return "entity_report_data_index"
	case ReportDataTypeWebAnalyticEntityView:
		return "web_analytic_entity_view_report_data"
	default:
		return ""
	}
}

// ChartType enumerates the analytic metrics the engine computes.
type ChartType string

const (
	ChartTypeDescriptionByType   ChartType = "PercentageOfEntitiesWithDescriptionByType"
	ChartTypeOwnerByType         ChartType = "PercentageOfEntitiesWithOwnerByType"
	ChartTypeTotalEntitiesByType ChartType = "TotalEntitiesByType"
)

// AllChartTypes lists the closed set of known chart types.
var AllChartTypes = []ChartType{
	ChartTypeDescriptionByType,
	ChartTypeOwnerByType,
	ChartTypeTotalEntitiesByType,
}

// ReportDataType returns the report-row family this chart reads from.
func (c ChartType) ReportDataType() ReportDataType {
	switch c {
	case ChartTypeDescriptionByType, ChartTypeOwnerByType, ChartTypeTotalEntitiesByType:
		return ReportDataTypeEntity
	default:
		return ""
	}
}

// Valid reports whether the chart type belongs to the known set.
func (c ChartType) Valid() bool {
	for _, known := range AllChartTypes {
		if c == known {
			return true
		}
	}
	return false
}

// EntitySnapshot is one catalog entity's quality attributes at extraction
// time. Snapshots are ephemeral; only the derived report rows are persisted.
type EntitySnapshot struct {
	EntityFQN      string
	EntityType     string
	HasDescription bool
	HasOwner       bool
	Timestamp      time.Time
}

// ReportRow is one persisted analytic fact: a single observation for one
// entity, one chart type, one ingestion day.
type ReportRow struct {
	ID         string    `json:"id"`
	ChartType  ChartType `json:"chartType"`
	Timestamp  int64     `json:"timestamp"` // epoch millis, UTC
	EntityType string    `json:"entityType"`
	EntityFQN  string    `json:"entityFqn"`
	// Value is the chart-specific observation for this entity: 1 or 0 for
	// completeness charts (has/lacks the attribute), 1 for count charts.
	Value float64 `json:"value"`
}

// reportRowNamespace seeds deterministic row ids. Never change this value:
// re-runs must derive the same ids to overwrite prior rows.
var reportRowNamespace = uuid.MustParse("9f2c1a36-7b44-4e5a-9d7e-3c5f1d2b8a60")

// DeriveRowID returns the deterministic document id for an observation.
// The id is a pure function of (entityFQN, ingestion day, chart type), so
// re-running the pipeline within the same UTC day overwrites instead of
// duplicating.
func DeriveRowID(entityFQN string, ts time.Time, chart ChartType) string {
	day := ts.UTC().Format("2006-01-02")
	return uuid.NewSHA1(reportRowNamespace, []byte(entityFQN+"/"+day+"/"+string(chart))).String()
}

// EpochMillis converts a time to UTC epoch milliseconds.
func EpochMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
