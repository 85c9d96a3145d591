package models

import (
	"github.com/google/uuid"
)

// MetricType defines how an achieved value is compared to a KPI target.
type MetricType string

const (
	// MetricTypePercentage compares fractions in [0,1]; met when achieved >= target.
	MetricTypePercentage MetricType = "PERCENTAGE"
	// MetricTypeNumber compares absolute values; met when achieved >= target.
	MetricTypeNumber MetricType = "NUMBER"
)

// EntityReference points at a catalog entity by id and type.
type EntityReference struct {
	ID                 uuid.UUID `json:"id"`
	Type               string    `json:"type"`
	Name               string    `json:"name,omitempty"`
	FullyQualifiedName string    `json:"fullyQualifiedName,omitempty"`
}

// KpiTarget carries one named numeric goal. At creation time Value is the
// goal; on a KpiResult it is the achieved value and TargetMet the verdict.
type KpiTarget struct {
	Name      string `json:"name"`
	Value     string `json:"value"` // string-encoded number, catalog convention
	TargetMet bool   `json:"targetMet,omitempty"`
}

// Kpi is a named target for a chart's metric over a time window.
type Kpi struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	FullyQualifiedName string          `json:"fullyQualifiedName,omitempty"`
	Description        string          `json:"description,omitempty"`
	DataInsightChart   EntityReference `json:"dataInsightChart"`
	StartDate          int64           `json:"startDate"` // epoch millis
	EndDate            int64           `json:"endDate"`   // epoch millis
	TargetDefinition   []KpiTarget     `json:"targetDefinition"`
	MetricType         MetricType      `json:"metricType"`
}

// CreateKpiRequest is the payload for registering a new KPI with the catalog.
type CreateKpiRequest struct {
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	DataInsightChart EntityReference `json:"dataInsightChart"`
	StartDate        int64           `json:"startDate"`
	EndDate          int64           `json:"endDate"`
	TargetDefinition []KpiTarget     `json:"targetDefinition"`
	MetricType       MetricType      `json:"metricType"`
}

// KpiResult is one evaluation of a KPI at a point in time. Results are
// append-only per timestamp and form a time series per KPI.
type KpiResult struct {
	Timestamp    int64       `json:"timestamp"` // epoch millis
	KpiFqn       string      `json:"kpiFqn"`
	TargetResult []KpiTarget `json:"targetResult"`
}

// DataInsightChart is the catalog's descriptor for a chart definition.
type DataInsightChart struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	FullyQualifiedName string    `json:"fullyQualifiedName,omitempty"`
	Description        string    `json:"description,omitempty"`
}
