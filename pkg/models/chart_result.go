package models

import (
	"encoding/json"
	"fmt"
)

// ChartResult is one aggregated data point for a chart. Each chart type has
// its own concrete result shape; callers must dispatch on ResultChartType
// rather than assuming a fixed field set.
type ChartResult interface {
	ResultChartType() ChartType
	// ResultTimestamp is the observation timestamp in epoch millis.
	ResultTimestamp() int64
	// ResultEntityType is the entity type this data point aggregates over.
	ResultEntityType() string
	// Metric returns the named numeric metric carried by this data point,
	// or false if the result does not carry it.
	Metric(name string) (float64, bool)
}

// PercentageOfEntitiesWithDescriptionByType aggregates description
// completeness for one entity type within a window.
type PercentageOfEntitiesWithDescriptionByType struct {
	Timestamp                    int64   `json:"timestamp"`
	EntityType                   string  `json:"entityType"`
	EntityCount                  float64 `json:"entityCount"`
	CompletedDescription         float64 `json:"completedDescription"`
	CompletedDescriptionFraction float64 `json:"completedDescriptionFraction"`
}

func (r PercentageOfEntitiesWithDescriptionByType) ResultChartType() ChartType {
	return ChartTypeDescriptionByType
}

func (r PercentageOfEntitiesWithDescriptionByType) ResultTimestamp() int64 { return r.Timestamp }

func (r PercentageOfEntitiesWithDescriptionByType) ResultEntityType() string { return r.EntityType }

func (r PercentageOfEntitiesWithDescriptionByType) Metric(name string) (float64, bool) {
	switch name {
	case "completedDescriptionFraction":
		return r.CompletedDescriptionFraction, true
	case "completedDescription":
		return r.CompletedDescription, true
	case "entityCount":
		return r.EntityCount, true
	default:
		return 0, false
	}
}

// PercentageOfEntitiesWithOwnerByType aggregates ownership completeness for
// one entity type within a window.
type PercentageOfEntitiesWithOwnerByType struct {
	Timestamp        int64   `json:"timestamp"`
	EntityType       string  `json:"entityType"`
	EntityCount      float64 `json:"entityCount"`
	HasOwner         float64 `json:"hasOwner"`
	HasOwnerFraction float64 `json:"hasOwnerFraction"`
}

func (r PercentageOfEntitiesWithOwnerByType) ResultChartType() ChartType {
	return ChartTypeOwnerByType
}

func (r PercentageOfEntitiesWithOwnerByType) ResultTimestamp() int64 { return r.Timestamp }

func (r PercentageOfEntitiesWithOwnerByType) ResultEntityType() string { return r.EntityType }

func (r PercentageOfEntitiesWithOwnerByType) Metric(name string) (float64, bool) {
	switch name {
	case "hasOwnerFraction":
		return r.HasOwnerFraction, true
	case "hasOwner":
		return r.HasOwner, true
	case "entityCount":
		return r.EntityCount, true
	default:
		return 0, false
	}
}

// TotalEntitiesByType counts entities of one type within a window.
type TotalEntitiesByType struct {
	Timestamp      int64   `json:"timestamp"`
	EntityType     string  `json:"entityType"`
	EntityCount    float64 `json:"entityCount"`
	EntityFraction float64 `json:"entityFraction"`
}

func (r TotalEntitiesByType) ResultChartType() ChartType { return ChartTypeTotalEntitiesByType }

func (r TotalEntitiesByType) ResultTimestamp() int64 { return r.Timestamp }

func (r TotalEntitiesByType) ResultEntityType() string { return r.EntityType }

func (r TotalEntitiesByType) Metric(name string) (float64, bool) {
	switch name {
	case "entityCount":
		return r.EntityCount, true
	case "entityFraction":
		return r.EntityFraction, true
	default:
		return 0, false
	}
}

// DataInsightChartResult is the aggregation engine's answer for one
// (chart type, index, window) query. Every element of Data is the concrete
// result type implied by ChartType.
type DataInsightChartResult struct {
	ChartType ChartType     `json:"chartType"`
	Data      []ChartResult `json:"data"`
}

// UnmarshalJSON decodes Data into the concrete result type named by the
// chartType tag.
func (r *DataInsightChartResult) UnmarshalJSON(b []byte) error {
	var raw struct {
		ChartType ChartType         `json:"chartType"`
		Data      []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	r.ChartType = raw.ChartType
	r.Data = make([]ChartResult, 0, len(raw.Data))

	for _, msg := range raw.Data {
		point, err := unmarshalChartResult(raw.ChartType, msg)
		if err != nil {
			return err
		}
		r.Data = append(r.Data, point)
	}

	return nil
}

func unmarshalChartResult(chart ChartType, msg json.RawMessage) (ChartResult, error) {
	switch chart {
	case ChartTypeDescriptionByType:
		var point PercentageOfEntitiesWithDescriptionByType
		if err := json.Unmarshal(msg, &point); err != nil {
			return nil, err
		}
		return point, nil
	case ChartTypeOwnerByType:
		var point PercentageOfEntitiesWithOwnerByType
		if err := json.Unmarshal(msg, &point); err != nil {
			return nil, err
		}
		return point, nil
	case ChartTypeTotalEntitiesByType:
		var point TotalEntitiesByType
		if err := json.Unmarshal(msg, &point); err != nil {
			return nil, err
		}
		return point, nil
	default:
		return nil, fmt.Errorf("unknown chart type %q", chart)
	}
}
