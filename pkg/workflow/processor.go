package workflow

import (
	"github.com/metalake-io/insight-engine/pkg/models"
)

// Processor turns one entity snapshot into the report rows it contributes
// to each chart. Processing is pure and deterministic: the same snapshot
// always yields the same rows with the same ids.
type Processor interface {
	Process(snapshot models.EntitySnapshot) []models.ReportRow
}

// Only entity types that carry a description or an owner in the catalog
// participate in the completeness charts. Everything extracted counts
// toward totals.
var (
	describableTypes = map[string]bool{
		"table":     true,
		"topic":     true,
		"dashboard": true,
		"pipeline":  true,
	}
	ownableTypes = map[string]bool{
		"table":     true,
		"topic":     true,
		"dashboard": true,
		"pipeline":  true,
	}
)

// dataInsightProcessor emits one row per applicable chart. Rows carry a
// 0/1 value so the aggregation stage can sum them into fractions.
type dataInsightProcessor struct{}

func newDataInsightProcessor() *dataInsightProcessor { return &dataInsightProcessor{} }

var _ Processor = (*dataInsightProcessor)(nil)

func (p *dataInsightProcessor) Process(snapshot models.EntitySnapshot) []models.ReportRow {
	ts := models.EpochMillis(snapshot.Timestamp)
	rows := make([]models.ReportRow, 0, 3)

	row := func(chart models.ChartType, value float64) models.ReportRow {
		return models.ReportRow{
			ID:         models.DeriveRowID(snapshot.EntityFQN, snapshot.Timestamp, chart),
			ChartType:  chart,
			Timestamp:  ts,
			EntityType: snapshot.EntityType,
			EntityFQN:  snapshot.EntityFQN,
			Value:      value,
		}
	}

	boolValue := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	if describableTypes[snapshot.EntityType] {
		rows = append(rows, row(models.ChartTypeDescriptionByType, boolValue(snapshot.HasDescription)))
	}

	if ownableTypes[snapshot.EntityType] {
		rows = append(rows, row(models.ChartTypeOwnerByType, boolValue(snapshot.HasOwner)))
	}

	rows = append(rows, row(models.ChartTypeTotalEntitiesByType, 1))

	return rows
}
