package charts

import (
	"sort"

	"github.com/metalake-io/insight-engine/pkg/models"
)

// Aggregator computes a chart's aggregated data points from report rows.
// Rows handed to Aggregate are already filtered to the aggregator's chart
// type and the caller's time window.
type Aggregator interface {
	ChartType() models.ChartType
	Aggregate(rows []models.ReportRow) []models.ChartResult
}

// Registry maps chart types to their aggregation formulas. The set is closed:
// adding a chart means adding an Aggregator here, never touching the query
// engine's dispatch.
type Registry struct {
	aggregators map[models.ChartType]Aggregator
}

// NewRegistry returns a registry with every known chart registered.
func NewRegistry() *Registry {
	r := &Registry{aggregators: make(map[models.ChartType]Aggregator)}
	r.register(descriptionAggregator{})
	r.register(ownerAggregator{})
	r.register(totalEntitiesAggregator{})
	return r
}

func (r *Registry) register(agg Aggregator) {
	r.aggregators[agg.ChartType()] = agg
}

// Get returns the aggregator bound to the chart type.
func (r *Registry) Get(chart models.ChartType) (Aggregator, bool) {
	agg, ok := r.aggregators[chart]
	return agg, ok
}

// group is one entity type's bucket of rows.
type group struct {
	entityType string
	count      float64
	completed  float64
	lastTs     int64
}

// groupByEntityType buckets rows per entity type, summing row values and
// tracking the latest timestamp. Buckets come back sorted by entity type so
// aggregation output is reproducible.
func groupByEntityType(rows []models.ReportRow) []group {
	buckets := make(map[string]*group)
	for _, row := range rows {
		g, ok := buckets[row.EntityType]
		if !ok {
			g = &group{entityType: row.EntityType}
			buckets[row.EntityType] = g
		}
		g.count++
		g.completed += row.Value
		if row.Timestamp > g.lastTs {
			g.lastTs = row.Timestamp
		}
	}

	groups := make([]group, 0, len(buckets))
	for _, g := range buckets {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].entityType < groups[j].entityType })
	return groups
}

type descriptionAggregator struct{}

func (descriptionAggregator) ChartType() models.ChartType { return models.ChartTypeDescriptionByType }

func (descriptionAggregator) Aggregate(rows []models.ReportRow) []models.ChartResult {
	groups := groupByEntityType(rows)
	data := make([]models.ChartResult, 0, len(groups))
	for _, g := range groups {
		data = append(data, models.PercentageOfEntitiesWithDescriptionByType{
			Timestamp:                    g.lastTs,
			EntityType:                   g.entityType,
			EntityCount:                  g.count,
			CompletedDescription:         g.completed,
			CompletedDescriptionFraction: g.completed / g.count,
		})
	}
	return data
}

type ownerAggregator struct{}

func (ownerAggregator) ChartType() models.ChartType { return models.ChartTypeOwnerByType }

func (ownerAggregator) Aggregate(rows []models.ReportRow) []models.ChartResult {
	groups := groupByEntityType(rows)
	data := make([]models.ChartResult, 0, len(groups))
	for _, g := range groups {
		data = append(data, models.PercentageOfEntitiesWithOwnerByType{
			Timestamp:        g.lastTs,
			EntityType:       g.entityType,
			EntityCount:      g.count,
			HasOwner:         g.completed,
			HasOwnerFraction: g.completed / g.count,
		})
	}
	return data
}

type totalEntitiesAggregator struct{}

func (totalEntitiesAggregator) ChartType() models.ChartType {
	return models.ChartTypeTotalEntitiesByType
}

func (totalEntitiesAggregator) Aggregate(rows []models.ReportRow) []models.ChartResult {
	groups := groupByEntityType(rows)

	var total float64
	for _, g := range groups {
		total += g.count
	}

	data := make([]models.ChartResult, 0, len(groups))
	for _, g := range groups {
		data = append(data, models.TotalEntitiesByType{
			Timestamp:      g.lastTs,
			EntityType:     g.entityType,
			EntityCount:    g.count,
			EntityFraction: g.count / total,
		})
	}
	return data
}
