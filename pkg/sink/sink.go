package sink

import (
	"context"

	"github.com/metalake-io/insight-engine/pkg/models"
)

// Sink persists report rows into named, queryable time-series indices.
//
// Upsert is idempotent: a row's derived id keys the document, so submitting
// the same row twice yields one logical document. EnsureIndex with
// recreate=true is destructive and must not run concurrently with Upsert on
// the same index; the orchestrator serializes recreation behind a lock.
type Sink interface {
	// EnsureIndex creates the index for a report data type if absent.
	// With recreate=true it destroys and recreates it, discarding prior
	// history for that data type.
	EnsureIndex(ctx context.Context, dataType models.ReportDataType, recreate bool) error

	// Upsert writes a batch of rows, keyed by their deterministic ids.
	// Rows may span chart types; each lands in its data type's index.
	Upsert(ctx context.Context, rows []models.ReportRow) error

	// Search returns rows of the given chart type in the index whose
	// timestamp falls in [startTs, endTs] (inclusive epoch millis).
	Search(ctx context.Context, indexName string, chart models.ChartType, startTs, endTs int64) ([]models.ReportRow, error)
}

// indexFor returns the sink index a row belongs to.
func indexFor(row models.ReportRow) string {
	return row.ChartType.ReportDataType().IndexName()
}
