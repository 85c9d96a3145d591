package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/database"
	"github.com/metalake-io/insight-engine/pkg/models"
)

// PostgresSink persists report rows into a single report_rows table,
// partitioned logically by index name. Schema lives in migrations/.
type PostgresSink struct {
	db     *database.DB
	logger *zap.Logger
}

// NewPostgresSink creates a sink over the given connection pool.
func NewPostgresSink(db *database.DB, logger *zap.Logger) *PostgresSink {
	return &PostgresSink{
		db:     db,
		logger: logger.Named("pg-sink"),
	}
}

var _ Sink = (*PostgresSink)(nil)

// EnsureIndex is a no-op for creation (migrations own the schema). With
// recreate=true it deletes every row in the data type's logical index,
// discarding prior history.
func (s *PostgresSink) EnsureIndex(ctx context.Context, dataType models.ReportDataType, recreate bool) error {
	index := dataType.IndexName()
	if index == "" {
		return fmt.Errorf("no index mapped for report data type %q", dataType)
	}

	if !recreate {
		return nil
	}

	s.logger.Warn("Recreating index, prior history will be discarded",
		zap.String("index", index))

	if _, err := s.db.Exec(ctx, `DELETE FROM report_rows WHERE index_name = $1`, index); err != nil {
		return fmt.Errorf("failed to recreate index %s: %w", index, err)
	}
	return nil
}

func (s *PostgresSink) Upsert(ctx context.Context, rows []models.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO report_rows (
			id, index_name, chart_type, ts, entity_type, entity_fqn, value
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			ts = EXCLUDED.ts,
			entity_type = EXCLUDED.entity_type,
			value = EXCLUDED.value`

	for _, row := range rows {
		if _, err := tx.Exec(ctx, query,
			row.ID, indexFor(row), string(row.ChartType), row.Timestamp,
			row.EntityType, row.EntityFQN, row.Value,
		); err != nil {
			return fmt.Errorf("failed to upsert report row %s: %w", row.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upsert of %d rows: %w", len(rows), err)
	}

	s.logger.Debug("Flushed rows to postgres", zap.Int("count", len(rows)))
	return nil
}

func (s *PostgresSink) Search(ctx context.Context, indexName string, chart models.ChartType, startTs, endTs int64) ([]models.ReportRow, error) {
	query := `
		SELECT id, chart_type, ts, entity_type, entity_fqn, value
		FROM report_rows
		WHERE index_name = $1 AND chart_type = $2 AND ts BETWEEN $3 AND $4
		ORDER BY ts, entity_fqn`

	pgRows, err := s.db.Query(ctx, query, indexName, string(chart), startTs, endTs)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", indexName, err)
	}
	defer pgRows.Close()

	rows := make([]models.ReportRow, 0)
	for pgRows.Next() {
		var row models.ReportRow
		var chartType string
		if err := pgRows.Scan(&row.ID, &chartType, &row.Timestamp, &row.EntityType, &row.EntityFQN, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		row.ChartType = models.ChartType(chartType)
		rows = append(rows, row)
	}
	if err := pgRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report rows: %w", err)
	}

	return rows, nil
}
