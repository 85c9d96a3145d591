package testhelpers

import (
	"context"
	"sync"

	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/sink"
)

// MemorySink is an in-memory sink.Sink for unit tests. It mirrors the real
// sinks' contract: documents are keyed by row id, so upserts are idempotent.
type MemorySink struct {
	mu sync.RWMutex

	// indices maps index name → row id → row.
	indices map[string]map[string]models.ReportRow

	// Recreated records every index recreation, in order.
	Recreated []string
	// UpsertBatches counts Upsert calls with at least one row.
	UpsertBatches int
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{indices: make(map[string]map[string]models.ReportRow)}
}

var _ sink.Sink = (*MemorySink)(nil)

func (s *MemorySink) EnsureIndex(_ context.Context, dataType models.ReportDataType, recreate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := dataType.IndexName()
	if recreate {
		s.indices[index] = make(map[string]models.ReportRow)
		s.Recreated = append(s.Recreated, index)
		return nil
	}
	if _, ok := s.indices[index]; !ok {
		s.indices[index] = make(map[string]models.ReportRow)
	}
	return nil
}

func (s *MemorySink) Upsert(_ context.Context, rows []models.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.UpsertBatches++
	for _, row := range rows {
		index := row.ChartType.ReportDataType().IndexName()
		if _, ok := s.indices[index]; !ok {
			s.indices[index] = make(map[string]models.ReportRow)
		}
		s.indices[index][row.ID] = row
	}
	return nil
}

func (s *MemorySink) Search(_ context.Context, indexName string, chart models.ChartType, startTs, endTs int64) ([]models.ReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.ReportRow
	for _, row := range s.indices[indexName] {
		if row.ChartType == chart && row.Timestamp >= startTs && row.Timestamp <= endTs {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Count returns the number of documents held by an index.
func (s *MemorySink) Count(indexName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indices[indexName])
}
