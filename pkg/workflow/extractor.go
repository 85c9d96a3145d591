package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/catalog"
	"github.com/metalake-io/insight-engine/pkg/models"
)

// extractPageSize is how many entities each catalog listing call fetches.
const extractPageSize = 100

// ExtractResult is one item of the extraction stream: a snapshot or the
// error that ended the stream.
type ExtractResult struct {
	Snapshot models.EntitySnapshot
	Err      error
}

// Extractor produces a lazy, finite, non-restartable stream of entity
// snapshots. The stream is closed when the source is exhausted, fails, or
// the context is cancelled.
type Extractor interface {
	Extract(ctx context.Context) <-chan ExtractResult
}

// entityCollections maps the catalog's collection routes to the entity type
// recorded on snapshots.
var entityCollections = []struct {
	route      string
	entityType string
}{
	{"tables", "table"},
	{"topics", "topic"},
	{"dashboards", "dashboard"},
	{"pipelines", "pipeline"},
}

// dataInsightExtractor walks every entity collection visible to the catalog
// client, page by page, so catalogs far larger than memory stream through.
type dataInsightExtractor struct {
	catalog catalog.Client
	logger  *zap.Logger
	// runTime stamps every snapshot of one execution, fixing the ingestion
	// day regardless of how long extraction takes.
	runTime time.Time
}

func newDataInsightExtractor(client catalog.Client, runTime time.Time, logger *zap.Logger) *dataInsightExtractor {
	return &dataInsightExtractor{
		catalog: client,
		logger:  logger.Named("extractor"),
		runTime: runTime,
	}
}

var _ Extractor = (*dataInsightExtractor)(nil)

func (e *dataInsightExtractor) Extract(ctx context.Context) <-chan ExtractResult {
	// Buffered so extraction overlaps with processing and sink flushes.
	out := make(chan ExtractResult, extractPageSize)

	go func() {
		defer close(out)

		for _, collection := range entityCollections {
			if err := e.extractCollection(ctx, collection.route, collection.entityType, out); err != nil {
				select {
				case out <- ExtractResult{Err: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return out
}

func (e *dataInsightExtractor) extractCollection(ctx context.Context, route, entityType string, out chan<- ExtractResult) error {
	after := ""
	for {
		page, err := e.catalog.ListEntities(ctx, route, extractPageSize, after)
		if err != nil {
			return fmt.Errorf("extract %s: %w", route, err)
		}

		for _, entity := range page.Entities {
			snapshot := models.EntitySnapshot{
				EntityFQN:      entity.FullyQualifiedName,
				EntityType:     entityType,
				HasDescription: entity.Description != "",
				HasOwner:       entity.Owner != nil,
				Timestamp:      e.runTime,
			}
			select {
			case out <- ExtractResult{Snapshot: snapshot}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if page.After == "" {
			e.logger.Debug("Collection exhausted",
				zap.String("collection", route),
				zap.Int("total", page.Total))
			return nil
		}
		after = page.After
	}
}
