package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/models"
)

// searchPageSize bounds a single search page. Windows larger than one page
// are walked with search_after so no hit is dropped.
const searchPageSize = 10000

// ElasticsearchSink writes report rows into Elasticsearch indices, one index
// per report data type.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	logger *zap.Logger
}

// NewElasticsearchSink creates a sink against the given Elasticsearch nodes.
func NewElasticsearchSink(addresses []string, username, password string, logger *zap.Logger) (*ElasticsearchSink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchSink{
		client: client,
		logger: logger.Named("es-sink"),
	}, nil
}

var _ Sink = (*ElasticsearchSink)(nil)

func (s *ElasticsearchSink) EnsureIndex(ctx context.Context, dataType models.ReportDataType, recreate bool) error {
	index := dataType.IndexName()
	if index == "" {
		return fmt.Errorf("no index mapped for report data type %q", dataType)
	}

	if recreate {
		s.logger.Warn("Recreating index, prior history will be discarded",
			zap.String("index", index))
		res, err := s.client.Indices.Delete(
			[]string{index},
			s.client.Indices.Delete.WithContext(ctx),
			s.client.Indices.Delete.WithIgnoreUnavailable(true),
		)
		if err != nil {
			return fmt.Errorf("delete index %s: %v: %w", index, err, apperrors.ErrTransport)
		}
		if err := closeAndCheck(res); err != nil {
			return fmt.Errorf("delete index %s: %w", index, err)
		}
	} else {
		res, err := s.client.Indices.Exists(
			[]string{index},
			s.client.Indices.Exists.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("check index %s: %v: %w", index, err, apperrors.ErrTransport)
		}
		exists := res.StatusCode == http.StatusOK
		res.Body.Close()
		if exists {
			return nil
		}
	}

	res, err := s.client.Indices.Create(
		index,
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %v: %w", index, err, apperrors.ErrTransport)
	}
	if err := closeAndCheck(res); err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}

	s.logger.Info("Index ready", zap.String("index", index), zap.Bool("recreated", recreate))
	return nil
}

func (s *ElasticsearchSink) Upsert(ctx context.Context, rows []models.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, row := range rows {
		meta := map[string]map[string]string{
			"index": {"_index": indexFor(row), "_id": row.ID},
		}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(row); err != nil {
			return fmt.Errorf("encode report row %s: %w", row.ID, err)
		}
	}

	// Refresh after each bulk so rows written in this run are observable by
	// an immediate aggregation query.
	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk upsert of %d rows: %v: %w", len(rows), err, apperrors.ErrTransport)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk upsert of %d rows: %s: %w", len(rows), res.Status(), apperrors.ErrTransport)
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Error *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, action := range item {
				if action.Error != nil {
					return fmt.Errorf("bulk item failed: %s: %s: %w",
						action.Error.Type, action.Error.Reason, apperrors.ErrTransport)
				}
			}
		}
	}

	s.logger.Debug("Flushed rows to elasticsearch", zap.Int("count", len(rows)))
	return nil
}

func (s *ElasticsearchSink) Search(ctx context.Context, indexName string, chart models.ChartType, startTs, endTs int64) ([]models.ReportRow, error) {
	var (
		rows        []models.ReportRow
		searchAfter []json.RawMessage
	)

	for {
		hits, err := s.searchPage(ctx, indexName, chart, startTs, endTs, searchAfter)
		if err != nil {
			return nil, err
		}
		if hits == nil {
			// Missing index reads as an empty window, not an error.
			return rows, nil
		}

		for _, hit := range hits {
			rows = append(rows, hit.Source)
		}
		if len(hits) < searchPageSize {
			return rows, nil
		}
		searchAfter = hits[len(hits)-1].Sort
	}
}

type searchHit struct {
	Source models.ReportRow  `json:"_source"`
	Sort   []json.RawMessage `json:"sort"`
}

// searchPage fetches one page of the window. A nil slice with a nil error
// means the index does not exist.
func (s *ElasticsearchSink) searchPage(ctx context.Context, indexName string, chart models.ChartType, startTs, endTs int64, searchAfter []json.RawMessage) ([]searchHit, error) {
	query := map[string]any{
		"size": searchPageSize,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"chartType.keyword": string(chart)}},
					{"range": map[string]any{"timestamp": map[string]any{"gte": startTs, "lte": endTs}}},
				},
			},
		},
		// A total order over hits keeps search_after pagination stable.
		"sort": []map[string]any{
			{"timestamp": "asc"},
			{"id.keyword": "asc"},
		},
	}
	if searchAfter != nil {
		query["search_after"] = searchAfter
	}

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(query); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(indexName),
		s.client.Search.WithBody(&body),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %v: %w", indexName, err, apperrors.ErrTransport)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s: %w", indexName, res.Status(), apperrors.ErrTransport)
	}

	var searchResp struct {
		Hits struct {
			Hits []searchHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if searchResp.Hits.Hits == nil {
		return []searchHit{}, nil
	}
	return searchResp.Hits.Hits, nil
}

// closeAndCheck drains and closes an esapi response, surfacing error statuses.
func closeAndCheck(res *esapi.Response) error {
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s: %s: %w", res.Status(), string(body), apperrors.ErrTransport)
	}
	io.Copy(io.Discard, res.Body)
	return nil
}
