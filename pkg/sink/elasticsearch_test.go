package sink_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/sink"
)

// fakeES records the Elasticsearch API calls the sink makes and serves
// canned responses.
type fakeES struct {
	mu       sync.Mutex
	requests []recordedRequest

	indexExists  bool
	bulkResponse string
	searchStatus int
	searchBody   string

	// searchPages, when set, serves one canned body per search request in
	// order, overriding searchBody.
	searchPages []string
	searchCalls int
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func (f *fakeES) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   string(body),
		})
		f.mu.Unlock()

		// The client refuses to talk to servers that do not identify as
		// Elasticsearch.
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodHead:
			if f.indexExists {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.URL.Path == "/_bulk":
			resp := f.bulkResponse
			if resp == "" {
				resp = `{"took":1,"errors":false,"items":[]}`
			}
			io.WriteString(w, resp)
		case strings.HasSuffix(r.URL.Path, "/_search"):
			status := f.searchStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			body := f.searchBody
			f.mu.Lock()
			if f.searchCalls < len(f.searchPages) {
				body = f.searchPages[f.searchCalls]
			}
			f.searchCalls++
			f.mu.Unlock()
			if body == "" {
				body = `{"hits":{"hits":[]}}`
			}
			io.WriteString(w, body)
		default:
			io.WriteString(w, `{"acknowledged":true}`)
		}
	})
}

func (f *fakeES) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newESSink(t *testing.T, fake *fakeES) *sink.ElasticsearchSink {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	s, err := sink.NewElasticsearchSink([]string{server.URL}, "", "", zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestElasticsearchEnsureIndexCreatesWhenMissing(t *testing.T) {
	fake := &fakeES{indexExists: false}
	s := newESSink(t, fake)

	require.NoError(t, s.EnsureIndex(context.Background(), models.ReportDataTypeEntity, false))

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodHead, reqs[0].Method)
	assert.Equal(t, "/entity_report_data_index", reqs[0].Path)
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Equal(t, "/entity_report_data_index", reqs[1].Path)
}

func TestElasticsearchEnsureIndexSkipsExisting(t *testing.T) {
	fake := &fakeES{indexExists: true}
	s := newESSink(t, fake)

	require.NoError(t, s.EnsureIndex(context.Background(), models.ReportDataTypeEntity, false))
	require.Len(t, fake.recorded(), 1, "existing index must not be touched")
}

func TestElasticsearchEnsureIndexRecreate(t *testing.T) {
	fake := &fakeES{}
	s := newESSink(t, fake)

	require.NoError(t, s.EnsureIndex(context.Background(), models.ReportDataTypeWebAnalyticEntityView, true))

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/web_analytic_entity_view_report_data", reqs[0].Path)
	assert.Contains(t, reqs[0].Query, "ignore_unavailable=true")
	assert.Equal(t, http.MethodPut, reqs[1].Method)
}

func TestElasticsearchUpsertBulkPayload(t *testing.T) {
	fake := &fakeES{}
	s := newESSink(t, fake)

	ts := time.Date(2024, 3, 14, 2, 0, 0, 0, time.UTC)
	rows := []models.ReportRow{
		{
			ID:         models.DeriveRowID("svc.db.schema.orders", ts, models.ChartTypeOwnerByType),
			ChartType:  models.ChartTypeOwnerByType,
			Timestamp:  models.EpochMillis(ts),
			EntityType: "table",
			EntityFQN:  "svc.db.schema.orders",
			Value:      1,
		},
	}

	require.NoError(t, s.Upsert(context.Background(), rows))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/_bulk", reqs[0].Path)
	assert.Contains(t, reqs[0].Query, "refresh=true")

	// Two NDJSON lines per row: action metadata, then the document.
	scanner := bufio.NewScanner(bytes.NewReader([]byte(reqs[0].Body)))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, "entity_report_data_index", meta["index"]["_index"])
	assert.Equal(t, rows[0].ID, meta["index"]["_id"])

	var doc models.ReportRow
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, rows[0], doc)
}

func TestElasticsearchUpsertEmptyBatch(t *testing.T) {
	fake := &fakeES{}
	s := newESSink(t, fake)

	require.NoError(t, s.Upsert(context.Background(), nil))
	assert.Empty(t, fake.recorded())
}

func TestElasticsearchUpsertItemFailure(t *testing.T) {
	fake := &fakeES{
		bulkResponse: `{"took":1,"errors":true,"items":[{"index":{"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}]}`,
	}
	s := newESSink(t, fake)

	err := s.Upsert(context.Background(), []models.ReportRow{{ID: "x", ChartType: models.ChartTypeOwnerByType}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestElasticsearchSearch(t *testing.T) {
	fake := &fakeES{
		searchBody: `{"hits":{"hits":[
			{"_source":{"id":"a","chartType":"PercentageOfEntitiesWithOwnerByType","timestamp":1710381600000,"entityType":"table","entityFqn":"svc.db.schema.orders","value":1}},
			{"_source":{"id":"b","chartType":"PercentageOfEntitiesWithOwnerByType","timestamp":1710381600000,"entityType":"table","entityFqn":"svc.db.schema.users","value":0}}
		]}}`,
	}
	s := newESSink(t, fake)

	rows, err := s.Search(context.Background(), "entity_report_data_index",
		models.ChartTypeOwnerByType, 1710381600000, 1710381600000)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "svc.db.schema.orders", rows[0].EntityFQN)
	assert.Equal(t, 1.0, rows[0].Value)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/entity_report_data_index/_search", reqs[0].Path)
	assert.Contains(t, reqs[0].Body, `"chartType.keyword":"PercentageOfEntitiesWithOwnerByType"`)
	assert.Contains(t, reqs[0].Body, `"gte":1710381600000`)
}

func TestElasticsearchSearchPaginates(t *testing.T) {
	// A full first page means more hits may follow; the sink must walk
	// subsequent pages with search_after instead of truncating.
	firstPage := make([]string, 0, 10000)
	for i := 0; i < 10000; i++ {
		id := fmt.Sprintf("row-%05d", i)
		firstPage = append(firstPage, fmt.Sprintf(
			`{"_source":{"id":%q,"chartType":"PercentageOfEntitiesWithOwnerByType","timestamp":1710381600000,"entityType":"table","entityFqn":"svc.db.schema.t%d","value":1},"sort":[1710381600000,%q]}`,
			id, i, id))
	}
	fake := &fakeES{
		searchPages: []string{
			`{"hits":{"hits":[` + strings.Join(firstPage, ",") + `]}}`,
			`{"hits":{"hits":[
				{"_source":{"id":"row-10000","chartType":"PercentageOfEntitiesWithOwnerByType","timestamp":1710381600001,"entityType":"table","entityFqn":"svc.db.schema.tail_a","value":0},"sort":[1710381600001,"row-10000"]},
				{"_source":{"id":"row-10001","chartType":"PercentageOfEntitiesWithOwnerByType","timestamp":1710381600001,"entityType":"table","entityFqn":"svc.db.schema.tail_b","value":1},"sort":[1710381600001,"row-10001"]}
			]}}`,
		},
	}
	s := newESSink(t, fake)

	rows, err := s.Search(context.Background(), "entity_report_data_index",
		models.ChartTypeOwnerByType, 1710381600000, 1710381600001)
	require.NoError(t, err)
	require.Len(t, rows, 10002, "every hit across pages must be returned")
	assert.Equal(t, "svc.db.schema.tail_b", rows[10001].EntityFQN)

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.NotContains(t, reqs[0].Body, "search_after")
	assert.Contains(t, reqs[0].Body, `"sort"`)
	assert.Contains(t, reqs[1].Body, `"search_after":[1710381600000,"row-09999"]`)
}

func TestElasticsearchSearchMissingIndex(t *testing.T) {
	fake := &fakeES{searchStatus: http.StatusNotFound, searchBody: `{"error":"index_not_found_exception"}`}
	s := newESSink(t, fake)

	rows, err := s.Search(context.Background(), "entity_report_data_index",
		models.ChartTypeOwnerByType, 0, 1)
	require.NoError(t, err, "missing index reads as an empty window")
	assert.Empty(t, rows)
}
