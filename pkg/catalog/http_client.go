package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
	"github.com/metalake-io/insight-engine/pkg/logging"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/retry"
)

// HTTPClient talks to the catalog's REST API. Transient failures are retried
// with backoff here, so callers see at most one final error.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryCfg   *retry.Config
	logger     *zap.Logger
}

// NewHTTPClient creates a catalog client for the given server.
// baseURL includes the API root, e.g. "http://localhost:8585/api".
func NewHTTPClient(baseURL, token string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryCfg:   retry.DefaultConfig(),
		logger:     logger.Named("catalog"),
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) GetChartByName(ctx context.Context, name string) (*models.DataInsightChart, error) {
	var chart models.DataInsightChart
	path := "/v1/analytics/dataInsights/charts/name/" + url.PathEscape(name)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &chart); err != nil {
		return nil, fmt.Errorf("get chart %q: %w", name, err)
	}
	return &chart, nil
}

func (c *HTTPClient) ListEntities(ctx context.Context, entityType string, limit int, after string) (*EntityPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("fields", "owner,description")
	if after != "" {
		query.Set("after", after)
	}

	var page EntityPage
	path := "/v1/" + url.PathEscape(entityType)
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &page); err != nil {
		return nil, fmt.Errorf("list %s entities: %w", entityType, err)
	}
	return &page, nil
}

func (c *HTTPClient) CreateKpi(ctx context.Context, req *models.CreateKpiRequest) (*models.Kpi, error) {
	var kpi models.Kpi
	if err := c.doJSON(ctx, http.MethodPost, "/v1/kpi", nil, req, &kpi); err != nil {
		return nil, fmt.Errorf("create kpi %q: %w", req.Name, err)
	}
	return &kpi, nil
}

func (c *HTTPClient) ListKpis(ctx context.Context) ([]models.Kpi, error) {
	var resp struct {
		Data []models.Kpi `json:"data"`
	}
	query := url.Values{}
	query.Set("fields", "dataInsightChart,targetDefinition")
	if err := c.doJSON(ctx, http.MethodGet, "/v1/kpi", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("list kpis: %w", err)
	}
	return resp.Data, nil
}

func (c *HTTPClient) DeleteKpi(ctx context.Context, id uuid.UUID, hardDelete, recursive bool) error {
	query := url.Values{}
	query.Set("hardDelete", strconv.FormatBool(hardDelete))
	query.Set("recursive", strconv.FormatBool(recursive))
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/kpi/"+id.String(), query, nil, nil); err != nil {
		return fmt.Errorf("delete kpi %s: %w", id, err)
	}
	return nil
}

func (c *HTTPClient) AddKpiResult(ctx context.Context, fqn string, result *models.KpiResult) error {
	path := "/v1/kpi/" + url.PathEscape(fqn) + "/kpiResult"
	if err := c.doJSON(ctx, http.MethodPut, path, nil, result, nil); err != nil {
		return fmt.Errorf("add kpi result for %q: %w", fqn, err)
	}
	return nil
}

func (c *HTTPClient) GetKpiResult(ctx context.Context, fqn string, startTs, endTs int64) ([]models.KpiResult, error) {
	query := url.Values{}
	query.Set("startTs", strconv.FormatInt(startTs, 10))
	query.Set("endTs", strconv.FormatInt(endTs, 10))

	var resp struct {
		Data []models.KpiResult `json:"data"`
	}
	path := "/v1/kpi/" + url.PathEscape(fqn) + "/kpiResult"
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("get kpi results for %q: %w", fqn, err)
	}
	return resp.Data, nil
}

func (c *HTTPClient) GetDataInsightReportData(ctx context.Context, startTs, endTs int64, reportType models.ReportDataType) ([]models.ReportRow, error) {
	query := url.Values{}
	query.Set("startTs", strconv.FormatInt(startTs, 10))
	query.Set("endTs", strconv.FormatInt(endTs, 10))
	query.Set("reportDataType", string(reportType))

	var resp struct {
		Data []models.ReportRow `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/analytics/dataInsights/data", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("get report data %s: %w", reportType, err)
	}
	return resp.Data, nil
}

func (c *HTTPClient) GetAggregatedDataInsightResults(ctx context.Context, startTs, endTs int64, chart models.ChartType, indexName string) (*models.DataInsightChartResult, error) {
	query := url.Values{}
	query.Set("startTs", strconv.FormatInt(startTs, 10))
	query.Set("endTs", strconv.FormatInt(endTs, 10))
	query.Set("dataInsightChartName", string(chart))
	query.Set("dataReportIndex", indexName)

	var result models.DataInsightChartResult
	if err := c.doJSON(ctx, http.MethodGet, "/v1/analytics/dataInsights/charts/aggregate", query, nil, &result); err != nil {
		return nil, fmt.Errorf("aggregate chart %s: %w", chart, err)
	}
	return &result, nil
}

// doJSON performs one API call: marshals body, sets auth, retries transient
// failures, maps status codes onto the error taxonomy, decodes into out.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	return retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Catalog request failed",
				zap.String("method", method),
				zap.String("path", path),
				zap.String("error", logging.SanitizeError(err)))
			return fmt.Errorf("%s %s: %v: %w", method, path, err, apperrors.ErrTransport)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil {
				io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode %s %s response: %w", method, path, err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, apperrors.ErrNotFound)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%s %s: HTTP %d: %w", method, path, resp.StatusCode, apperrors.ErrTransport)
		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%s %s: HTTP %d: %s: %w",
				method, path, resp.StatusCode, logging.TruncateString(string(msg), 200), apperrors.ErrTransport)
		}
	})
}
