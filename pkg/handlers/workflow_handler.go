package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/aggregate"
	"github.com/metalake-io/insight-engine/pkg/models"
	"github.com/metalake-io/insight-engine/pkg/workflow"
)

// Runner triggers one pipeline run out of band.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// WorkflowHandler exposes the pipeline over HTTP: manual runs, KPI
// listing, and aggregation queries.
type WorkflowHandler struct {
	workflow workflow.Workflow
	runner   Runner
	engine   *aggregate.Engine
	logger   *zap.Logger
}

// NewWorkflowHandler creates a WorkflowHandler. engine may be nil when the
// aggregation endpoint is not wanted.
func NewWorkflowHandler(wf workflow.Workflow, runner Runner, engine *aggregate.Engine, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		workflow: wf,
		runner:   runner,
		engine:   engine,
		logger:   logger,
	}
}

// RegisterRoutes registers the workflow handler's routes on the given mux.
func (h *WorkflowHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/workflow/run", h.Run)
	mux.HandleFunc("/api/v1/kpis", h.Kpis)
	if h.engine != nil {
		mux.HandleFunc("/api/v1/analytics/aggregate", h.Aggregate)
	}
}

// Run handles POST /api/v1/workflow/run. The run executes synchronously
// under the request context, so a dropped client cancels it.
func (h *WorkflowHandler) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	if err := h.runner.RunOnce(r.Context()); err != nil {
		h.logger.Error("Manual workflow run failed", zap.Error(err))
		status, code := statusFor(err)
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// Kpis handles GET /api/v1/kpis.
func (h *WorkflowHandler) Kpis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	kpis, err := h.workflow.Kpis(r.Context())
	if err != nil {
		h.logger.Error("Failed to list KPIs", zap.Error(err))
		status, code := statusFor(err)
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"data": kpis})
}

// Aggregate handles GET /api/v1/analytics/aggregate with query parameters
// chart, startTs and endTs (epoch millis).
func (h *WorkflowHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	chart := models.ChartType(r.URL.Query().Get("chart"))
	startTs, err := strconv.ParseInt(r.URL.Query().Get("startTs"), 10, 64)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "startTs must be epoch millis")
		return
	}
	endTs, err := strconv.ParseInt(r.URL.Query().Get("endTs"), 10, 64)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "endTs must be epoch millis")
		return
	}

	result, err := h.engine.Aggregate(r.Context(), startTs, endTs, chart, chart.ReportDataType().IndexName())
	if err != nil {
		h.logger.Error("Aggregation query failed",
			zap.String("chart", string(chart)),
			zap.Error(err))
		status, code := statusFor(err)
		_ = ErrorResponse(w, status, code, err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, result)
}
