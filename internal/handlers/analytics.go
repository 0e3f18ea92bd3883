package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vipul43/analytics-bridge/internal/middleware"
	"github.com/vipul43/analytics-bridge/internal/models"
	"github.com/vipul43/analytics-bridge/internal/repository"
	"github.com/vipul43/analytics-bridge/internal/zoho"
)

// Exporter runs exports. *analytics.Service implements it.
type Exporter interface {
	ExecuteJob(ctx context.Context, view, config string) ([]models.FormattedRecord, error)
	ExecuteJobWithCriteria(ctx context.Context, view, field, value string) ([]models.FormattedRecord, error)
	ExecuteJobByView(ctx context.Context, view, field, value string) ([]models.FormattedRecord, error)
}

// RunLister reads export run history. *repository.ExportRunRepository implements it.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.ExportRun, error)
	GetByID(ctx context.Context, id string) (*models.ExportRun, error)
}

const defaultRunsLimit = 20

type executeJobRequest struct {
	View   string `json:"view" binding:"required"`
	Config string `json:"config"`
}

type fieldRequest struct {
	View       string `json:"view" binding:"required"`
	Field      string `json:"field" binding:"required"`
	FieldValue string `json:"fieldValue" binding:"required"`
}

type AnalyticsHandler struct {
	exporter Exporter
	runs     RunLister
	logger   zerolog.Logger
}

// NewAnalyticsHandler creates the handler. runs may be nil when history is disabled.
func NewAnalyticsHandler(exporter Exporter, runs RunLister, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		exporter: exporter,
		runs:     runs,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

func (h *AnalyticsHandler) ExecuteJob(c *gin.Context) {
	var req executeJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload: " + err.Error()})
		return
	}

	records, err := h.exporter.ExecuteJob(c.Request.Context(), req.View, req.Config)
	h.respond(c, records, err)
}

func (h *AnalyticsHandler) ExecuteJobWithCriteria(c *gin.Context) {
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload: " + err.Error()})
		return
	}

	records, err := h.exporter.ExecuteJobWithCriteria(c.Request.Context(), req.View, req.Field, req.FieldValue)
	h.respond(c, records, err)
}

func (h *AnalyticsHandler) ExecuteJobByView(c *gin.Context) {
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload: " + err.Error()})
		return
	}

	records, err := h.exporter.ExecuteJobByView(c.Request.Context(), req.View, req.Field, req.FieldValue)
	h.respond(c, records, err)
}

func (h *AnalyticsHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}

	limit := defaultRunsLimit
	if l := c.Query("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Failed to list export runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list export runs"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *AnalyticsHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.runs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("run_id", id).Msg("Failed to get export run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get export run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// HealthCheck returns a simple JSON status
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AnalyticsHandler) respond(c *gin.Context, records []models.FormattedRecord, err error) {
	if err != nil {
		status := StatusFor(err)
		logger := zerolog.Ctx(c.Request.Context())
		if logger.GetLevel() == zerolog.Disabled {
			logger = &h.logger
		}
		logger.Error().Err(err).Int("status", status).Msg("Export request failed")
		body := gin.H{"error": err.Error()}
		if id := middleware.RequestID(c.Request.Context()); id != "" {
			body["requestId"] = id
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, records)
}

// StatusFor maps an export error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, zoho.ErrInvalidView):
		return http.StatusBadRequest
	case errors.Is(err, zoho.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, zoho.ErrExportJobTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
