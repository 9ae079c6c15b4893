package reports

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/auth"
	"admissions-portal/portal-backend/internal/reports/builder"
	"admissions-portal/portal-backend/internal/retry"
)

// Handler handles HTTP requests for reporting operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers reporting routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/reports")
	{
		// Report Builder endpoints
		reports.POST("/builder", h.createReport)
		reports.GET("", h.listReports)
		reports.GET("/:id", h.getReport)
		reports.PUT("/:id", h.updateReport)
		reports.DELETE("/:id", h.deleteReport)

		// Report Execution endpoints
		reports.POST("/run", h.runReport)
		reports.POST("/validate", h.validateReport)
		reports.POST("/:id/run", h.runSavedReport)
		reports.GET("/:id/export", h.exportReport)
		reports.GET("/:id/executions", h.listExecutions)

		// Schedule endpoints
		reports.POST("/schedules", h.createSchedule)
		reports.GET("/schedules", h.listSchedules)
		reports.GET("/schedules/:scheduleId", h.getSchedule)
		reports.DELETE("/schedules/:scheduleId", h.deleteSchedule)

		// Data source endpoints
		reports.GET("/datasets", h.getDataSources)
		reports.GET("/datasets/:name", h.getDataSource)
	}
}

// RespondError writes err with the status its kind maps to. Internal failures are
// logged and reported without detail.
func RespondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	var cfgErr *builder.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": cfgErr.Error(), "field": cfgErr.Field, "code": cfgErr.Code})
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, retry.ErrRetriesExhausted):
		logger.Warn(msg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data temporarily unavailable, please retry"})
	default:
		logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// =====================================================
// Report Builder Endpoints
// =====================================================

// createReport handles POST /api/v1/reports/builder
func (h *Handler) createReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.CreateReport(c.Request.Context(), auth.CurrentUser(c), &req)
	if err != nil {
		RespondError(c, h.logger, "Failed to create report", err)
		return
	}

	c.JSON(http.StatusCreated, report)
}

// listReports handles GET /api/v1/reports
func (h *Handler) listReports(c *gin.Context) {
	filters := &ReportFilters{
		Page:     getIntParam(c, "page", 1),
		PageSize: getIntParam(c, "page_size", 20),
		Search:   c.Query("search"),
	}

	if category := c.Query("category"); category != "" {
		cat := ReportCategory(category)
		filters.Category = &cat
	}
	if visibility := c.Query("visibility"); visibility != "" {
		vis := ReportVisibility(visibility)
		filters.Visibility = &vis
	}
	if c.Query("mine") == "true" {
		userID := auth.CurrentUser(c)
		filters.CreatedBy = &userID
	}

	response, err := h.service.ListReports(c.Request.Context(), filters)
	if err != nil {
		RespondError(c, h.logger, "Failed to list reports", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// getReport handles GET /api/v1/reports/:id
func (h *Handler) getReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	report, err := h.service.GetReport(c.Request.Context(), id)
	if err != nil {
		RespondError(c, h.logger, "Failed to get report", err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// updateReport handles PUT /api/v1/reports/:id
func (h *Handler) updateReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.UpdateReport(c.Request.Context(), id, &req)
	if err != nil {
		RespondError(c, h.logger, "Failed to update report", err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// deleteReport handles DELETE /api/v1/reports/:id
func (h *Handler) deleteReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteReport(c.Request.Context(), id); err != nil {
		RespondError(c, h.logger, "Failed to delete report", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// =====================================================
// Report Execution Endpoints
// =====================================================

// runReport handles POST /api/v1/reports/run
func (h *Handler) runReport(c *gin.Context) {
	var req RunReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, "Invalid report configuration", bindError(err))
		return
	}

	result, err := h.service.RunReport(c.Request.Context(), &req.Config)
	if err != nil {
		RespondError(c, h.logger, "Failed to run report", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// validateReport handles POST /api/v1/reports/validate
func (h *Handler) validateReport(c *gin.Context) {
	var req RunReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, "Invalid report configuration", bindError(err))
		return
	}

	c.JSON(http.StatusOK, h.service.ValidateConfig(&req.Config))
}

// runSavedReport handles POST /api/v1/reports/:id/run
func (h *Handler) runSavedReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.RunSavedReport(c.Request.Context(), id)
	if err != nil {
		RespondError(c, h.logger, "Failed to run report", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// exportReport handles GET /api/v1/reports/:id/export?format=csv|excel|pdf
func (h *Handler) exportReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	format := ExportFormat(c.DefaultQuery("format", string(ExportFormatCSV)))
	exported, err := h.service.ExportReport(c.Request.Context(), id, format)
	if err != nil {
		RespondError(c, h.logger, "Failed to export report", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exported.FileName))
	c.Data(http.StatusOK, exported.ContentType, exported.Data)
}

// listExecutions handles GET /api/v1/reports/:id/executions
func (h *Handler) listExecutions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	executions, err := h.service.ListExecutions(c.Request.Context(), id, getIntParam(c, "limit", 20))
	if err != nil {
		RespondError(c, h.logger, "Failed to list executions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"executions": executions})
}

// =====================================================
// Schedule Endpoints
// =====================================================

// createSchedule handles POST /api/v1/reports/schedules
func (h *Handler) createSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	schedule, err := h.service.CreateSchedule(c.Request.Context(), auth.CurrentUser(c), &req)
	if err != nil {
		RespondError(c, h.logger, "Failed to create schedule", err)
		return
	}

	c.JSON(http.StatusCreated, schedule)
}

// listSchedules handles GET /api/v1/reports/schedules
func (h *Handler) listSchedules(c *gin.Context) {
	var reportID *uuid.UUID
	if raw := c.Query("report_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
			return
		}
		reportID = &id
	}

	schedules, err := h.service.ListSchedules(c.Request.Context(), reportID, c.Query("active") == "true")
	if err != nil {
		RespondError(c, h.logger, "Failed to list schedules", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

// getSchedule handles GET /api/v1/reports/schedules/:scheduleId
func (h *Handler) getSchedule(c *gin.Context) {
	id, ok := parseID(c, "scheduleId")
	if !ok {
		return
	}

	schedule, err := h.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		RespondError(c, h.logger, "Failed to get schedule", err)
		return
	}

	c.JSON(http.StatusOK, schedule)
}

// deleteSchedule handles DELETE /api/v1/reports/schedules/:scheduleId
func (h *Handler) deleteSchedule(c *gin.Context) {
	id, ok := parseID(c, "scheduleId")
	if !ok {
		return
	}

	if err := h.service.DeleteSchedule(c.Request.Context(), id); err != nil {
		RespondError(c, h.logger, "Failed to delete schedule", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// =====================================================
// Data Source Endpoints
// =====================================================

// getDataSources handles GET /api/v1/reports/datasets
func (h *Handler) getDataSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data_sources": h.service.GetDataSources()})
}

// getDataSource handles GET /api/v1/reports/datasets/:name
func (h *Handler) getDataSource(c *gin.Context) {
	schema, err := h.service.GetDataSource(c.Param("name"))
	if err != nil {
		RespondError(c, h.logger, "Failed to get data source", err)
		return
	}

	c.JSON(http.StatusOK, schema)
}

// =====================================================
// Helper Methods
// =====================================================

// bindError keeps configuration decode errors typed so they map to 400
func bindError(err error) error {
	var cfgErr *builder.ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

// getIntParam gets an integer query parameter with a default value
func getIntParam(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
