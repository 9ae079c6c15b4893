package campaigns

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/auth"
	"admissions-portal/portal-backend/internal/retry"
)

// Handler handles campaign HTTP requests
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a campaign handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers campaign routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	campaigns := router.Group("/campaigns")
	{
		campaigns.POST("", h.createCampaign)
		campaigns.GET("", h.listCampaigns)
		campaigns.GET("/:id", h.getCampaign)
		campaigns.PATCH("/:id", h.updateCampaign)
		campaigns.DELETE("/:id", h.deleteCampaign)
		campaigns.POST("/:id/launch", h.launchCampaign)
		campaigns.GET("/:id/history", h.getHistory)

		campaigns.POST("/templates", h.createTemplate)
		campaigns.GET("/templates", h.listTemplates)
		campaigns.GET("/templates/:id", h.getTemplate)
		campaigns.DELETE("/templates/:id", h.deleteTemplate)
	}
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, retry.ErrRetriesExhausted):
		h.logger.Warn(msg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data temporarily unavailable, please retry"})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// createCampaign handles POST /api/v1/campaigns
func (h *Handler) createCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := h.service.CreateCampaign(c.Request.Context(), auth.CurrentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to create campaign", err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// listCampaigns handles GET /api/v1/campaigns
func (h *Handler) listCampaigns(c *gin.Context) {
	filter := Filter{}
	if v := c.Query("status"); v != "" {
		status := Status(v)
		filter.Status = &status
	}
	if v := c.Query("channel"); v != "" {
		channel := Channel(v)
		filter.Channel = &channel
	}
	if v := c.Query("created_by"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			filter.CreatedBy = &id
		}
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.service.ListCampaigns(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "Failed to list campaigns", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// getCampaign handles GET /api/v1/campaigns/:id
func (h *Handler) getCampaign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	campaign, err := h.service.GetCampaign(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get campaign", err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// updateCampaign handles PATCH /api/v1/campaigns/:id
func (h *Handler) updateCampaign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := h.service.UpdateCampaign(c.Request.Context(), id, auth.CurrentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to update campaign", err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// deleteCampaign handles DELETE /api/v1/campaigns/:id
func (h *Handler) deleteCampaign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteCampaign(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to delete campaign", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// launchCampaign handles POST /api/v1/campaigns/:id/launch
func (h *Handler) launchCampaign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	campaign, result, err := h.service.Launch(c.Request.Context(), id, auth.CurrentUser(c))
	if err != nil {
		h.respondError(c, "Failed to launch campaign", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"campaign": campaign, "launch": result})
}

// getHistory handles GET /api/v1/campaigns/:id/history
func (h *Handler) getHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	history, err := h.service.GetStatusHistory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get campaign history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// createTemplate handles POST /api/v1/campaigns/templates
func (h *Handler) createTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	template, err := h.service.CreateTemplate(c.Request.Context(), auth.CurrentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to create template", err)
		return
	}
	c.JSON(http.StatusCreated, template)
}

// listTemplates handles GET /api/v1/campaigns/templates
func (h *Handler) listTemplates(c *gin.Context) {
	var channel *Channel
	if v := c.Query("channel"); v != "" {
		ch := Channel(v)
		channel = &ch
	}
	templates, err := h.service.ListTemplates(c.Request.Context(), channel)
	if err != nil {
		h.respondError(c, "Failed to list templates", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// getTemplate handles GET /api/v1/campaigns/templates/:id
func (h *Handler) getTemplate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	template, err := h.service.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get template", err)
		return
	}
	c.JSON(http.StatusOK, template)
}

// deleteTemplate handles DELETE /api/v1/campaigns/templates/:id
func (h *Handler) deleteTemplate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteTemplate(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to delete template", err)
		return
	}
	c.Status(http.StatusNoContent)
}
