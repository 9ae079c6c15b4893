package practicum

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/auth"
	"admissions-portal/portal-backend/internal/retry"
)

// Handler handles practicum HTTP requests
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a practicum handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers practicum routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	practicum := router.Group("/practicum")
	{
		practicum.POST("/sites", h.createSite)
		practicum.GET("/sites", h.listSites)
		practicum.GET("/sites/:id", h.getSite)
		practicum.PATCH("/sites/:id", h.updateSite)
		practicum.GET("/sites/:id/availability", h.getAvailability)

		practicum.POST("/placements", h.createPlacement)
		practicum.GET("/placements", h.listPlacements)
		practicum.GET("/placements/:id", h.getPlacement)
		practicum.PATCH("/placements/:id/status", h.updatePlacementStatus)
	}
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, ErrSiteFull):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
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

func optionalUUID(c *gin.Context, key string) *uuid.UUID {
	if v := c.Query(key); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			return &id
		}
	}
	return nil
}

func (h *Handler) createSite(c *gin.Context) {
	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	site, err := h.service.CreateSite(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to create site", err)
		return
	}
	c.JSON(http.StatusCreated, site)
}

func (h *Handler) listSites(c *gin.Context) {
	sites, err := h.service.ListSites(c.Request.Context(), SiteFilter{
		Specialty:  c.Query("specialty"),
		ActiveOnly: c.Query("active") == "true",
	})
	if err != nil {
		h.respondError(c, "Failed to list sites", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites})
}

func (h *Handler) getSite(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	site, err := h.service.GetSite(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get site", err)
		return
	}
	c.JSON(http.StatusOK, site)
}

func (h *Handler) updateSite(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	site, err := h.service.UpdateSite(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, "Failed to update site", err)
		return
	}
	c.JSON(http.StatusOK, site)
}

func (h *Handler) getAvailability(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	availability, err := h.service.Availability(c.Request.Context(), id, c.Query("term"))
	if err != nil {
		h.respondError(c, "Failed to get site availability", err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (h *Handler) createPlacement(c *gin.Context) {
	var req CreatePlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	placement, err := h.service.CreatePlacement(c.Request.Context(), auth.CurrentUser(c), &req)
	if err != nil {
		h.respondError(c, "Failed to create placement", err)
		return
	}
	c.JSON(http.StatusCreated, placement)
}

func (h *Handler) listPlacements(c *gin.Context) {
	filter := PlacementFilter{
		SiteID:    optionalUUID(c, "site_id"),
		StudentID: optionalUUID(c, "student_id"),
		Term:      c.Query("term"),
	}
	if v := c.Query("status"); v != "" {
		status := PlacementStatus(v)
		filter.Status = &status
	}
	placements, err := h.service.ListPlacements(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "Failed to list placements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"placements": placements})
}

func (h *Handler) getPlacement(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	placement, err := h.service.GetPlacement(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get placement", err)
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (h *Handler) updatePlacementStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		Status PlacementStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	placement, err := h.service.UpdatePlacementStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.respondError(c, "Failed to update placement", err)
		return
	}
	c.JSON(http.StatusOK, placement)
}
