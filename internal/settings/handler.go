package settings

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/auth"
	"admissions-portal/portal-backend/internal/retry"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	settings := r.Group("/settings")
	settings.GET("/agents", h.ListPolicies)
	settings.GET("/agents/:agent", h.GetPolicy)
	settings.PUT("/agents/:agent", h.UpdatePolicy)
	settings.DELETE("/agents/:agent", h.ResetPolicy)
}

func (h *Handler) ListPolicies(c *gin.Context) {
	policies, err := h.service.ListPolicies(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list agent policies", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

func (h *Handler) GetPolicy(c *gin.Context) {
	policy, err := h.service.GetPolicy(c.Request.Context(), Agent(c.Param("agent")))
	if err != nil {
		h.respondError(c, "Failed to get agent policy", err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (h *Handler) UpdatePolicy(c *gin.Context) {
	var payload UpdatePolicyRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy, err := h.service.UpdatePolicy(c.Request.Context(), Agent(c.Param("agent")), auth.CurrentUser(c), &payload)
	if err != nil {
		h.respondError(c, "Failed to update agent policy", err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// ResetPolicy returns the default the agent falls back to
func (h *Handler) ResetPolicy(c *gin.Context) {
	policy, err := h.service.ResetPolicy(c.Request.Context(), Agent(c.Param("agent")))
	if err != nil {
		h.respondError(c, "Failed to reset agent policy", err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, retry.ErrRetriesExhausted):
		h.logger.Warn(msg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data temporarily unavailable, please retry"})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
