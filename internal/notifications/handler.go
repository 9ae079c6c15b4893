package notifications

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"admissions-portal/portal-backend/internal/auth"
)

// Handler serves notification history
type Handler struct {
	service *Service
}

// NewHandler creates a new notifications handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers notification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/notifications", h.listRecent)
}

// listRecent handles GET /api/v1/notifications
func (h *Handler) listRecent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > DefaultHistorySize {
		limit = 50
	}

	c.JSON(http.StatusOK, gin.H{"events": h.service.Recent(UserID(c), limit)})
}

// UserID identifies the caller. Browsers cannot set headers on a websocket
// upgrade, so the user_id query parameter is accepted as well.
func UserID(c *gin.Context) string {
	if id := auth.CurrentUser(c); id != uuid.Nil {
		return id.String()
	}
	if id, err := uuid.Parse(c.Query("user_id")); err == nil {
		return id.String()
	}
	return ""
}
