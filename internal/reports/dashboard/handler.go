package dashboard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxWidgets bounds a single dashboard request
const maxWidgets = 24

// Handler serves dashboard widgets
type Handler struct {
	aggregator *Aggregator
	logger     *zap.Logger
}

// NewHandler creates a new dashboard handler
func NewHandler(aggregator *Aggregator, logger *zap.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// RegisterRoutes registers dashboard routes under /reports
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	dashboard := router.Group("/reports/dashboard")
	{
		dashboard.GET("", h.getDashboard)
		dashboard.GET("/cache", h.getCacheStats)
	}
}

// getDashboard handles GET /api/v1/reports/dashboard?ids=<uuid>,<uuid>
func (h *Handler) getDashboard(c *gin.Context) {
	var ids []uuid.UUID
	for _, raw := range strings.Split(c.Query("ids"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID: " + raw})
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}
	if len(ids) > maxWidgets {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many widgets requested"})
		return
	}

	widgets, err := h.aggregator.Load(c.Request.Context(), ids)
	if err != nil {
		h.logger.Warn("Dashboard load cancelled", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dashboard request cancelled"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"widgets": widgets})
}

// getCacheStats handles GET /api/v1/reports/dashboard/cache
func (h *Handler) getCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.aggregator.CacheStats())
}
