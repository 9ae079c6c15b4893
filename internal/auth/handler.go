package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/session"
)

// SessionStore is the read side of the shared session
type SessionStore interface {
	Current() (session.Session, error)
	Valid() bool
}

// Refresher forces a coordinated session refresh
type Refresher interface {
	Refresh(ctx context.Context) bool
	Stats() session.Stats
}

// SessionResponse describes the backend session without exposing its tokens
type SessionResponse struct {
	Valid       bool          `json:"valid"`
	UserID      string        `json:"user_id,omitempty"`
	Email       string        `json:"email,omitempty"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	ExpiresIn   int64         `json:"expires_in_seconds,omitempty"`
	Coordinator session.Stats `json:"coordinator"`
}

// Handler exposes the service session to operators
type Handler struct {
	store       SessionStore
	coordinator Refresher
	logger      *zap.Logger
	now         func() time.Time
}

// NewHandler creates a session handler
func NewHandler(store SessionStore, coordinator Refresher, logger *zap.Logger) *Handler {
	return &Handler{
		store:       store,
		coordinator: coordinator,
		logger:      logger,
		now:         time.Now,
	}
}

// RegisterRoutes registers auth routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/auth")
	{
		group.GET("/session", h.GetSession)
		group.POST("/refresh", h.Refresh)
	}
}

// GetSession handles GET /auth/session
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.describe())
}

// Refresh handles POST /auth/refresh. Concurrent calls share one refresh.
func (h *Handler) Refresh(c *gin.Context) {
	if !h.coordinator.Refresh(c.Request.Context()) {
		h.logger.Warn("Manual session refresh failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "session refresh failed"})
		return
	}
	c.JSON(http.StatusOK, h.describe())
}

func (h *Handler) describe() SessionResponse {
	resp := SessionResponse{
		Valid:       h.store.Valid(),
		Coordinator: h.coordinator.Stats(),
	}
	current, err := h.store.Current()
	if err != nil {
		return resp
	}
	resp.UserID = current.UserID
	resp.Email = current.Email
	if !current.ExpiresAt.IsZero() {
		expiresAt := current.ExpiresAt
		resp.ExpiresAt = &expiresAt
		if left := expiresAt.Sub(h.now()); left > 0 {
			resp.ExpiresIn = int64(left.Seconds())
		}
	}
	return resp
}

// =====================================================
// Staff identity
// =====================================================

// UserIDKey is the gin context key holding the acting staff member's id
const UserIDKey = "user_id"

// Identify reads the staff id forwarded by the gateway in X-User-ID and stores
// it in the request context. Requests without one continue anonymously.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("X-User-ID"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				c.Set(UserIDKey, id)
			}
		}
		c.Next()
	}
}

// CurrentUser returns the acting staff member's id, or uuid.Nil
func CurrentUser(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	if raw := c.GetHeader("X-User-ID"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
	}
	return uuid.Nil
}
