package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/session"
)

type stubCoordinator struct {
	ok    bool
	calls int
	stats session.Stats
}

func (s *stubCoordinator) Refresh(context.Context) bool {
	s.calls++
	if s.ok {
		s.stats.Refreshes++
	} else {
		s.stats.Failures++
	}
	return s.ok
}

func (s *stubCoordinator) Stats() session.Stats { return s.stats }

func setupRouter(store SessionStore, coord Refresher, now time.Time) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, coord, zap.NewNop())
	h.now = func() time.Time { return now }

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestGetSession(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := session.NewStore()
	store.Set(&session.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    now.Add(10 * time.Minute),
		UserID:       "svc-admissions",
		Email:        "svc@example.edu",
	})
	r := setupRouter(store, &stubCoordinator{ok: true}, now)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.NotContains(t, w.Body.String(), "access")
	assert.NotContains(t, w.Body.String(), "refresh_token")

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "svc@example.edu", resp.Email)
	assert.Equal(t, int64(600), resp.ExpiresIn)
}

func TestGetSession_NoSession(t *testing.T) {
	r := setupRouter(session.NewStore(), &stubCoordinator{}, time.Now())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Nil(t, resp.ExpiresAt)
}

func TestRefresh(t *testing.T) {
	coord := &stubCoordinator{ok: true}
	r := setupRouter(session.NewStore(), coord, time.Now())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, coord.calls)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Coordinator.Refreshes)

	coord.ok = false
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestIdentify(t *testing.T) {
	gin.SetMode(gin.TestMode)
	staff := uuid.New()

	r := gin.New()
	r.Use(Identify())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).String())
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", staff.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, staff.String(), w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, uuid.Nil.String(), w.Body.String())
}
