package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingBroadcaster struct {
	events []Event
	err    error
}

func (b *recordingBroadcaster) Broadcast(event Event) error {
	b.events = append(b.events, event)
	return b.err
}

func titles(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Title
	}
	return out
}

func TestPublish_FillsIDAndTimestamp(t *testing.T) {
	b := &recordingBroadcaster{}
	s := NewService(b, 10, zap.NewNop())

	require.NoError(t, s.Publish(context.Background(), Event{Type: EventReportReady, Title: "ready"}))

	require.Len(t, b.events, 1)
	assert.NotEqual(t, uuid.Nil, b.events[0].ID)
	assert.False(t, b.events[0].Timestamp.IsZero())
}

func TestPublish_BroadcastFailureKeepsHistory(t *testing.T) {
	s := NewService(&recordingBroadcaster{err: errors.New("hub closed")}, 10, zap.NewNop())

	require.NoError(t, s.Publish(context.Background(), Event{Title: "kept"}))
	assert.Equal(t, []string{"kept"}, titles(s.Recent("", 10)))
}

func TestPublish_CancelledContext(t *testing.T) {
	b := &recordingBroadcaster{}
	s := NewService(b, 10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Publish(ctx, Event{Title: "dropped"}), context.Canceled)
	assert.Empty(t, b.events)
	assert.Empty(t, s.Recent("", 10))
}

func TestRecent_NewestFirstAndWraps(t *testing.T) {
	s := NewService(nil, 3, zap.NewNop())
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Publish(context.Background(), Event{Title: fmt.Sprintf("e%d", i)}))
	}

	assert.Equal(t, []string{"e5", "e4", "e3"}, titles(s.Recent("", 10)))
	assert.Equal(t, []string{"e5", "e4"}, titles(s.Recent("", 2)))
}

func TestRecent_FiltersByTarget(t *testing.T) {
	s := NewService(nil, 10, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Publish(ctx, Event{Title: "everyone"}))
	require.NoError(t, s.Publish(ctx, Event{Title: "for alice", Target: "alice"}))
	require.NoError(t, s.Publish(ctx, Event{Title: "for bob", Target: "bob"}))

	assert.Equal(t, []string{"for alice", "everyone"}, titles(s.Recent("alice", 10)))
	assert.Equal(t, []string{"everyone"}, titles(s.Recent("", 10)))
}

func TestNewService_DefaultHistorySize(t *testing.T) {
	s := NewService(nil, 0, zap.NewNop())
	assert.Len(t, s.history, DefaultHistorySize)
}

func TestHandler_ListRecent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewService(nil, 10, zap.NewNop())
	userID := uuid.New()
	ctx := context.Background()
	require.NoError(t, s.Publish(ctx, Event{Title: "broadcast"}))
	require.NoError(t, s.Publish(ctx, Event{Title: "mine", Target: userID.String()}))
	require.NoError(t, s.Publish(ctx, Event{Title: "theirs", Target: uuid.NewString()}))

	router := gin.New()
	NewHandler(s).RegisterRoutes(router.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=5", nil)
	req.Header.Set("X-User-ID", userID.String())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events []Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"mine", "broadcast"}, titles(body.Events))
}

func TestUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := uuid.New()

	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{name: "header", setup: func(r *http.Request) { r.Header.Set("X-User-ID", id.String()) }, want: id.String()},
		{name: "query", setup: func(r *http.Request) { r.URL.RawQuery = "user_id=" + id.String() }, want: id.String()},
		{name: "invalid query", setup: func(r *http.Request) { r.URL.RawQuery = "user_id=nobody" }, want: ""},
		{name: "anonymous", setup: func(r *http.Request) {}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(c.Request)
			assert.Equal(t, tt.want, UserID(c))
		})
	}
}
