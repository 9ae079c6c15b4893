package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultHistorySize is how many recent events the service keeps
const DefaultHistorySize = 200

// Service publishes events to live clients and keeps a short history for clients
// that connect later
type Service struct {
	broadcaster Broadcaster
	logger      *zap.Logger

	mu      sync.RWMutex
	history []Event
	next    int
	full    bool
}

// NewService creates a notification service
func NewService(broadcaster Broadcaster, historySize int, logger *zap.Logger) *Service {
	if historySize < 1 {
		historySize = DefaultHistorySize
	}
	return &Service{
		broadcaster: broadcaster,
		logger:      logger,
		history:     make([]Event, historySize),
	}
}

// Publish records event and pushes it to connected clients. A client-side delivery
// failure is logged; the event stays in history either way.
func (s *Service) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.history[s.next] = event
	s.next = (s.next + 1) % len(s.history)
	if s.next == 0 {
		s.full = true
	}
	s.mu.Unlock()

	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(event); err != nil {
			s.logger.Warn("Failed to broadcast event",
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
	return nil
}

// Recent returns up to limit events visible to userID, newest first
func (s *Service) Recent(userID string, limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.history)
	}

	var out []Event
	for i := 0; i < size && len(out) < limit; i++ {
		idx := (s.next - 1 - i + len(s.history)) % len(s.history)
		ev := s.history[idx]
		if ev.Target == "" || ev.Target == userID {
			out = append(out, ev)
		}
	}
	return out
}
