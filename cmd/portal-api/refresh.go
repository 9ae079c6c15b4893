package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/notifications"
)

type sessionState interface {
	RefreshToken() string
	ExpiresWithin(window time.Duration) bool
}

type sessionRefresher interface {
	Refresh(ctx context.Context) bool
}

type eventPublisher interface {
	Publish(ctx context.Context, event notifications.Event) error
}

// refreshSessionJob is the cron body that refreshes the service session
// before it expires and tells connected staff when that fails.
func refreshSessionJob(ctx context.Context, store sessionState, coordinator sessionRefresher,
	publisher eventPublisher, margin time.Duration, logger *zap.Logger) func() {
	return func() {
		// nothing to refresh before the first sign-in
		if store.RefreshToken() == "" || !store.ExpiresWithin(margin) {
			return
		}
		if coordinator.Refresh(ctx) {
			return
		}
		logger.Warn("Pre-emptive session refresh failed")
		if err := publisher.Publish(ctx, notifications.Event{
			Type:    notifications.EventSessionRefreshFailed,
			Title:   "Backend session refresh failed",
			Message: "Data requests will fail until the service account signs in again",
		}); err != nil {
			logger.Warn("Failed to publish refresh failure", zap.Error(err))
		}
	}
}
