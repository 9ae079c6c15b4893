package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened
type EventType string

const (
	EventReportReady           EventType = "report.ready"
	EventReportFailed          EventType = "report.failed"
	EventCampaignLaunched      EventType = "campaign.launched"
	EventCampaignStatusChanged EventType = "campaign.status_changed"
	EventPlacementCreated      EventType = "placement.created"
	EventSessionRefreshFailed  EventType = "session.refresh_failed"
)

// Event is a dashboard notification. An empty Target reaches every user.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Target    string         `json:"target,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher delivers events to dashboard clients
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Broadcaster pushes events to live connections
type Broadcaster interface {
	Broadcast(event Event) error
}
