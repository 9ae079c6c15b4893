package campaigns

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a campaign or template does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation marks requests the service rejects
	ErrValidation = errors.New("validation failed")
)

// Status is a campaign's lifecycle state
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Channel is how a campaign reaches prospects
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a supported channel
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// Campaign is an outreach campaign to a segment of leads
type Campaign struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	Channel     Channel        `gorm:"not null" json:"channel"`
	Status      Status         `gorm:"not null;index" json:"status"`
	TemplateID  *uuid.UUID     `gorm:"type:uuid" json:"template_id,omitempty"`
	Audience    datatypes.JSON `json:"audience"` // lead segment filter
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	LaunchedAt  *time.Time     `json:"launched_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedBy   uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// MessageTemplate is reusable campaign copy
type MessageTemplate struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Channel   Channel        `gorm:"not null" json:"channel"`
	Subject   string         `json:"subject,omitempty"`
	Body      string         `gorm:"not null" json:"body"`
	CreatedBy uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// StatusHistory tracks campaign status changes
type StatusHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CampaignID uuid.UUID `gorm:"type:uuid;not null;index" json:"campaign_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `gorm:"not null" json:"to_status"`
	ChangedBy  uuid.UUID `gorm:"type:uuid;not null" json:"changed_by"`
	ChangedAt  time.Time `json:"changed_at"`
}

// TableName keeps history next to campaigns
func (StatusHistory) TableName() string { return "campaign_status_history" }

// Requests

type CreateCampaignRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Channel     Channel        `json:"channel"`
	TemplateID  *uuid.UUID     `json:"template_id,omitempty"`
	Audience    datatypes.JSON `json:"audience,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
}

type UpdateCampaignRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	TemplateID  *uuid.UUID     `json:"template_id,omitempty"`
	Audience    datatypes.JSON `json:"audience,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	Status      *Status        `json:"status,omitempty"`
}

type CreateTemplateRequest struct {
	Name    string  `json:"name"`
	Channel Channel `json:"channel"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
}

// Filter narrows campaign listings
type Filter struct {
	Status    *Status
	Channel   *Channel
	CreatedBy *uuid.UUID
	Limit     int
	Offset    int
}
