package practicum

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a site or placement does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation marks requests the service rejects
	ErrValidation = errors.New("validation failed")
	// ErrSiteFull is returned when a site has no open slots for a term
	ErrSiteFull = errors.New("site is at capacity")
)

// PlacementStatus is a placement's lifecycle state
type PlacementStatus string

const (
	PlacementPending   PlacementStatus = "pending"
	PlacementConfirmed PlacementStatus = "confirmed"
	PlacementActive    PlacementStatus = "active"
	PlacementCompleted PlacementStatus = "completed"
	PlacementCancelled PlacementStatus = "cancelled"
)

// OccupyingStatuses are the placement states that hold a site slot
var OccupyingStatuses = []PlacementStatus{PlacementPending, PlacementConfirmed, PlacementActive}

// Site is a clinical or field practicum site
type Site struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string         `gorm:"not null" json:"name"`
	Organization string         `json:"organization"`
	Specialty    string         `gorm:"index" json:"specialty"`
	City         string         `json:"city"`
	State        string         `json:"state"`
	Capacity     int            `gorm:"not null" json:"capacity"` // students per term
	ContactName  string         `json:"contact_name"`
	ContactEmail string         `json:"contact_email"`
	Active       bool           `gorm:"not null" json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName keeps practicum tables grouped
func (Site) TableName() string { return "practicum_sites" }

// Placement assigns a student to a site for a term
type Placement struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"site_id"`
	StudentID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"student_id"`
	Term          string          `gorm:"not null;index" json:"term"` // e.g. 2027SP
	Status        PlacementStatus `gorm:"not null" json:"status"`
	Preceptor     string          `json:"preceptor,omitempty"`
	RequiredHours int             `json:"required_hours"`
	StartDate     *time.Time      `json:"start_date,omitempty"`
	EndDate       *time.Time      `json:"end_date,omitempty"`
	CreatedBy     uuid.UUID       `gorm:"type:uuid" json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Site          *Site           `gorm:"foreignKey:SiteID" json:"site,omitempty"`
}

// TableName keeps practicum tables grouped
func (Placement) TableName() string { return "practicum_placements" }

// Requests

type CreateSiteRequest struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Specialty    string `json:"specialty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Capacity     int    `json:"capacity"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
}

type UpdateSiteRequest struct {
	Name         *string `json:"name,omitempty"`
	Specialty    *string `json:"specialty,omitempty"`
	Capacity     *int    `json:"capacity,omitempty"`
	ContactName  *string `json:"contact_name,omitempty"`
	ContactEmail *string `json:"contact_email,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

type CreatePlacementRequest struct {
	SiteID        uuid.UUID  `json:"site_id"`
	StudentID     uuid.UUID  `json:"student_id"`
	Term          string     `json:"term"`
	Preceptor     string     `json:"preceptor,omitempty"`
	RequiredHours int        `json:"required_hours"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
}

// SiteFilter narrows site listings
type SiteFilter struct {
	Specialty  string
	ActiveOnly bool
}

// PlacementFilter narrows placement listings
type PlacementFilter struct {
	SiteID    *uuid.UUID
	StudentID *uuid.UUID
	Term      string
	Status    *PlacementStatus
}

// SiteAvailability is a site's remaining capacity for a term
type SiteAvailability struct {
	SiteID   uuid.UUID `json:"site_id"`
	Term     string    `json:"term"`
	Capacity int       `json:"capacity"`
	Occupied int64     `json:"occupied"`
	Open     int64     `json:"open"`
}
