package practicum

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists practicum sites and placements
type Repository interface {
	CreateSite(ctx context.Context, site *Site) error
	GetSite(ctx context.Context, id uuid.UUID) (*Site, error)
	UpdateSite(ctx context.Context, site *Site) error
	ListSites(ctx context.Context, filter SiteFilter) ([]*Site, error)

	// CreatePlacementWithinCapacity inserts placement only if its site still has
	// an open slot for the term. The site row is locked for the check.
	CreatePlacementWithinCapacity(ctx context.Context, placement *Placement) error
	GetPlacement(ctx context.Context, id uuid.UUID) (*Placement, error)
	UpdatePlacement(ctx context.Context, placement *Placement) error
	ListPlacements(ctx context.Context, filter PlacementFilter) ([]*Placement, error)
	CountOccupied(ctx context.Context, siteID uuid.UUID, term string) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a Postgres-backed practicum repository
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepository) CreateSite(ctx context.Context, site *Site) error {
	if err := r.db.WithContext(ctx).Create(site).Error; err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}
	return nil
}

func (r *gormRepository) GetSite(ctx context.Context, id uuid.UUID) (*Site, error) {
	var site Site
	if err := r.db.WithContext(ctx).First(&site, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &site, nil
}

func (r *gormRepository) UpdateSite(ctx context.Context, site *Site) error {
	return r.db.WithContext(ctx).Save(site).Error
}

func (r *gormRepository) ListSites(ctx context.Context, filter SiteFilter) ([]*Site, error) {
	query := r.db.WithContext(ctx).Order("name ASC")
	if filter.Specialty != "" {
		query = query.Where("specialty = ?", filter.Specialty)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	var sites []*Site
	if err := query.Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

func (r *gormRepository) CreatePlacementWithinCapacity(ctx context.Context, placement *Placement) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var site Site
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&site, "id = ?", placement.SiteID).Error; err != nil {
			return notFound(err)
		}

		occupied, err := countOccupied(tx, placement.SiteID, placement.Term)
		if err != nil {
			return err
		}
		if occupied >= int64(site.Capacity) {
			return ErrSiteFull
		}

		if err := tx.Create(placement).Error; err != nil {
			return fmt.Errorf("failed to create placement: %w", err)
		}
		return nil
	})
}

func (r *gormRepository) GetPlacement(ctx context.Context, id uuid.UUID) (*Placement, error) {
	var placement Placement
	if err := r.db.WithContext(ctx).Preload("Site").First(&placement, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &placement, nil
}

func (r *gormRepository) UpdatePlacement(ctx context.Context, placement *Placement) error {
	return r.db.WithContext(ctx).Omit("Site").Save(placement).Error
}

func (r *gormRepository) ListPlacements(ctx context.Context, filter PlacementFilter) ([]*Placement, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.SiteID != nil {
		query = query.Where("site_id = ?", *filter.SiteID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.Term != "" {
		query = query.Where("term = ?", filter.Term)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	var placements []*Placement
	if err := query.Find(&placements).Error; err != nil {
		return nil, fmt.Errorf("failed to list placements: %w", err)
	}
	return placements, nil
}

func (r *gormRepository) CountOccupied(ctx context.Context, siteID uuid.UUID, term string) (int64, error) {
	return countOccupied(r.db.WithContext(ctx), siteID, term)
}

func countOccupied(db *gorm.DB, siteID uuid.UUID, term string) (int64, error) {
	var n int64
	err := db.Model(&Placement{}).
		Where("site_id = ? AND term = ? AND status IN ?", siteID, term, OccupyingStatuses).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count placements: %w", err)
	}
	return n, nil
}
