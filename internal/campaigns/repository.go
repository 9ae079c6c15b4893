package campaigns

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists campaigns and templates
type Repository interface {
	CreateCampaign(ctx context.Context, campaign *Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error)
	UpdateCampaign(ctx context.Context, campaign *Campaign) error
	DeleteCampaign(ctx context.Context, id uuid.UUID) error
	ListCampaigns(ctx context.Context, filter Filter) ([]*Campaign, int64, error)
	RecordStatusChange(ctx context.Context, history *StatusHistory) error
	ListStatusHistory(ctx context.Context, campaignID uuid.UUID) ([]*StatusHistory, error)

	CreateTemplate(ctx context.Context, template *MessageTemplate) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*MessageTemplate, error)
	ListTemplates(ctx context.Context, channel *Channel) ([]*MessageTemplate, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a Postgres-backed campaign repository
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepository) CreateCampaign(ctx context.Context, campaign *Campaign) error {
	if err := r.db.WithContext(ctx).Create(campaign).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *gormRepository) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	var campaign Campaign
	if err := r.db.WithContext(ctx).First(&campaign, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &campaign, nil
}

func (r *gormRepository) UpdateCampaign(ctx context.Context, campaign *Campaign) error {
	return r.db.WithContext(ctx).Save(campaign).Error
}

func (r *gormRepository) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Campaign{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) ListCampaigns(ctx context.Context, filter Filter) ([]*Campaign, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Status != nil {
			db = db.Where("status = ?", *filter.Status)
		}
		if filter.Channel != nil {
			db = db.Where("channel = ?", *filter.Channel)
		}
		if filter.CreatedBy != nil {
			db = db.Where("created_by = ?", *filter.CreatedBy)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&Campaign{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	var campaigns []*Campaign
	err := r.db.WithContext(ctx).
		Scopes(scope).
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&campaigns).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, total, nil
}

func (r *gormRepository) RecordStatusChange(ctx context.Context, history *StatusHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *gormRepository) ListStatusHistory(ctx context.Context, campaignID uuid.UUID) ([]*StatusHistory, error) {
	var history []*StatusHistory
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("changed_at ASC").
		Find(&history).Error
	return history, err
}

func (r *gormRepository) CreateTemplate(ctx context.Context, template *MessageTemplate) error {
	if err := r.db.WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *gormRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*MessageTemplate, error) {
	var template MessageTemplate
	if err := r.db.WithContext(ctx).First(&template, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &template, nil
}

func (r *gormRepository) ListTemplates(ctx context.Context, channel *Channel) ([]*MessageTemplate, error) {
	query := r.db.WithContext(ctx).Order("name ASC")
	if channel != nil {
		query = query.Where("channel = ?", *channel)
	}
	var templates []*MessageTemplate
	return templates, query.Find(&templates).Error
}

func (r *gormRepository) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&MessageTemplate{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
