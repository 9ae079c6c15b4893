package practicum

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/notifications"
	"admissions-portal/portal-backend/internal/retry"
	"admissions-portal/portal-backend/pkg/workflows"
)

// Service manages practicum sites and student placements
type Service struct {
	repo         Repository
	publisher    notifications.Publisher
	executor     *retry.Executor
	policy       retry.Policy
	stateMachine *workflows.StateMachine
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a practicum service
func NewService(repo Repository, publisher notifications.Publisher, executor *retry.Executor, policy retry.Policy, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		publisher:    publisher,
		executor:     executor,
		policy:       policy,
		stateMachine: workflows.NewPlacementStateMachine(),
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) run(ctx context.Context, op func(ctx context.Context) error) error {
	return s.executor.Run(ctx, s.policy, op)
}

// =====================================================
// Sites
// =====================================================

// CreateSite registers a practicum site
func (s *Service) CreateSite(ctx context.Context, req *CreateSiteRequest) (*Site, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1", ErrValidation)
	}
	if err := validEmail(req.ContactEmail); err != nil {
		return nil, err
	}

	now := s.now()
	site := &Site{
		ID:           uuid.New(),
		Name:         req.Name,
		Organization: req.Organization,
		Specialty:    req.Specialty,
		City:         req.City,
		State:        req.State,
		Capacity:     req.Capacity,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.CreateSite(ctx, site)
	}); err != nil {
		return nil, err
	}
	return site, nil
}

// GetSite retrieves a site
func (s *Service) GetSite(ctx context.Context, id uuid.UUID) (*Site, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (*Site, error) {
		return s.repo.GetSite(ctx, id)
	})
}

// UpdateSite edits a site. Lowering capacity does not cancel existing placements.
func (s *Service) UpdateSite(ctx context.Context, id uuid.UUID, req *UpdateSiteRequest) (*Site, error) {
	site, err := s.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: name is required", ErrValidation)
		}
		site.Name = *req.Name
	}
	if req.Specialty != nil {
		site.Specialty = *req.Specialty
	}
	if req.Capacity != nil {
		if *req.Capacity < 1 {
			return nil, fmt.Errorf("%w: capacity must be at least 1", ErrValidation)
		}
		site.Capacity = *req.Capacity
	}
	if req.ContactName != nil {
		site.ContactName = *req.ContactName
	}
	if req.ContactEmail != nil {
		if err := validEmail(*req.ContactEmail); err != nil {
			return nil, err
		}
		site.ContactEmail = *req.ContactEmail
	}
	if req.Active != nil {
		site.Active = *req.Active
	}
	site.UpdatedAt = s.now()

	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.UpdateSite(ctx, site)
	}); err != nil {
		return nil, err
	}
	return site, nil
}

// ListSites lists sites by name
func (s *Service) ListSites(ctx context.Context, filter SiteFilter) ([]*Site, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) ([]*Site, error) {
		return s.repo.ListSites(ctx, filter)
	})
}

// Availability reports how many slots a site has left for term
func (s *Service) Availability(ctx context.Context, siteID uuid.UUID, term string) (*SiteAvailability, error) {
	if term == "" {
		return nil, fmt.Errorf("%w: term is required", ErrValidation)
	}
	site, err := s.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	occupied, err := retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (int64, error) {
		return s.repo.CountOccupied(ctx, siteID, term)
	})
	if err != nil {
		return nil, err
	}
	return &SiteAvailability{
		SiteID:   site.ID,
		Term:     term,
		Capacity: site.Capacity,
		Occupied: occupied,
		Open:     max(int64(site.Capacity)-occupied, 0),
	}, nil
}

// =====================================================
// Placements
// =====================================================

// CreatePlacement places a student at an active site with room for the term
func (s *Service) CreatePlacement(ctx context.Context, userID uuid.UUID, req *CreatePlacementRequest) (*Placement, error) {
	if req.SiteID == uuid.Nil || req.StudentID == uuid.Nil {
		return nil, fmt.Errorf("%w: site_id and student_id are required", ErrValidation)
	}
	if strings.TrimSpace(req.Term) == "" {
		return nil, fmt.Errorf("%w: term is required", ErrValidation)
	}
	if req.RequiredHours < 0 {
		return nil, fmt.Errorf("%w: required_hours cannot be negative", ErrValidation)
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, fmt.Errorf("%w: end_date is before start_date", ErrValidation)
	}

	site, err := s.GetSite(ctx, req.SiteID)
	if err != nil {
		return nil, err
	}
	if !site.Active {
		return nil, fmt.Errorf("%w: site %s is not accepting placements", ErrValidation, site.Name)
	}

	now := s.now()
	placement := &Placement{
		ID:            uuid.New(),
		SiteID:        req.SiteID,
		StudentID:     req.StudentID,
		Term:          req.Term,
		Status:        PlacementPending,
		Preceptor:     req.Preceptor,
		RequiredHours: req.RequiredHours,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		CreatedBy:     userID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.CreatePlacementWithinCapacity(ctx, placement)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Placement created",
		zap.String("placement_id", placement.ID.String()),
		zap.String("site_id", site.ID.String()),
		zap.String("term", placement.Term))

	if s.publisher != nil {
		event := notifications.Event{
			Type:    notifications.EventPlacementCreated,
			Title:   "New placement at " + site.Name,
			Message: fmt.Sprintf("Term %s", placement.Term),
			Data: map[string]any{
				"placement_id": placement.ID.String(),
				"site_id":      site.ID.String(),
				"student_id":   placement.StudentID.String(),
			},
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish placement event", zap.Error(err))
		}
	}
	return placement, nil
}

// GetPlacement retrieves a placement with its site
func (s *Service) GetPlacement(ctx context.Context, id uuid.UUID) (*Placement, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (*Placement, error) {
		return s.repo.GetPlacement(ctx, id)
	})
}

// UpdatePlacementStatus moves a placement along its lifecycle
func (s *Service) UpdatePlacementStatus(ctx context.Context, id uuid.UUID, to PlacementStatus) (*Placement, error) {
	placement, err := s.GetPlacement(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.stateMachine.Transition(string(placement.Status), string(to)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	placement.Status = to
	placement.UpdatedAt = s.now()
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.UpdatePlacement(ctx, placement)
	}); err != nil {
		return nil, err
	}
	return placement, nil
}

// ListPlacements lists placements newest first
func (s *Service) ListPlacements(ctx context.Context, filter PlacementFilter) ([]*Placement, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) ([]*Placement, error) {
		return s.repo.ListPlacements(ctx, filter)
	})
}

func validEmail(addr string) error {
	if addr == "" {
		return nil
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("%w: invalid contact_email", ErrValidation)
	}
	return nil
}
