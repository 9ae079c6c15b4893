package campaigns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/notifications"
	"admissions-portal/portal-backend/internal/retry"
	"admissions-portal/portal-backend/pkg/workflows"
)

// LaunchFunction is the edge function that sends a campaign
const LaunchFunction = "execute-campaign"

// FunctionInvoker calls backend edge functions
type FunctionInvoker interface {
	Invoke(ctx context.Context, name string, payload any, out any) error
}

// LaunchResult is the edge function's reply
type LaunchResult struct {
	JobID  string `json:"job_id"`
	Queued int    `json:"queued"`
}

// CampaignList is one page of campaigns
type CampaignList struct {
	Campaigns  []*Campaign `json:"campaigns"`
	TotalCount int64       `json:"total_count"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

// Service manages outreach campaigns
type Service struct {
	repo         Repository
	functions    FunctionInvoker
	publisher    notifications.Publisher
	executor     *retry.Executor
	policy       retry.Policy
	stateMachine *workflows.StateMachine
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a campaign service
func NewService(
	repo Repository,
	functions FunctionInvoker,
	publisher notifications.Publisher,
	executor *retry.Executor,
	policy retry.Policy,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:         repo,
		functions:    functions,
		publisher:    publisher,
		executor:     executor,
		policy:       policy,
		stateMachine: workflows.NewCampaignStateMachine(),
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) run(ctx context.Context, op func(ctx context.Context) error) error {
	return s.executor.Run(ctx, s.policy, op)
}

// =====================================================
// Campaigns
// =====================================================

// CreateCampaign creates a draft campaign
func (s *Service) CreateCampaign(ctx context.Context, userID uuid.UUID, req *CreateCampaignRequest) (*Campaign, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !req.Channel.Valid() {
		return nil, fmt.Errorf("%w: unsupported channel %q", ErrValidation, req.Channel)
	}
	if err := validAudience(req.Audience); err != nil {
		return nil, err
	}
	if req.TemplateID != nil {
		if err := s.checkTemplate(ctx, *req.TemplateID, req.Channel); err != nil {
			return nil, err
		}
	}

	now := s.now()
	campaign := &Campaign{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Channel:     req.Channel,
		Status:      StatusDraft,
		TemplateID:  req.TemplateID,
		Audience:    req.Audience,
		ScheduledAt: req.ScheduledAt,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ScheduledAt != nil {
		campaign.Status = StatusScheduled
	}

	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.CreateCampaign(ctx, campaign)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Campaign created",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("status", string(campaign.Status)))
	return campaign, nil
}

// GetCampaign retrieves a campaign
func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (*Campaign, error) {
		return s.repo.GetCampaign(ctx, id)
	})
}

// UpdateCampaign edits a campaign. Content is frozen once a campaign has
// finished; status changes follow the campaign lifecycle and a draft only
// starts running through Launch.
func (s *Service) UpdateCampaign(ctx context.Context, id uuid.UUID, userID uuid.UUID, req *UpdateCampaignRequest) (*Campaign, error) {
	campaign, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	editsContent := req.Name != nil || req.Description != nil || req.TemplateID != nil || req.Audience != nil || req.ScheduledAt != nil
	if editsContent && s.stateMachine.IsTerminal(string(campaign.Status)) {
		return nil, fmt.Errorf("%w: campaign is %s", ErrValidation, campaign.Status)
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: name is required", ErrValidation)
		}
		campaign.Name = *req.Name
	}
	if req.Description != nil {
		campaign.Description = *req.Description
	}
	if req.TemplateID != nil {
		if err := s.checkTemplate(ctx, *req.TemplateID, campaign.Channel); err != nil {
			return nil, err
		}
		campaign.TemplateID = req.TemplateID
	}
	if req.Audience != nil {
		if err := validAudience(req.Audience); err != nil {
			return nil, err
		}
		campaign.Audience = req.Audience
	}
	if req.ScheduledAt != nil {
		campaign.ScheduledAt = req.ScheduledAt
	}

	var from Status
	if req.Status != nil && *req.Status != campaign.Status {
		if *req.Status == StatusRunning && campaign.Status != StatusPaused {
			return nil, fmt.Errorf("%w: use launch to start a campaign", ErrValidation)
		}
		if err := s.stateMachine.Transition(string(campaign.Status), string(*req.Status)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		from = campaign.Status
		campaign.Status = *req.Status
		if campaign.Status == StatusCompleted {
			now := s.now()
			campaign.CompletedAt = &now
		}
	}

	campaign.UpdatedAt = s.now()
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.UpdateCampaign(ctx, campaign)
	}); err != nil {
		return nil, err
	}

	if from != "" {
		s.statusChanged(ctx, campaign, from, userID)
	}
	return campaign, nil
}

// DeleteCampaign removes a campaign that is not running
func (s *Service) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	campaign, err := s.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status == StatusRunning {
		return fmt.Errorf("%w: pause or cancel a running campaign before deleting it", ErrValidation)
	}
	return s.run(ctx, func(ctx context.Context) error {
		return s.repo.DeleteCampaign(ctx, id)
	})
}

// ListCampaigns lists campaigns newest first
func (s *Service) ListCampaigns(ctx context.Context, filter Filter) (*CampaignList, error) {
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		campaigns []*Campaign
		total     int64
	)
	if err := s.run(ctx, func(ctx context.Context) error {
		var err error
		campaigns, total, err = s.repo.ListCampaigns(ctx, filter)
		return err
	}); err != nil {
		return nil, err
	}

	return &CampaignList{
		Campaigns:  campaigns,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// Launch hands a draft or scheduled campaign to the execute-campaign function
// and marks it running. The campaign is unchanged if the function call fails.
func (s *Service) Launch(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*Campaign, *LaunchResult, error) {
	campaign, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if campaign.Status != StatusDraft && campaign.Status != StatusScheduled {
		return nil, nil, fmt.Errorf("%w: cannot launch a %s campaign", ErrValidation, campaign.Status)
	}
	if campaign.TemplateID == nil {
		return nil, nil, fmt.Errorf("%w: campaign has no message template", ErrValidation)
	}

	payload := map[string]any{
		"campaign_id": campaign.ID.String(),
		"channel":     campaign.Channel,
		"template_id": campaign.TemplateID.String(),
		"audience":    campaign.Audience,
	}
	result, err := retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (*LaunchResult, error) {
		var out LaunchResult
		if err := s.functions.Invoke(ctx, LaunchFunction, payload, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		s.logger.Error("Campaign launch failed",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to launch campaign: %w", err)
	}

	from := campaign.Status
	now := s.now()
	campaign.Status = StatusRunning
	campaign.LaunchedAt = &now
	campaign.UpdatedAt = now
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.UpdateCampaign(ctx, campaign)
	}); err != nil {
		return nil, nil, err
	}

	s.statusChanged(ctx, campaign, from, userID)
	s.publish(ctx, notifications.Event{
		Type:    notifications.EventCampaignLaunched,
		Title:   campaign.Name + " launched",
		Message: fmt.Sprintf("%d messages queued", result.Queued),
		Data: map[string]any{
			"campaign_id": campaign.ID.String(),
			"job_id":      result.JobID,
			"queued":      result.Queued,
		},
	})

	s.logger.Info("Campaign launched",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("job_id", result.JobID),
		zap.Int("queued", result.Queued))
	return campaign, result, nil
}

// GetStatusHistory lists a campaign's status changes oldest first
func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusHistory, error) {
	if _, err := s.GetCampaign(ctx, id); err != nil {
		return nil, err
	}
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) ([]*StatusHistory, error) {
		return s.repo.ListStatusHistory(ctx, id)
	})
}

func (s *Service) statusChanged(ctx context.Context, campaign *Campaign, from Status, userID uuid.UUID) {
	history := &StatusHistory{
		ID:         uuid.New(),
		CampaignID: campaign.ID,
		FromStatus: from,
		ToStatus:   campaign.Status,
		ChangedBy:  userID,
		ChangedAt:  s.now(),
	}
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.RecordStatusChange(ctx, history)
	}); err != nil {
		s.logger.Warn("Failed to record campaign status change",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Error(err))
	}

	s.publish(ctx, notifications.Event{
		Type:    notifications.EventCampaignStatusChanged,
		Title:   campaign.Name,
		Message: fmt.Sprintf("Status changed from %s to %s", from, campaign.Status),
		Data: map[string]any{
			"campaign_id": campaign.ID.String(),
			"from":        from,
			"to":          campaign.Status,
		},
	})
}

func (s *Service) publish(ctx context.Context, event notifications.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish campaign event", zap.Error(err))
	}
}

// =====================================================
// Templates
// =====================================================

// CreateTemplate saves message copy
func (s *Service) CreateTemplate(ctx context.Context, userID uuid.UUID, req *CreateTemplateRequest) (*MessageTemplate, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Body) == "" {
		return nil, fmt.Errorf("%w: name and body are required", ErrValidation)
	}
	if !req.Channel.Valid() {
		return nil, fmt.Errorf("%w: unsupported channel %q", ErrValidation, req.Channel)
	}
	if req.Channel == ChannelEmail && strings.TrimSpace(req.Subject) == "" {
		return nil, fmt.Errorf("%w: email templates need a subject", ErrValidation)
	}

	now := s.now()
	template := &MessageTemplate{
		ID:        uuid.New(),
		Name:      req.Name,
		Channel:   req.Channel,
		Subject:   req.Subject,
		Body:      req.Body,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.CreateTemplate(ctx, template)
	}); err != nil {
		return nil, err
	}
	return template, nil
}

// GetTemplate retrieves a template
func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*MessageTemplate, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (*MessageTemplate, error) {
		return s.repo.GetTemplate(ctx, id)
	})
}

// ListTemplates lists templates, optionally for one channel
func (s *Service) ListTemplates(ctx context.Context, channel *Channel) ([]*MessageTemplate, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) ([]*MessageTemplate, error) {
		return s.repo.ListTemplates(ctx, channel)
	})
}

// DeleteTemplate removes a template
func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.repo.DeleteTemplate(ctx, id)
	})
}

func (s *Service) checkTemplate(ctx context.Context, id uuid.UUID, channel Channel) error {
	template, err := s.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: template %s does not exist", ErrValidation, id)
		}
		return err
	}
	if template.Channel != channel {
		return fmt.Errorf("%w: template is for %s, campaign is %s", ErrValidation, template.Channel, channel)
	}
	return nil
}

// validAudience requires the segment filter to be a JSON object when present
func validAudience(audience []byte) error {
	if len(audience) == 0 {
		return nil
	}
	var segment map[string]any
	if err := json.Unmarshal(audience, &segment); err != nil {
		return fmt.Errorf("%w: audience must be a JSON object", ErrValidation)
	}
	return nil
}
