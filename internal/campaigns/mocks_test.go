package campaigns

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/notifications"
	"admissions-portal/portal-backend/internal/retry"
)

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateCampaign(ctx context.Context, campaign *Campaign) error {
	return m.Called(ctx, campaign).Error(0)
}

func (m *MockRepository) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Campaign), args.Error(1)
}

func (m *MockRepository) UpdateCampaign(ctx context.Context, campaign *Campaign) error {
	return m.Called(ctx, campaign).Error(0)
}

func (m *MockRepository) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) ListCampaigns(ctx context.Context, filter Filter) ([]*Campaign, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*Campaign), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) RecordStatusChange(ctx context.Context, history *StatusHistory) error {
	return m.Called(ctx, history).Error(0)
}

func (m *MockRepository) ListStatusHistory(ctx context.Context, campaignID uuid.UUID) ([]*StatusHistory, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*StatusHistory), args.Error(1)
}

func (m *MockRepository) CreateTemplate(ctx context.Context, template *MessageTemplate) error {
	return m.Called(ctx, template).Error(0)
}

func (m *MockRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*MessageTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageTemplate), args.Error(1)
}

func (m *MockRepository) ListTemplates(ctx context.Context, channel *Channel) ([]*MessageTemplate, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*MessageTemplate), args.Error(1)
}

func (m *MockRepository) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// scriptedInvoker returns errs in order, then succeeds with result
type scriptedInvoker struct {
	mu       sync.Mutex
	errs     []error
	result   LaunchResult
	calls    int
	payloads []any
}

func (s *scriptedInvoker) Invoke(_ context.Context, name string, payload any, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.payloads = append(s.payloads, payload)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	if r, ok := out.(*LaunchResult); ok {
		*r = s.result
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []notifications.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notifications.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type alwaysRefresh struct {
	mu        sync.Mutex
	refreshes int
}

func (a *alwaysRefresh) AwaitIfRefreshing(ctx context.Context) error { return ctx.Err() }

func (a *alwaysRefresh) Refresh(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	return true
}

type fixture struct {
	svc       *Service
	repo      *MockRepository
	invoker   *scriptedInvoker
	publisher *recordingPublisher
	coord     *alwaysRefresh
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:      new(MockRepository),
		invoker:   &scriptedInvoker{result: LaunchResult{JobID: "job-7", Queued: 120}},
		publisher: &recordingPublisher{},
		coord:     &alwaysRefresh{},
		now:       time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC),
	}
	executor := retry.NewExecutor(f.coord, zap.NewNop())
	policy := retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}
	f.svc = NewService(f.repo, f.invoker, f.publisher, executor, policy, zap.NewNop())
	f.svc.now = func() time.Time { return f.now }
	return f
}
