package reports

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/datasource"
	"admissions-portal/portal-backend/internal/reports/builder"
	"admissions-portal/portal-backend/internal/retry"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateReportDefinition(ctx context.Context, report *ReportDefinition) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockRepository) GetReportDefinition(ctx context.Context, id uuid.UUID) (*ReportDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReportDefinition), args.Error(1)
}

func (m *MockRepository) UpdateReportDefinition(ctx context.Context, report *ReportDefinition) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockRepository) DeleteReportDefinition(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) ListReportDefinitions(ctx context.Context, filters *ReportFilters) ([]*ReportDefinition, int, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*ReportDefinition), args.Int(1), args.Error(2)
}

func (m *MockRepository) CreateSchedule(ctx context.Context, schedule *ReportSchedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*ReportSchedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReportSchedule), args.Error(1)
}

func (m *MockRepository) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) ListSchedules(ctx context.Context, reportID *uuid.UUID, activeOnly bool) ([]*ReportSchedule, error) {
	args := m.Called(ctx, reportID, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ReportSchedule), args.Error(1)
}

func (m *MockRepository) RecordScheduleRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockRepository) CreateExecution(ctx context.Context, execution *ReportExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

func (m *MockRepository) UpdateExecution(ctx context.Context, execution *ReportExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

func (m *MockRepository) ListExecutions(ctx context.Context, reportID uuid.UUID, limit int) ([]*ReportExecution, error) {
	args := m.Called(ctx, reportID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ReportExecution), args.Error(1)
}

// MockSource is a mock implementation of datasource.Source
type MockSource struct {
	mock.Mock
}

func (m *MockSource) Select(ctx context.Context, q datasource.Query) ([]datasource.Row, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datasource.Row), args.Error(1)
}

func (m *MockSource) Insert(ctx context.Context, table string, rows []datasource.Row) ([]datasource.Row, error) {
	args := m.Called(ctx, table, rows)
	return nil, args.Error(1)
}

func (m *MockSource) Update(ctx context.Context, table string, values datasource.Row, where datasource.Predicate) ([]datasource.Row, error) {
	args := m.Called(ctx, table, values, where)
	return nil, args.Error(1)
}

func (m *MockSource) Delete(ctx context.Context, table string, where datasource.Predicate) error {
	args := m.Called(ctx, table, where)
	return args.Error(0)
}

// countingCoordinator always refreshes successfully and counts refreshes
type countingCoordinator struct {
	mu        sync.Mutex
	refreshes int
}

func (c *countingCoordinator) AwaitIfRefreshing(ctx context.Context) error {
	return ctx.Err()
}

func (c *countingCoordinator) Refresh(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	return true
}

func (c *countingCoordinator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

type serviceFixture struct {
	svc    *Service
	repo   *MockRepository
	source *MockSource
	coord  *countingCoordinator
}

func newServiceFixture() *serviceFixture {
	repo := new(MockRepository)
	source := new(MockSource)
	coord := &countingCoordinator{}
	executor := retry.NewExecutor(coord, zap.NewNop())
	policy := retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}

	return &serviceFixture{
		svc:    NewService(repo, source, builder.NewCatalog(), executor, policy, zap.NewNop()),
		repo:   repo,
		source: source,
		coord:  coord,
	}
}

func leadsTable() builder.ReportConfig {
	return builder.ReportConfig{
		DataSource:     "leads",
		SelectedFields: []string{"first_name", "lead_score", "is_international"},
		Filters: []builder.FilterCondition{
			{Field: "status", Operator: datasource.OpEquals, Value: "qualified"},
		},
	}
}

func leadRows() []datasource.Row {
	return []datasource.Row{
		{"first_name": "Ada", "lead_score": 91.0, "is_international": true},
		{"first_name": "Alan", "lead_score": nil, "is_international": false},
	}
}
