package reports

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/datasource"
	"admissions-portal/portal-backend/internal/reports/builder"
	"admissions-portal/portal-backend/internal/reports/export"
	"admissions-portal/portal-backend/internal/retry"
)

// Service provides business logic for reporting operations.
// Repository and data source calls run through the retry executor so an
// expired session is refreshed once and the call replayed.
type Service struct {
	repo     Repository
	source   datasource.Source
	catalog  *builder.Catalog
	executor *retry.Executor
	policy   retry.Policy
	logger   *zap.Logger
}

// NewService creates a new reports service
func NewService(
	repo Repository,
	source datasource.Source,
	catalog *builder.Catalog,
	executor *retry.Executor,
	policy retry.Policy,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:     repo,
		source:   source,
		catalog:  catalog,
		executor: executor,
		policy:   policy,
		logger:   logger,
	}
}

// Catalog returns the data source catalog reports are built against
func (s *Service) Catalog() *builder.Catalog {
	return s.catalog
}

func (s *Service) run(ctx context.Context, op func(ctx context.Context) error) error {
	return s.executor.Run(ctx, s.policy, op)
}

// =====================================================
// Report Definition Operations
// =====================================================

// CreateReport creates a new report definition
func (s *Service) CreateReport(ctx context.Context, userID uuid.UUID, req *CreateReportRequest) (*ReportDefinition, error) {
	if err := builder.Validate(s.catalog, &req.Config); err != nil {
		return nil, err
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = ReportVisibilityPrivate
	}

	now := time.Now()
	report := &ReportDefinition{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Config:      req.Config,
		CreatedBy:   &userID,
		Visibility:  visibility,
		SharedWith:  req.SharedWith,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.CreateReportDefinition(ctx, report)
	}); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.logger.Info("Report definition created",
		zap.String("report_id", report.ID.String()),
		zap.String("data_source", report.Config.DataSource),
		zap.String("created_by", userID.String()))

	return report, nil
}

// GetReport retrieves a report definition by ID
func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*ReportDefinition, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (*ReportDefinition, error) {
		return s.repo.GetReportDefinition(ctx, id)
	})
}

// UpdateReport updates an existing report definition
func (s *Service) UpdateReport(ctx context.Context, id uuid.UUID, req *UpdateReportRequest) (*ReportDefinition, error) {
	report, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		report.Name = *req.Name
	}
	if req.Description != nil {
		report.Description = req.Description
	}
	if req.Category != nil {
		report.Category = *req.Category
	}
	if req.Config != nil {
		if err := builder.Validate(s.catalog, req.Config); err != nil {
			return nil, err
		}
		report.Config = *req.Config
	}
	if req.Visibility != nil {
		report.Visibility = *req.Visibility
	}
	if req.SharedWith != nil {
		report.SharedWith = req.SharedWith
	}

	report.Version++
	report.UpdatedAt = time.Now()

	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.UpdateReportDefinition(ctx, report)
	}); err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}

	s.logger.Info("Report definition updated",
		zap.String("report_id", id.String()),
		zap.Int("new_version", report.Version))

	return report, nil
}

// DeleteReport deletes a report definition
func (s *Service) DeleteReport(ctx context.Context, id uuid.UUID) error {
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.DeleteReportDefinition(ctx, id)
	}); err != nil {
		return err
	}

	s.logger.Info("Report definition deleted", zap.String("report_id", id.String()))
	return nil
}

// ListReports lists report definitions with filters
func (s *Service) ListReports(ctx context.Context, filters *ReportFilters) (*ReportListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	var (
		reports []*ReportDefinition
		total   int
	)
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		reports, total, err = s.repo.ListReportDefinitions(ctx, filters)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ReportListResponse{
		Reports:    reports,
		TotalCount: total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		HasMore:    filters.Page*filters.PageSize < total,
	}, nil
}

// ValidateConfig reports every problem with cfg
func (s *Service) ValidateConfig(cfg *builder.ReportConfig) *builder.ValidationResult {
	return builder.ValidateAll(s.catalog, cfg)
}

// =====================================================
// Data Source Operations
// =====================================================

// GetDataSources lists the data sources reports can query
func (s *Service) GetDataSources() []*builder.DataSourceSchema {
	return s.catalog.GetDataSources()
}

// GetDataSource returns one data source schema
func (s *Service) GetDataSource(name string) (*builder.DataSourceSchema, error) {
	schema, err := s.catalog.GetDataSource(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return schema, nil
}

// =====================================================
// Execution Operations
// =====================================================

// RunReport runs an unsaved configuration and shapes its rows for display
func (s *Service) RunReport(ctx context.Context, cfg *builder.ReportConfig) (*RunResult, error) {
	start := time.Now()

	query, err := builder.BuildQuery(s.catalog, cfg)
	if err != nil {
		return nil, err
	}

	rows, err := retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) ([]datasource.Row, error) {
		return s.source.Select(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", cfg.DataSource, err)
	}

	result, err := builder.Shape(s.catalog, cfg, rows)
	if err != nil {
		return nil, err
	}

	duration := time.Since(start).Milliseconds()
	s.logger.Debug("Report run completed",
		zap.String("data_source", cfg.DataSource),
		zap.String("visualization", string(result.Type)),
		zap.Int("row_count", result.RowCount),
		zap.Int64("duration_ms", duration))

	return &RunResult{
		Result:     result,
		ExecutedAt: start,
		DurationMs: duration,
	}, nil
}

// RunDefinition runs a saved report definition
func (s *Service) RunDefinition(ctx context.Context, report *ReportDefinition) (*RunResult, error) {
	result, err := s.RunReport(ctx, &report.Config)
	if err != nil {
		return nil, err
	}
	result.ReportID = &report.ID
	result.Version = report.Version
	return result, nil
}

// RunSavedReport loads and runs a saved report
func (s *Service) RunSavedReport(ctx context.Context, id uuid.UUID) (*RunResult, error) {
	report, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.RunDefinition(ctx, report)
}

// ExportReport runs a saved report and renders it in format, recording the execution
func (s *Service) ExportReport(ctx context.Context, id uuid.UUID, format ExportFormat) (*ExportedReport, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: unsupported export format %q", ErrInvalidRequest, format)
	}

	report, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	execution, err := s.StartExecution(ctx, report.ID, nil)
	if err != nil {
		return nil, err
	}

	result, err := s.RunDefinition(ctx, report)
	if err != nil {
		s.FinishExecution(ctx, execution, nil, "", err)
		return nil, err
	}

	exported, err := Render(report.Name, result.Result, format)
	if err != nil {
		s.FinishExecution(ctx, execution, nil, "", err)
		return nil, err
	}

	s.FinishExecution(ctx, execution, result.Result, "", nil)
	return exported, nil
}

// StartExecution records the start of a report run
func (s *Service) StartExecution(ctx context.Context, reportID uuid.UUID, scheduleID *uuid.UUID) (*ReportExecution, error) {
	execution := &ReportExecution{
		ID:                 uuid.New(),
		ReportDefinitionID: reportID,
		ScheduleID:         scheduleID,
		Status:             ExecutionStatusProcessing,
		StartedAt:          time.Now(),
	}
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.CreateExecution(ctx, execution)
	}); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}
	return execution, nil
}

// FinishExecution marks an execution completed or failed. Failures to persist
// the outcome are logged, not returned.
func (s *Service) FinishExecution(ctx context.Context, execution *ReportExecution, result *builder.Result, fileKey string, runErr error) {
	completedAt := time.Now()
	duration := int(completedAt.Sub(execution.StartedAt).Milliseconds())
	execution.CompletedAt = &completedAt
	execution.DurationMs = &duration

	if runErr != nil {
		execution.Status = ExecutionStatusFailed
		msg := runErr.Error()
		execution.ErrorMessage = &msg
	} else {
		execution.Status = ExecutionStatusCompleted
	}
	if result != nil {
		count := result.RowCount
		execution.RecordCount = &count
	}
	if fileKey != "" {
		execution.FileKey = &fileKey
	}

	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.UpdateExecution(ctx, execution)
	}); err != nil {
		s.logger.Error("Failed to update execution record",
			zap.String("execution_id", execution.ID.String()),
			zap.Error(err))
	}
}

// ListExecutions lists recent executions of a report
func (s *Service) ListExecutions(ctx context.Context, reportID uuid.UUID, limit int) ([]*ReportExecution, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) ([]*ReportExecution, error) {
		return s.repo.ListExecutions(ctx, reportID, limit)
	})
}

// =====================================================
// Schedule Operations
// =====================================================

// CreateSchedule creates a new report schedule
func (s *Service) CreateSchedule(ctx context.Context, userID uuid.UUID, req *CreateScheduleRequest) (*ReportSchedule, error) {
	if err := validateSchedule(req); err != nil {
		return nil, err
	}

	// Verify the report exists
	if _, err := s.GetReport(ctx, req.ReportDefinitionID); err != nil {
		return nil, err
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	now := time.Now()
	schedule := &ReportSchedule{
		ID:                 uuid.New(),
		ReportDefinitionID: req.ReportDefinitionID,
		Name:               req.Name,
		CronExpression:     req.CronExpression,
		Timezone:           timezone,
		IsActive:           true,
		Format:             req.Format,
		DeliveryMethod:     req.DeliveryMethod,
		RecipientEmails:    req.RecipientEmails,
		WebhookURL:         req.WebhookURL,
		CreatedBy:          &userID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.CreateSchedule(ctx, schedule)
	}); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Info("Report schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("report_id", req.ReportDefinitionID.String()),
		zap.String("cron", req.CronExpression))

	return schedule, nil
}

// GetSchedule retrieves a schedule by ID
func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*ReportSchedule, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) (*ReportSchedule, error) {
		return s.repo.GetSchedule(ctx, id)
	})
}

// ListSchedules lists schedules, optionally for one report or only active ones
func (s *Service) ListSchedules(ctx context.Context, reportID *uuid.UUID, activeOnly bool) ([]*ReportSchedule, error) {
	return retry.Do(ctx, s.executor, s.policy, func(ctx context.Context) ([]*ReportSchedule, error) {
		return s.repo.ListSchedules(ctx, reportID, activeOnly)
	})
}

// DeleteSchedule deletes a schedule
func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	if err := s.run(ctx, func(ctx context.Context) error {
		return s.repo.DeleteSchedule(ctx, id)
	}); err != nil {
		return err
	}

	s.logger.Info("Report schedule deleted", zap.String("schedule_id", id.String()))
	return nil
}

// RecordScheduleRun stamps a schedule's last execution
func (s *Service) RecordScheduleRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.repo.RecordScheduleRun(ctx, id, at)
	})
}

// ScheduleSpec is the cron spec for a schedule, pinned to its timezone
func ScheduleSpec(schedule *ReportSchedule) string {
	if schedule.Timezone == "" || strings.HasPrefix(schedule.CronExpression, "CRON_TZ=") {
		return schedule.CronExpression
	}
	return "CRON_TZ=" + schedule.Timezone + " " + schedule.CronExpression
}

func validateSchedule(req *CreateScheduleRequest) error {
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidRequest, req.Timezone)
		}
	}
	if _, err := cron.ParseStandard(req.CronExpression); err != nil {
		return fmt.Errorf("%w: invalid cron expression: %v", ErrInvalidRequest, err)
	}
	if !req.Format.Valid() {
		return fmt.Errorf("%w: unsupported export format %q", ErrInvalidRequest, req.Format)
	}

	switch req.DeliveryMethod {
	case DeliveryMethodEmail:
		if len(req.RecipientEmails) == 0 {
			return fmt.Errorf("%w: email delivery requires recipient_emails", ErrInvalidRequest)
		}
	case DeliveryMethodWebhook:
		if req.WebhookURL == nil || !strings.HasPrefix(*req.WebhookURL, "http") {
			return fmt.Errorf("%w: webhook delivery requires an http(s) webhook_url", ErrInvalidRequest)
		}
	case DeliveryMethodStorage, DeliveryMethodNotification:
	default:
		return fmt.Errorf("%w: unsupported delivery method %q", ErrInvalidRequest, req.DeliveryMethod)
	}
	return nil
}

// =====================================================
// Rendering
// =====================================================

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9]+`)

// Render exports a shaped result as a downloadable file
func Render(title string, result *builder.Result, format ExportFormat) (*ExportedReport, error) {
	table := export.FromResult(title, result)

	var (
		data []byte
		err  error
	)
	switch format {
	case ExportFormatCSV:
		data, err = export.NewCSVExporter(export.DefaultCSVOptions()).Export(table)
	case ExportFormatExcel:
		data, err = export.NewExcelExporter(export.DefaultExcelOptions()).Export(table)
	case ExportFormatPDF:
		data, err = export.NewPDFGenerator(export.DefaultPDFOptions()).Export(table)
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", ErrInvalidRequest, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", format, err)
	}

	slug := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		slug = "report"
	}
	return &ExportedReport{
		FileName:    fmt.Sprintf("%s-%s.%s", slug, table.GeneratedAt.Format("20060102-150405"), format.Extension()),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}
