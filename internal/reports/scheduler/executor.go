package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/reports"
	"admissions-portal/portal-backend/internal/reports/builder"
)

// ReportService is the part of reports.Service scheduled runs use
type ReportService interface {
	GetReport(ctx context.Context, id uuid.UUID) (*reports.ReportDefinition, error)
	RunDefinition(ctx context.Context, report *reports.ReportDefinition) (*reports.RunResult, error)
	StartExecution(ctx context.Context, reportID uuid.UUID, scheduleID *uuid.UUID) (*reports.ReportExecution, error)
	FinishExecution(ctx context.Context, execution *reports.ReportExecution, result *builder.Result, fileKey string, runErr error)
	RecordScheduleRun(ctx context.Context, id uuid.UUID, at time.Time) error
	ListSchedules(ctx context.Context, reportID *uuid.UUID, activeOnly bool) ([]*reports.ReportSchedule, error)
}

// ObjectStore stores generated files
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

// ExecutionResult represents the result of one scheduled run
type ExecutionResult struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	ScheduleID  uuid.UUID `json:"schedule_id"`
	Status      string    `json:"status"`
	RecordCount int       `json:"record_count"`
	FileKey     string    `json:"file_key,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
}

// ExecutorConfig configuration for the executor
type ExecutorConfig struct {
	KeyPrefix         string        `json:"key_prefix"`
	Timeout           time.Duration `json:"timeout"`
	DownloadURLExpiry time.Duration `json:"download_url_expiry"`
	MaxFileSizeBytes  int64         `json:"max_file_size_bytes"`
}

// DefaultExecutorConfig returns default configuration
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		KeyPrefix:         "reports",
		Timeout:           10 * time.Minute,
		DownloadURLExpiry: 24 * time.Hour,
		MaxFileSizeBytes:  50 * 1024 * 1024, // 50MB
	}
}

// Executor runs a schedule once: run, render, store, deliver
type Executor struct {
	reports  ReportService
	store    ObjectStore
	delivery *DeliveryManager
	logger   *zap.Logger
	config   ExecutorConfig
	now      func() time.Time
}

// NewExecutor creates a new executor
func NewExecutor(
	reportService ReportService,
	store ObjectStore,
	delivery *DeliveryManager,
	logger *zap.Logger,
	config ExecutorConfig,
) *Executor {
	return &Executor{
		reports:  reportService,
		store:    store,
		delivery: delivery,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Execute runs schedule's report and delivers it. The execution record is
// finished whether or not the run succeeds.
func (e *Executor) Execute(ctx context.Context, schedule *reports.ReportSchedule) (*ExecutionResult, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	startTime := e.now()
	result := &ExecutionResult{
		ScheduleID: schedule.ID,
		Status:     string(reports.ExecutionStatusProcessing),
		StartedAt:  startTime,
	}

	e.logger.Info("Starting scheduled report",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("report_id", schedule.ReportDefinitionID.String()),
		zap.String("format", string(schedule.Format)))

	report, err := e.reports.GetReport(ctx, schedule.ReportDefinitionID)
	if err != nil {
		return e.fail(ctx, schedule, result, fmt.Errorf("failed to load report: %w", err))
	}

	execution, err := e.reports.StartExecution(ctx, report.ID, &schedule.ID)
	if err != nil {
		return e.fail(ctx, schedule, result, err)
	}
	result.ExecutionID = execution.ID

	var (
		run     *reports.RunResult
		fileKey string
	)
	runErr := func() error {
		run, err = e.reports.RunDefinition(ctx, report)
		if err != nil {
			return fmt.Errorf("report run failed: %w", err)
		}
		result.RecordCount = run.Result.RowCount

		exported, err := reports.Render(report.Name, run.Result, schedule.Format)
		if err != nil {
			return err
		}
		if e.config.MaxFileSizeBytes > 0 && int64(len(exported.Data)) > e.config.MaxFileSizeBytes {
			return fmt.Errorf("report exceeds maximum file size")
		}

		key := e.objectKey(report.ID, exported.FileName)
		if err := e.store.Upload(ctx, key, bytes.NewReader(exported.Data), exported.ContentType); err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		fileKey = key
		result.FileKey = key

		downloadURL, err := e.store.GetPresignedURL(ctx, fileKey, e.config.DownloadURLExpiry)
		if err != nil {
			e.logger.Warn("Failed to generate download URL", zap.Error(err))
		}
		result.DownloadURL = downloadURL

		return e.delivery.Deliver(ctx, &Delivery{
			Schedule:    schedule,
			Report:      report,
			FileName:    exported.FileName,
			FileKey:     fileKey,
			DownloadURL: downloadURL,
			RecordCount: result.RecordCount,
			GeneratedAt: startTime,
		})
	}()

	var shaped *builder.Result
	if run != nil {
		shaped = run.Result
	}
	e.reports.FinishExecution(ctx, execution, shaped, fileKey, runErr)

	if err := e.reports.RecordScheduleRun(ctx, schedule.ID, startTime); err != nil {
		e.logger.Warn("Failed to record schedule run",
			zap.String("schedule_id", schedule.ID.String()),
			zap.Error(err))
	}

	if runErr != nil {
		return e.fail(ctx, schedule, result, runErr)
	}

	result.Status = string(reports.ExecutionStatusCompleted)
	result.CompletedAt = e.now()
	result.DurationMs = result.CompletedAt.Sub(startTime).Milliseconds()

	e.logger.Info("Scheduled report completed",
		zap.String("schedule_id", schedule.ID.String()),
		zap.Int("record_count", result.RecordCount),
		zap.Int64("duration_ms", result.DurationMs))

	return result, nil
}

func (e *Executor) fail(ctx context.Context, schedule *reports.ReportSchedule, result *ExecutionResult, err error) (*ExecutionResult, error) {
	result.Status = string(reports.ExecutionStatusFailed)
	result.Error = err.Error()
	result.CompletedAt = e.now()
	result.DurationMs = result.CompletedAt.Sub(result.StartedAt).Milliseconds()

	e.logger.Error("Scheduled report failed",
		zap.String("schedule_id", schedule.ID.String()),
		zap.Error(err))
	e.delivery.NotifyFailure(ctx, schedule, err)
	return result, err
}

// objectKey files reports under prefix/report/yyyy/mm/dd
func (e *Executor) objectKey(reportID uuid.UUID, fileName string) string {
	return path.Join(e.config.KeyPrefix, reportID.String(), e.now().UTC().Format("2006/01/02"), fileName)
}
