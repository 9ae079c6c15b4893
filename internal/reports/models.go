package reports

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"admissions-portal/portal-backend/internal/reports/builder"
)

var (
	// ErrNotFound is returned when a report, schedule, or execution does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest marks request payloads the service rejects
	ErrInvalidRequest = errors.New("invalid request")
)

// =====================================================
// Enums
// =====================================================

// ReportCategory groups saved reports in the library
type ReportCategory string

const (
	ReportCategoryAdmissions ReportCategory = "admissions"
	ReportCategoryEnrollment ReportCategory = "enrollment"
	ReportCategoryMarketing  ReportCategory = "marketing"
	ReportCategoryAcademic   ReportCategory = "academic"
	ReportCategoryPracticum  ReportCategory = "practicum"
	ReportCategoryCustom     ReportCategory = "custom"
)

// ReportVisibility controls who can see a saved report
type ReportVisibility string

const (
	ReportVisibilityPrivate ReportVisibility = "private"
	ReportVisibilityShared  ReportVisibility = "shared"
	ReportVisibilityPublic  ReportVisibility = "public"
)

// ExportFormat is the file format of an exported report
type ExportFormat string

const (
	ExportFormatCSV   ExportFormat = "csv"
	ExportFormatExcel ExportFormat = "excel"
	ExportFormatPDF   ExportFormat = "pdf"
)

// Valid reports whether f is a supported format
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatCSV, ExportFormatExcel, ExportFormatPDF:
		return true
	}
	return false
}

// Extension is the file extension for f
func (f ExportFormat) Extension() string {
	if f == ExportFormatExcel {
		return "xlsx"
	}
	return string(f)
}

// ContentType is the MIME type for f
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ExportFormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// DeliveryMethod is how a scheduled report reaches its recipients
type DeliveryMethod string

const (
	DeliveryMethodEmail        DeliveryMethod = "email"
	DeliveryMethodWebhook      DeliveryMethod = "webhook"
	DeliveryMethodStorage      DeliveryMethod = "storage"
	DeliveryMethodNotification DeliveryMethod = "notification"
)

// ExecutionStatus tracks one report run
type ExecutionStatus string

const (
	ExecutionStatusProcessing ExecutionStatus = "processing"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
)

// =====================================================
// JSON Types for JSONB columns
// =====================================================

// JSONB is a wrapper for JSONB columns
type JSONB map[string]interface{}

// Value implements driver.Valuer
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner
func (j *JSONB) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

// =====================================================
// Persisted Types
// =====================================================

// ReportDefinition is a saved report
type ReportDefinition struct {
	ID          uuid.UUID            `json:"id" db:"id"`
	Name        string               `json:"name" db:"name"`
	Description *string              `json:"description,omitempty" db:"description"`
	Category    ReportCategory       `json:"category" db:"category"`
	Config      builder.ReportConfig `json:"config" db:"config"`
	CreatedBy   *uuid.UUID           `json:"created_by,omitempty" db:"created_by"`
	Visibility  ReportVisibility     `json:"visibility" db:"visibility"`
	SharedWith  pq.StringArray       `json:"shared_with,omitempty" db:"shared_with"`
	Version     int                  `json:"version" db:"version"`
	CreatedAt   time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at" db:"updated_at"`
}

// ReportSchedule runs a saved report on a cron expression
type ReportSchedule struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	ReportDefinitionID uuid.UUID      `json:"report_definition_id" db:"report_definition_id"`
	Name               string         `json:"name" db:"name"`
	CronExpression     string         `json:"cron_expression" db:"cron_expression"`
	Timezone           string         `json:"timezone" db:"timezone"`
	IsActive           bool           `json:"is_active" db:"is_active"`
	Format             ExportFormat   `json:"format" db:"format"`
	DeliveryMethod     DeliveryMethod `json:"delivery_method" db:"delivery_method"`
	RecipientEmails    pq.StringArray `json:"recipient_emails,omitempty" db:"recipient_emails"`
	WebhookURL         *string        `json:"webhook_url,omitempty" db:"webhook_url"`
	LastExecutedAt     *time.Time     `json:"last_executed_at,omitempty" db:"last_executed_at"`
	ExecutionCount     int            `json:"execution_count" db:"execution_count"`
	CreatedBy          *uuid.UUID     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// ReportExecution records one run of a saved report
type ReportExecution struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	ReportDefinitionID uuid.UUID       `json:"report_definition_id" db:"report_definition_id"`
	ScheduleID         *uuid.UUID      `json:"schedule_id,omitempty" db:"schedule_id"`
	Status             ExecutionStatus `json:"status" db:"status"`
	StartedAt          time.Time       `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	RecordCount        *int            `json:"record_count,omitempty" db:"record_count"`
	FileKey            *string         `json:"file_key,omitempty" db:"file_key"`
	ErrorMessage       *string         `json:"error_message,omitempty" db:"error_message"`
	DeliveryStatus     JSONB           `json:"delivery_status,omitempty" db:"delivery_status"`
	DurationMs         *int            `json:"duration_ms,omitempty" db:"duration_ms"`
}

// =====================================================
// Request / Response Types
// =====================================================

// CreateReportRequest saves a new report
type CreateReportRequest struct {
	Name        string               `json:"name" binding:"required"`
	Description *string              `json:"description,omitempty"`
	Category    ReportCategory       `json:"category" binding:"required"`
	Config      builder.ReportConfig `json:"config"`
	Visibility  ReportVisibility     `json:"visibility,omitempty"`
	SharedWith  []string             `json:"shared_with,omitempty"`
}

// UpdateReportRequest changes a saved report
type UpdateReportRequest struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	Category    *ReportCategory       `json:"category,omitempty"`
	Config      *builder.ReportConfig `json:"config,omitempty"`
	Visibility  *ReportVisibility     `json:"visibility,omitempty"`
	SharedWith  []string              `json:"shared_with,omitempty"`
}

// RunReportRequest runs an unsaved configuration from the designer
type RunReportRequest struct {
	Config builder.ReportConfig `json:"config"`
}

// CreateScheduleRequest schedules a saved report
type CreateScheduleRequest struct {
	ReportDefinitionID uuid.UUID      `json:"report_definition_id" binding:"required"`
	Name               string         `json:"name" binding:"required"`
	CronExpression     string         `json:"cron_expression" binding:"required"`
	Timezone           string         `json:"timezone,omitempty"`
	Format             ExportFormat   `json:"format" binding:"required"`
	DeliveryMethod     DeliveryMethod `json:"delivery_method" binding:"required"`
	RecipientEmails    []string       `json:"recipient_emails,omitempty"`
	WebhookURL         *string        `json:"webhook_url,omitempty"`
}

// ReportFilters narrows report listings
type ReportFilters struct {
	Category   *ReportCategory
	Visibility *ReportVisibility
	CreatedBy  *uuid.UUID
	Search     string
	Page       int
	PageSize   int
}

// ReportListResponse is one page of saved reports
type ReportListResponse struct {
	Reports    []*ReportDefinition `json:"reports"`
	TotalCount int                 `json:"total_count"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	HasMore    bool                `json:"has_more"`
}

// RunResult is the shaped output of one report run
type RunResult struct {
	ReportID   *uuid.UUID      `json:"report_id,omitempty"`
	Version    int             `json:"version,omitempty"`
	Result     *builder.Result `json:"result"`
	ExecutedAt time.Time       `json:"executed_at"`
	DurationMs int64           `json:"duration_ms"`
}

// ExportedReport is a rendered report file
type ExportedReport struct {
	FileName    string
	ContentType string
	Data        []byte
}
