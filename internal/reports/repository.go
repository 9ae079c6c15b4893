package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines the interface for report data access
type Repository interface {
	// Report Definitions
	CreateReportDefinition(ctx context.Context, report *ReportDefinition) error
	GetReportDefinition(ctx context.Context, id uuid.UUID) (*ReportDefinition, error)
	UpdateReportDefinition(ctx context.Context, report *ReportDefinition) error
	DeleteReportDefinition(ctx context.Context, id uuid.UUID) error
	ListReportDefinitions(ctx context.Context, filters *ReportFilters) ([]*ReportDefinition, int, error)

	// Report Schedules
	CreateSchedule(ctx context.Context, schedule *ReportSchedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*ReportSchedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	ListSchedules(ctx context.Context, reportID *uuid.UUID, activeOnly bool) ([]*ReportSchedule, error)
	RecordScheduleRun(ctx context.Context, id uuid.UUID, at time.Time) error

	// Report Executions
	CreateExecution(ctx context.Context, execution *ReportExecution) error
	UpdateExecution(ctx context.Context, execution *ReportExecution) error
	ListExecutions(ctx context.Context, reportID uuid.UUID, limit int) ([]*ReportExecution, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// =====================================================
// Report Definitions
// =====================================================

const reportColumns = `id, name, description, category, config, created_by, visibility,
	shared_with, version, created_at, updated_at`

func (r *PostgresRepository) CreateReportDefinition(ctx context.Context, report *ReportDefinition) error {
	configJSON, err := json.Marshal(report.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		INSERT INTO report_definitions (
			id, name, description, category, config, created_by, visibility,
			shared_with, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		report.ID, report.Name, report.Description, report.Category, configJSON,
		report.CreatedBy, report.Visibility, report.SharedWith, report.Version,
		report.CreatedAt, report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create report definition: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetReportDefinition(ctx context.Context, id uuid.UUID) (*ReportDefinition, error) {
	query := `SELECT ` + reportColumns + ` FROM report_definitions WHERE id = $1`

	report, err := scanReport(r.db.QueryRowxContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report definition %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get report definition: %w", err)
	}
	return report, nil
}

func (r *PostgresRepository) UpdateReportDefinition(ctx context.Context, report *ReportDefinition) error {
	configJSON, err := json.Marshal(report.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		UPDATE report_definitions SET
			name = $2, description = $3, category = $4, config = $5,
			visibility = $6, shared_with = $7, version = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		report.ID, report.Name, report.Description, report.Category, configJSON,
		report.Visibility, report.SharedWith, report.Version, report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update report definition: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("report definition %s: %w", report.ID, ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) DeleteReportDefinition(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM report_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report definition: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("report definition %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) ListReportDefinitions(ctx context.Context, filters *ReportFilters) ([]*ReportDefinition, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filters != nil {
		if filters.Category != nil {
			conditions = append(conditions, fmt.Sprintf("category = $%d", argNum))
			args = append(args, *filters.Category)
			argNum++
		}
		if filters.Visibility != nil {
			conditions = append(conditions, fmt.Sprintf("visibility = $%d", argNum))
			args = append(args, *filters.Visibility)
			argNum++
		}
		if filters.CreatedBy != nil {
			conditions = append(conditions, fmt.Sprintf("created_by = $%d", argNum))
			args = append(args, *filters.CreatedBy)
			argNum++
		}
		if filters.Search != "" {
			conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argNum, argNum))
			args = append(args, "%"+filters.Search+"%")
			argNum++
		}
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM report_definitions " + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count report definitions: %w", err)
	}

	page, pageSize := 1, 20
	if filters != nil {
		if filters.Page > 0 {
			page = filters.Page
		}
		if filters.PageSize > 0 {
			pageSize = filters.PageSize
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM report_definitions %s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		reportColumns, whereClause, argNum, argNum+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list report definitions: %w", err)
	}
	defer rows.Close()

	var reports []*ReportDefinition
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan report definition: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read report definitions: %w", err)
	}
	return reports, total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*ReportDefinition, error) {
	var report ReportDefinition
	var configJSON []byte

	if err := row.Scan(
		&report.ID, &report.Name, &report.Description, &report.Category, &configJSON,
		&report.CreatedBy, &report.Visibility, &report.SharedWith, &report.Version,
		&report.CreatedAt, &report.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(configJSON, &report.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &report, nil
}

// =====================================================
// Report Schedules
// =====================================================

const scheduleColumns = `id, report_definition_id, name, cron_expression, timezone, is_active,
	format, delivery_method, recipient_emails, webhook_url, last_executed_at, execution_count,
	created_by, created_at, updated_at`

func (r *PostgresRepository) CreateSchedule(ctx context.Context, schedule *ReportSchedule) error {
	query := `
		INSERT INTO report_schedules (` + scheduleColumns + `)
		VALUES (:id, :report_definition_id, :name, :cron_expression, :timezone, :is_active,
			:format, :delivery_method, :recipient_emails, :webhook_url, :last_executed_at,
			:execution_count, :created_by, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*ReportSchedule, error) {
	var schedule ReportSchedule
	query := `SELECT ` + scheduleColumns + ` FROM report_schedules WHERE id = $1`
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

func (r *PostgresRepository) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM report_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) ListSchedules(ctx context.Context, reportID *uuid.UUID, activeOnly bool) ([]*ReportSchedule, error) {
	var conditions []string
	var args []interface{}
	if reportID != nil {
		args = append(args, *reportID)
		conditions = append(conditions, fmt.Sprintf("report_definition_id = $%d", len(args)))
	}
	if activeOnly {
		conditions = append(conditions, "is_active = true")
	}

	query := `SELECT ` + scheduleColumns + ` FROM report_schedules`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at"

	var schedules []*ReportSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

func (r *PostgresRepository) RecordScheduleRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE report_schedules SET
			last_executed_at = $2, execution_count = execution_count + 1, updated_at = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to record schedule run: %w", err)
	}
	return nil
}

// =====================================================
// Report Executions
// =====================================================

const executionColumns = `id, report_definition_id, schedule_id, status, started_at, completed_at,
	record_count, file_key, error_message, delivery_status, duration_ms`

func (r *PostgresRepository) CreateExecution(ctx context.Context, execution *ReportExecution) error {
	query := `
		INSERT INTO report_executions (` + executionColumns + `)
		VALUES (:id, :report_definition_id, :schedule_id, :status, :started_at, :completed_at,
			:record_count, :file_key, :error_message, :delivery_status, :duration_ms)
	`
	if _, err := r.db.NamedExecContext(ctx, query, execution); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateExecution(ctx context.Context, execution *ReportExecution) error {
	query := `
		UPDATE report_executions SET
			status = :status, completed_at = :completed_at, record_count = :record_count,
			file_key = :file_key, error_message = :error_message,
			delivery_status = :delivery_status, duration_ms = :duration_ms
		WHERE id = :id
	`
	if _, err := r.db.NamedExecContext(ctx, query, execution); err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListExecutions(ctx context.Context, reportID uuid.UUID, limit int) ([]*ReportExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + executionColumns + ` FROM report_executions
		WHERE report_definition_id = $1 ORDER BY started_at DESC LIMIT $2`

	var executions []*ReportExecution
	if err := r.db.SelectContext(ctx, &executions, query, reportID, limit); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return executions, nil
}
