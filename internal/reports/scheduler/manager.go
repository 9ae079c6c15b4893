package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/reports"
)

// JobRunner executes one schedule
type JobRunner interface {
	Execute(ctx context.Context, schedule *reports.ReportSchedule) (*ExecutionResult, error)
}

// ScheduleSource lists the schedules the manager should be running
type ScheduleSource interface {
	ListSchedules(ctx context.Context, reportID *uuid.UUID, activeOnly bool) ([]*reports.ReportSchedule, error)
}

// ScheduleManagerConfig configuration for the schedule manager
type ScheduleManagerConfig struct {
	ReloadInterval time.Duration `json:"reload_interval"`
}

// DefaultScheduleManagerConfig returns default configuration
func DefaultScheduleManagerConfig() ScheduleManagerConfig {
	return ScheduleManagerConfig{ReloadInterval: time.Minute}
}

// JobStatus represents the status of a scheduled job
type JobStatus struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	Name       string    `json:"name"`
	Spec       string    `json:"spec"`
	NextRun    time.Time `json:"next_run"`
	PrevRun    time.Time `json:"prev_run"`
}

type job struct {
	entryID  cron.EntryID
	spec     string
	schedule *reports.ReportSchedule
}

// ScheduleManager keeps one cron entry per active schedule
type ScheduleManager struct {
	cron     *cron.Cron
	jobs     map[uuid.UUID]*job
	runner   JobRunner
	source   ScheduleSource
	logger   *zap.Logger
	config   ScheduleManagerConfig
	mu       sync.RWMutex
	running  bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewScheduleManager creates a new schedule manager
func NewScheduleManager(
	runner JobRunner,
	source ScheduleSource,
	logger *zap.Logger,
	config ScheduleManagerConfig,
) *ScheduleManager {
	cronLogger := NewCronLogger(logger)
	return &ScheduleManager{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:    make(map[uuid.UUID]*job),
		runner:  runner,
		source:  source,
		logger:  logger,
		config:  config,
		baseCtx: context.Background(),
	}
}

// Start loads schedules, starts the cron scheduler and keeps it in sync with
// the database until ctx is done or Stop is called
func (m *ScheduleManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("schedule manager already running")
	}
	m.running = true
	m.baseCtx, m.cancel = context.WithCancel(ctx)
	m.loopDone = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("Starting schedule manager")

	if err := m.Reload(ctx); err != nil {
		m.logger.Error("Initial schedule load failed", zap.Error(err))
	}
	m.cron.Start()

	go m.reloadLoop()
	return nil
}

// Stop stops scheduling and waits for running jobs to finish
func (m *ScheduleManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	done := m.loopDone
	m.mu.Unlock()

	m.logger.Info("Stopping schedule manager")

	<-done
	<-m.cron.Stop().Done()
}

func (m *ScheduleManager) reloadLoop() {
	defer close(m.loopDone)

	interval := m.config.ReloadInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
			if err := m.Reload(m.baseCtx); err != nil {
				m.logger.Error("Failed to reload schedules", zap.Error(err))
			}
		}
	}
}

// Reload syncs cron entries with the active schedules: new schedules are
// added, changed specs replaced, and deleted or paused ones removed
func (m *ScheduleManager) Reload(ctx context.Context) error {
	schedules, err := m.source.ListSchedules(ctx, nil, true)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(schedules))
	for _, s := range schedules {
		seen[s.ID] = true
		if err := m.AddSchedule(s); err != nil {
			m.logger.Warn("Skipping schedule",
				zap.String("schedule_id", s.ID.String()),
				zap.Error(err))
		}
	}

	m.mu.RLock()
	var stale []uuid.UUID
	for id := range m.jobs {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.RemoveSchedule(id)
	}
	return nil
}

// AddSchedule registers schedule, replacing any entry with a different spec
func (m *ScheduleManager) AddSchedule(schedule *reports.ReportSchedule) error {
	spec := reports.ScheduleSpec(schedule)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[schedule.ID]; ok {
		if existing.spec == spec {
			existing.schedule = schedule
			return nil
		}
		m.cron.Remove(existing.entryID)
		delete(m.jobs, schedule.ID)
	}

	id := schedule.ID
	entryID, err := m.cron.AddFunc(spec, func() { m.runJob(id) })
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	m.jobs[id] = &job{entryID: entryID, spec: spec, schedule: schedule}

	m.logger.Info("Added schedule",
		zap.String("schedule_id", id.String()),
		zap.String("spec", spec))
	return nil
}

// RemoveSchedule removes a schedule from the manager
func (m *ScheduleManager) RemoveSchedule(scheduleID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[scheduleID]; ok {
		m.cron.Remove(j.entryID)
		delete(m.jobs, scheduleID)
		m.logger.Info("Removed schedule", zap.String("schedule_id", scheduleID.String()))
	}
}

// RunNow executes a registered schedule immediately
func (m *ScheduleManager) RunNow(ctx context.Context, scheduleID uuid.UUID) (*ExecutionResult, error) {
	m.mu.RLock()
	j, ok := m.jobs[scheduleID]
	m.mu.RUnlock()
	if !ok {
		return nil, reports.ErrNotFound
	}
	return m.runner.Execute(ctx, j.schedule)
}

func (m *ScheduleManager) runJob(scheduleID uuid.UUID) {
	m.mu.RLock()
	j, ok := m.jobs[scheduleID]
	ctx := m.baseCtx
	m.mu.RUnlock()
	if !ok {
		return
	}

	result, err := m.runner.Execute(ctx, j.schedule)
	if err != nil {
		// The executor already logged and notified
		return
	}
	m.logger.Debug("Scheduled job finished",
		zap.String("schedule_id", scheduleID.String()),
		zap.String("execution_id", result.ExecutionID.String()))
}

// GetActiveJobs returns the status of every registered job
func (m *ScheduleManager) GetActiveJobs() []JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]JobStatus, 0, len(m.jobs))
	for id, j := range m.jobs {
		out = append(out, m.status(id, j))
	}
	return out
}

// GetJobStatus returns the status of a scheduled job
func (m *ScheduleManager) GetJobStatus(scheduleID uuid.UUID) (*JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[scheduleID]
	if !ok {
		return nil, fmt.Errorf("job not found: %w", reports.ErrNotFound)
	}
	status := m.status(scheduleID, j)
	return &status, nil
}

func (m *ScheduleManager) status(id uuid.UUID, j *job) JobStatus {
	entry := m.cron.Entry(j.entryID)
	return JobStatus{
		ScheduleID: id,
		Name:       j.schedule.Name,
		Spec:       j.spec,
		NextRun:    entry.Next,
		PrevRun:    entry.Prev,
	}
}

// =====================================================
// Cron logging
// =====================================================

// CronLogger adapts zap to cron.Logger
type CronLogger struct {
	sugar *zap.SugaredLogger
}

// NewCronLogger wraps logger for use by cron
func NewCronLogger(logger *zap.Logger) *CronLogger {
	return &CronLogger{sugar: logger.Named("cron").Sugar()}
}

// Info logs routine scheduler messages at debug level
func (l *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Error logs scheduler errors, including recovered job panics
func (l *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
