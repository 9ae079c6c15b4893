package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"admissions-portal/portal-backend/internal/reports"
	"admissions-portal/portal-backend/internal/retry"
)

// ReportRunner loads and runs saved reports
type ReportRunner interface {
	GetReport(ctx context.Context, id uuid.UUID) (*reports.ReportDefinition, error)
	RunDefinition(ctx context.Context, report *reports.ReportDefinition) (*reports.RunResult, error)
}

// Widget is one dashboard tile. A widget that failed to load carries Error
// instead of Result.
type Widget struct {
	ReportID uuid.UUID          `json:"report_id"`
	Name     string             `json:"name,omitempty"`
	Result   *reports.RunResult `json:"result,omitempty"`
	Cached   bool               `json:"cached"`
	Error    string             `json:"error,omitempty"`
}

// AggregatorConfig configuration for the aggregator
type AggregatorConfig struct {
	CacheTTL      time.Duration `json:"cache_ttl"`
	Concurrency   int           `json:"concurrency"`
	WidgetTimeout time.Duration `json:"widget_timeout"`
}

// DefaultAggregatorConfig returns default configuration
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		CacheTTL:      5 * time.Minute,
		Concurrency:   5,
		WidgetTimeout: 30 * time.Second,
	}
}

// Aggregator loads dashboard widgets concurrently and caches their results
type Aggregator struct {
	runner ReportRunner
	cache  *AggregateCache
	logger *zap.Logger
	config AggregatorConfig
}

// NewAggregator creates a new aggregator
func NewAggregator(runner ReportRunner, logger *zap.Logger, config AggregatorConfig) *Aggregator {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Aggregator{
		runner: runner,
		cache:  NewAggregateCache(config.CacheTTL),
		logger: logger,
		config: config,
	}
}

// Load runs the given saved reports and returns their widgets in request order.
// Individual failures are reported per widget; only cancellation of ctx fails the call.
func (a *Aggregator) Load(ctx context.Context, reportIDs []uuid.UUID) ([]Widget, error) {
	widgets := make([]Widget, len(reportIDs))

	var g errgroup.Group
	g.SetLimit(a.config.Concurrency)
	for i, id := range reportIDs {
		g.Go(func() error {
			widgets[i] = a.loadWidget(ctx, id)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return widgets, nil
}

func (a *Aggregator) loadWidget(ctx context.Context, id uuid.UUID) Widget {
	widget := Widget{ReportID: id}
	if a.config.WidgetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.WidgetTimeout)
		defer cancel()
	}

	report, err := a.runner.GetReport(ctx, id)
	if err != nil {
		widget.Error = a.widgetError(id, err)
		return widget
	}
	widget.Name = report.Name

	key := cacheKey(report.ID, report.Version)
	if result, ok := a.cache.Get(key); ok {
		widget.Result = result
		widget.Cached = true
		return widget
	}

	result, err := a.runner.RunDefinition(ctx, report)
	if err != nil {
		widget.Error = a.widgetError(id, err)
		return widget
	}
	a.cache.Set(key, result)
	widget.Result = result
	return widget
}

func (a *Aggregator) widgetError(id uuid.UUID, err error) string {
	switch {
	case errors.Is(err, reports.ErrNotFound):
		return "report not found"
	case errors.Is(err, retry.ErrRetriesExhausted):
		a.logger.Warn("Dashboard widget unavailable", zap.String("report_id", id.String()), zap.Error(err))
		return "data temporarily unavailable"
	default:
		a.logger.Error("Failed to load dashboard widget", zap.String("report_id", id.String()), zap.Error(err))
		return "failed to load report"
	}
}

// Invalidate drops cached results for every version of a report
func (a *Aggregator) Invalidate(reportID uuid.UUID) {
	a.cache.DeleteByPrefix(reportID.String() + ":")
}

// CacheStats returns cache statistics
func (a *Aggregator) CacheStats() CacheStats {
	return a.cache.Stats()
}

// Stop releases the cache cleanup goroutine
func (a *Aggregator) Stop() {
	a.cache.Stop()
}

func cacheKey(id uuid.UUID, version int) string {
	return fmt.Sprintf("%s:%d", id, version)
}
