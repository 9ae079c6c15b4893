package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRefreshFailed marks a refresh attempt that did not yield a usable session
var ErrRefreshFailed = errors.New("session refresh failed")

// DefaultSettleDelay is the pause after a successful refresh before waiters are released
const DefaultSettleDelay = 100 * time.Millisecond

// Refresher performs the external credential refresh call
type Refresher interface {
	RefreshSession(ctx context.Context) (*Session, error)
}

// Stats is a snapshot of coordinator activity
type Stats struct {
	Refreshing  bool      `json:"refreshing"`
	Refreshes   int64     `json:"refreshes"`
	Failures    int64     `json:"failures"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
}

// refreshCycle is one Idle -> Refreshing -> Idle round trip
type refreshCycle struct {
	waiters []chan struct{}
	ok      bool
}

// Coordinator serializes session refreshes so that concurrent auth-expiry recoveries
// trigger exactly one call to the Refresher. Callers arriving while a refresh is in
// flight are queued and released in arrival order once it settles.
type Coordinator struct {
	refresher   Refresher
	settleDelay time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	current *refreshCycle
	stats   Stats
}

// NewCoordinator creates a refresh coordinator. A negative settle delay is treated as zero.
func NewCoordinator(refresher Refresher, settleDelay time.Duration, logger *zap.Logger) *Coordinator {
	if settleDelay < 0 {
		settleDelay = 0
	}
	return &Coordinator{
		refresher:   refresher,
		settleDelay: settleDelay,
		logger:      logger,
		now:         time.Now,
	}
}

// AwaitIfRefreshing returns immediately when no refresh is in flight; otherwise it blocks
// until the in-flight refresh settles. The only error is ctx.Err() when the caller's
// context ends first; the refresh itself carries on.
func (c *Coordinator) AwaitIfRefreshing(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return nil
	}
	cycle, done := c.enqueueLocked()
	c.mu.Unlock()

	_, err := c.wait(ctx, cycle, done)
	return err
}

// Refresh runs the single in-flight refresh, or joins the one already running.
// It reports whether that refresh produced a valid session.
func (c *Coordinator) Refresh(ctx context.Context) bool {
	c.mu.Lock()
	if c.current != nil {
		cycle, done := c.enqueueLocked()
		c.mu.Unlock()
		ok, err := c.wait(ctx, cycle, done)
		return err == nil && ok
	}
	cycle := &refreshCycle{}
	c.current = cycle
	c.stats.Refreshing = true
	c.mu.Unlock()

	ok := false
	defer c.settle(cycle, &ok)

	sess, err := c.refresher.RefreshSession(ctx)
	switch {
	case err != nil:
		c.logger.Warn("Session refresh failed", zap.Error(err))
		return false
	case !sess.Valid(c.now()):
		c.logger.Warn("Session refresh returned no valid session", zap.Error(ErrRefreshFailed))
		return false
	}

	ok = true
	if c.settleDelay > 0 {
		t := time.NewTimer(c.settleDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	c.logger.Debug("Session refreshed", zap.Time("expires_at", sess.ExpiresAt))
	return true
}

// Stats returns a snapshot of refresh activity
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) enqueueLocked() (*refreshCycle, chan struct{}) {
	done := make(chan struct{})
	c.current.waiters = append(c.current.waiters, done)
	return c.current, done
}

func (c *Coordinator) wait(ctx context.Context, cycle *refreshCycle, done chan struct{}) (bool, error) {
	select {
	case <-done:
		c.mu.Lock()
		ok := cycle.ok
		c.mu.Unlock()
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// settle returns the coordinator to idle and drains the queue in FIFO order
func (c *Coordinator) settle(cycle *refreshCycle, ok *bool) {
	c.mu.Lock()
	cycle.ok = *ok
	c.current = nil
	c.stats.Refreshing = false
	c.stats.Refreshes++
	if !*ok {
		c.stats.Failures++
	} else {
		c.stats.LastRefresh = c.now()
	}
	waiters := cycle.waiters
	cycle.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if len(waiters) > 0 {
		c.logger.Debug("Released refresh waiters", zap.Int("count", len(waiters)))
	}
}
