// Package cache keeps named slices of dashboard data fresh. Push events only
// decide which slice to invalidate; the authoritative value always comes back
// from the engine's REST surface. A fixed-interval poll keeps the data moving
// even when push is down.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dashboard_sync/internal/core"
	apperrors "dashboard_sync/pkg/errors"
	"dashboard_sync/pkg/telemetry"

	"github.com/alitto/pond"
	"golang.org/x/sync/singleflight"
)

// FetchFunc pulls the authoritative value of one slice from the engine
type FetchFunc func(ctx context.Context) (interface{}, error)

// Snapshot is a point-in-time view of one slice
type Snapshot struct {
	Value       interface{}
	LastSuccess time.Time
	Stale       bool
	LastErr     error
}

// Config controls refresh behavior
type Config struct {
	PollInterval   time.Duration
	StaleThreshold time.Duration
	RefreshTimeout time.Duration
	PoolSize       int
	PoolBuffer     int
}

type sliceEntry struct {
	fetch FetchFunc

	mu          sync.RWMutex
	value       interface{}
	lastSuccess time.Time
	lastErr     error
	failed      bool
}

// Coordinator maps event types to cache slices and re-pulls them from REST.
type Coordinator struct {
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	cfg     Config

	mu       sync.RWMutex
	slices   map[string]*sliceEntry
	bindings map[string][]string
	ignored  map[string]struct{}
	closed   bool

	group singleflight.Group
	pool  *pond.WorkerPool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator with an idle worker pool. Start begins
// the fallback polling.
func NewCoordinator(cfg Config, logger core.ILogger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 3 * cfg.PollInterval
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.PoolBuffer <= 0 {
		cfg.PoolBuffer = 256
	}

	return &Coordinator{
		logger:   logger.WithField("component", "cache_coordinator"),
		metrics:  telemetry.GetGlobalMetrics(),
		cfg:      cfg,
		slices:   make(map[string]*sliceEntry),
		bindings: make(map[string][]string),
		ignored:  make(map[string]struct{}),
		pool:     pond.New(cfg.PoolSize, cfg.PoolBuffer),
		stopCh:   make(chan struct{}),
	}
}

// RegisterSlice adds a named slice with its fetch function
func (c *Coordinator) RegisterSlice(name string, fetch FetchFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slices[name] = &sliceEntry{fetch: fetch}
	c.metrics.SetSliceStale(name, true) // nothing fetched yet
}

// BindEvent maps an event type to the slices it invalidates
func (c *Coordinator) BindEvent(eventType string, slices ...string) error {
	if len(slices) == 0 {
		return fmt.Errorf("event %q: %w", eventType, errEmptyBinding)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range slices {
		if _, ok := c.slices[name]; !ok {
			return fmt.Errorf("event %q slice %q: %w", eventType, name, apperrors.ErrUnknownSlice)
		}
	}
	c.bindings[eventType] = append([]string(nil), slices...)
	return nil
}

var errEmptyBinding = fmt.Errorf("binding needs at least one slice")

// IgnoreEvent marks an event type as deliberately not invalidating anything
func (c *Coordinator) IgnoreEvent(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignored[eventType] = struct{}{}
}

// HandleEvent refreshes the slices bound to the event type. Event types that
// are neither bound nor explicitly ignored are logged: every invalidation
// type must be accounted for.
func (c *Coordinator) HandleEvent(ctx context.Context, eventType string) {
	c.mu.RLock()
	slices, bound := c.bindings[eventType]
	_, ignored := c.ignored[eventType]
	c.mu.RUnlock()

	if ignored {
		return
	}
	if !bound {
		c.logger.Warn("event type has no slice binding", "type", eventType)
		return
	}
	c.Refresh(ctx, slices...)
}

// Refresh re-fetches the given slices on the worker pool. Triggers for a
// slice with a refresh already in flight join that refresh instead of
// issuing a duplicate fetch.
func (c *Coordinator) Refresh(ctx context.Context, slices ...string) {
	for _, name := range slices {
		name := name
		ok := c.pool.TrySubmit(func() {
			_ = c.RefreshNow(ctx, name)
		})
		if !ok {
			c.logger.Warn("refresh pool saturated, dropping trigger", "slice", name)
		}
	}
}

// RefreshNow synchronously refreshes one slice, coalescing with any refresh
// already in flight, and returns its error.
func (c *Coordinator) RefreshNow(ctx context.Context, name string) error {
	c.mu.RLock()
	entry, ok := c.slices[name]
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return apperrors.ErrManagerClosed
	}
	if !ok {
		c.logger.Warn("refresh requested for unknown slice", "slice", name)
		return fmt.Errorf("slice %q: %w", name, apperrors.ErrUnknownSlice)
	}

	_, err, _ := c.group.Do(name, func() (interface{}, error) {
		return c.fetchSlice(ctx, name, entry)
	})
	return err
}

// RefreshAll refreshes every registered slice
func (c *Coordinator) RefreshAll(ctx context.Context) {
	c.mu.RLock()
	names := make([]string, 0, len(c.slices))
	for name := range c.slices {
		names = append(names, name)
	}
	c.mu.RUnlock()

	c.Refresh(ctx, names...)
}

func (c *Coordinator) fetchSlice(ctx context.Context, name string, entry *sliceEntry) (interface{}, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.RefreshTimeout)
	defer cancel()

	if c.metrics.RefreshesTotal != nil {
		c.metrics.RefreshesTotal.Add(ctx, 1)
	}

	value, err := entry.fetch(fetchCtx)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err != nil {
		// Keep the previous value; the slice is served stale until a
		// refresh succeeds again.
		entry.lastErr = err
		entry.failed = true
		c.metrics.SetSliceStale(name, true)
		if c.metrics.RefreshFailures != nil {
			c.metrics.RefreshFailures.Add(ctx, 1)
		}
		c.logger.Warn("slice refresh failed", "slice", name, "error", err)
		return nil, err
	}

	entry.value = value
	entry.lastSuccess = time.Now()
	entry.lastErr = nil
	entry.failed = false
	c.metrics.SetSliceStale(name, false)
	c.logger.Debug("slice refreshed", "slice", name)
	return value, nil
}

// Get returns the current snapshot of a slice
func (c *Coordinator) Get(name string) (Snapshot, bool) {
	c.mu.RLock()
	entry, ok := c.slices[name]
	c.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return Snapshot{
		Value:       entry.value,
		LastSuccess: entry.lastSuccess,
		Stale:       c.staleLocked(entry),
		LastErr:     entry.lastErr,
	}, true
}

// IsStale reports whether a slice's last successful refresh is too old or its
// latest refresh failed. Unknown slices read as stale.
func (c *Coordinator) IsStale(name string) bool {
	snap, ok := c.Get(name)
	if !ok {
		return true
	}
	return snap.Stale
}

func (c *Coordinator) staleLocked(entry *sliceEntry) bool {
	if entry.failed {
		return true
	}
	if entry.lastSuccess.IsZero() {
		return true
	}
	return time.Since(entry.lastSuccess) > c.cfg.StaleThreshold
}

// SliceNames returns the registered slice names
func (c *Coordinator) SliceNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.slices))
	for name := range c.slices {
		names = append(names, name)
	}
	return names
}

// Start launches the fallback polling loop. It runs until ctx is canceled or
// Stop is called, refreshing all slices each interval regardless of the push
// connection's state.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()

		// Prime the cache immediately instead of waiting one interval.
		c.RefreshAll(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.mu.RLock()
				closed := c.closed
				c.mu.RUnlock()
				if closed {
					return
				}
				c.RefreshAll(ctx)
			}
		}
	}()
}

// Stop cancels the poll loop and drains the worker pool. No refresh runs
// after Stop returns.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.stopCh)
		c.wg.Wait()
		c.pool.StopAndWait()
	})
}
