package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dashboard_sync/internal/core"
	"dashboard_sync/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Real instruments so the refresh and staleness gauges are exercised,
	// not skipped on nil.
	if err := telemetry.InitMetrics(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                     {}
func (nopLogger) Info(string, ...interface{})                      {}
func (nopLogger) Warn(string, ...interface{})                      {}
func (nopLogger) Error(string, ...interface{})                     {}
func (nopLogger) Fatal(string, ...interface{})                     {}
func (n nopLogger) WithField(string, interface{}) core.ILogger     { return n }
func (n nopLogger) WithFields(map[string]interface{}) core.ILogger { return n }

func testConfig() Config {
	return Config{
		PollInterval:   50 * time.Millisecond,
		StaleThreshold: 500 * time.Millisecond,
		RefreshTimeout: time.Second,
		PoolSize:       4,
		PoolBuffer:     64,
	}
}

func TestCoordinator_RefreshStoresValue(t *testing.T) {
	c := NewCoordinator(testConfig(), nopLogger{})
	defer c.Stop()

	c.RegisterSlice("stocks", func(ctx context.Context) (interface{}, error) {
		return []string{"RELIANCE", "TCS"}, nil
	})

	require.NoError(t, c.RefreshNow(context.Background(), "stocks"))

	snap, ok := c.Get("stocks")
	require.True(t, ok)
	assert.Equal(t, []string{"RELIANCE", "TCS"}, snap.Value)
	assert.False(t, snap.Stale)
	assert.False(t, snap.LastSuccess.IsZero())
}

func TestCoordinator_CoalescesConcurrentTriggers(t *testing.T) {
	c := NewCoordinator(testConfig(), nopLogger{})
	defer c.Stop()

	var fetches int32
	release := make(chan struct{})
	c.RegisterSlice("signals", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return "v", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.RefreshNow(context.Background(), "signals")
		}()
	}

	// Let all five goroutines reach the in-flight refresh, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches),
		"concurrent triggers for one slice must share a single fetch")
}

func TestCoordinator_PartialFailureKeepsValueAndOthersProceed(t *testing.T) {
	c := NewCoordinator(testConfig(), nopLogger{})
	defer c.Stop()

	failing := int32(0)
	c.RegisterSlice("stocks", func(ctx context.Context) (interface{}, error) {
		if atomic.LoadInt32(&failing) == 1 {
			return nil, errors.New("engine down")
		}
		return "stocks-v1", nil
	})
	c.RegisterSlice("signals", func(ctx context.Context) (interface{}, error) {
		return "signals-v1", nil
	})

	require.NoError(t, c.RefreshNow(context.Background(), "stocks"))
	atomic.StoreInt32(&failing, 1)

	assert.Error(t, c.RefreshNow(context.Background(), "stocks"))
	assert.NoError(t, c.RefreshNow(context.Background(), "signals"))

	stocks, _ := c.Get("stocks")
	assert.Equal(t, "stocks-v1", stocks.Value, "failed refresh retains the previous value")
	assert.True(t, stocks.Stale, "failed refresh flags the slice stale")
	assert.Error(t, stocks.LastErr)

	signals, _ := c.Get("signals")
	assert.False(t, signals.Stale, "other slices proceed unaffected")
}

func TestCoordinator_StaleByAge(t *testing.T) {
	cfg := testConfig()
	cfg.StaleThreshold = 30 * time.Millisecond
	c := NewCoordinator(cfg, nopLogger{})
	defer c.Stop()

	c.RegisterSlice("perf", func(ctx context.Context) (interface{}, error) {
		return 1, nil
	})

	assert.True(t, c.IsStale("perf"), "never-fetched slice reads as stale")

	require.NoError(t, c.RefreshNow(context.Background(), "perf"))
	assert.False(t, c.IsStale("perf"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, c.IsStale("perf"), "slice past the threshold reads as stale")
}

func TestCoordinator_BindEventValidation(t *testing.T) {
	c := NewCoordinator(testConfig(), nopLogger{})
	defer c.Stop()

	c.RegisterSlice("stocks", func(ctx context.Context) (interface{}, error) { return nil, nil })

	assert.NoError(t, c.BindEvent(core.EventPriceAlert, "stocks"))
	assert.Error(t, c.BindEvent(core.EventSignalGenerated, "nope"),
		"binding to an unregistered slice must fail")
	assert.Error(t, c.BindEvent(core.EventSignalGenerated),
		"binding with no slices must fail")
}

func TestCoordinator_HandleEvent(t *testing.T) {
	c := NewCoordinator(testConfig(), nopLogger{})
	defer c.Stop()

	var fetches int32
	c.RegisterSlice("portfolio", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&fetches, 1)
		return nil, nil
	})
	require.NoError(t, c.BindEvent(core.EventPortfolioUpdate, "portfolio"))
	c.IgnoreEvent(core.EventSystemAlert)

	c.HandleEvent(context.Background(), core.EventPortfolioUpdate)
	c.HandleEvent(context.Background(), core.EventSystemAlert) // explicitly ignored
	c.HandleEvent(context.Background(), "unseen_event")        // logged, not fatal

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fetches) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinator_PollingFallback(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 20 * time.Millisecond
	c := NewCoordinator(cfg, nopLogger{})

	var fetches int32
	c.RegisterSlice("stocks", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&fetches, 1)
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	// The poll loop runs with no push connection at all.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fetches) >= 3
	}, time.Second, 10*time.Millisecond)

	c.Stop()
	after := atomic.LoadInt32(&fetches)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&fetches), "no refresh may run after Stop")
}

func TestCoordinator_RefreshAfterStopIsRejected(t *testing.T) {
	c := NewCoordinator(testConfig(), nopLogger{})
	c.RegisterSlice("stocks", func(ctx context.Context) (interface{}, error) { return nil, nil })
	c.Stop()

	assert.Error(t, c.RefreshNow(context.Background(), "stocks"))
}
