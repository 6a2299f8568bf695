package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dashboard_sync/internal/config"
	"dashboard_sync/internal/core"
	"dashboard_sync/internal/infrastructure/health"
	"dashboard_sync/internal/notify"
	apperrors "dashboard_sync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                 {}
func (nopLogger) Info(string, ...interface{})                  {}
func (nopLogger) Warn(string, ...interface{})                  {}
func (nopLogger) Error(string, ...interface{})                 {}
func (nopLogger) Fatal(string, ...interface{})                 {}
func (l nopLogger) WithField(string, interface{}) core.ILogger { return l }
func (l nopLogger) WithFields(map[string]interface{}) core.ILogger {
	return l
}

// fakeEngine serves every REST endpoint and counts hits per path.
type fakeEngine struct {
	srv *httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	fe := &fakeEngine{hits: make(map[string]int)}
	responses := map[string]string{
		"/api/stocks":              `{"success":true,"data":[{"symbol":"RELIANCE","price":"2800.00"}]}`,
		"/api/signals":             `{"success":true,"data":[]}`,
		"/api/performance/summary": `{"success":true,"data":{"total_pnl":"0","day_pnl":"0","win_rate":"0","total_trades":0,"open_positions":0}}`,
		"/api/portfolio":           `{"success":true,"data":{"positions":[],"cash_balance":"100000","total_value":"100000"}}`,
		"/api/trades":              `{"success":true,"data":[]}`,
		"/api/health":              `{"success":true,"data":{"status":"ok","uptime_seconds":10}}`,
	}
	fe.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fe.mu.Lock()
		fe.hits[r.URL.Path]++
		fe.mu.Unlock()
		body, ok := responses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(fe.srv.Close)
	return fe
}

func (fe *fakeEngine) hitCount(path string) int {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.hits[path]
}

func newTestService(t *testing.T) (*Service, *fakeEngine) {
	t.Helper()
	fe := newFakeEngine(t)

	cfg := config.DefaultConfig()
	cfg.Engine.BaseURL = fe.srv.URL
	cfg.Websocket.URL = "ws://127.0.0.1:1"
	cfg.Cache.RefreshTimeoutSeconds = 2

	s := NewService(cfg, nopLogger{}, nil)
	t.Cleanup(s.Close)
	return s, fe
}

func TestSignalGeneratedFlow(t *testing.T) {
	s, fe := newTestService(t)

	s.Router().Dispatch(core.InboundMessage{
		Type: core.EventSignalGenerated,
		Data: json.RawMessage(`{"symbol":"RELIANCE","strategy":"momentum","action":"BUY","price":"2800.00","confidence":"82"}`),
	})

	items := s.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, notify.TypeSignal, items[0].Type)
	assert.Contains(t, items[0].Title, "RELIANCE")
	assert.Equal(t, 1, s.Notifications().UnreadCount())

	// The event also invalidates and re-fetches the signals slice.
	require.Eventually(t, func() bool {
		return fe.hitCount("/api/signals") >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSystemAlertSkipsCacheRefresh(t *testing.T) {
	s, fe := newTestService(t)

	s.Router().Dispatch(core.InboundMessage{
		Type: core.EventSystemAlert,
		Data: json.RawMessage(`{"level":"error","message":"strategy engine degraded"}`),
	})

	items := s.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, notify.TypeError, items[0].Type)

	time.Sleep(100 * time.Millisecond)
	for _, path := range []string{"/api/stocks", "/api/signals", "/api/portfolio", "/api/trades"} {
		assert.Zero(t, fe.hitCount(path), "system_alert must not refresh %s", path)
	}
}

func TestTargetHitRefreshesPortfolioAndTrades(t *testing.T) {
	s, fe := newTestService(t)

	s.Router().Dispatch(core.InboundMessage{
		Type: core.EventTargetHit,
		Data: json.RawMessage(`{"symbol":"INFY","price":"1600.00","pnl":"4500.00"}`),
	})

	require.Eventually(t, func() bool {
		return fe.hitCount("/api/portfolio") >= 1 && fe.hitCount("/api/trades") >= 1
	}, 2*time.Second, 10*time.Millisecond)

	items := s.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, notify.TypeSuccess, items[0].Type)
}

func TestMalformedPayloadAddsNoNotification(t *testing.T) {
	s, _ := newTestService(t)

	s.Router().Dispatch(core.InboundMessage{
		Type: core.EventSignalGenerated,
		Data: json.RawMessage(`{"confidence":{"nested":"wrong"}}`),
	})

	assert.Zero(t, s.Notifications().Len())
}

func TestConnectedTransitionResyncsAllSlices(t *testing.T) {
	s, fe := newTestService(t)

	s.onStateChange(core.StateConnecting, core.StateConnected)

	require.Eventually(t, func() bool {
		return fe.hitCount("/api/stocks") >= 1 &&
			fe.hitCount("/api/signals") >= 1 &&
			fe.hitCount("/api/performance/summary") >= 1 &&
			fe.hitCount("/api/portfolio") >= 1 &&
			fe.hitCount("/api/trades") >= 1
	}, 2*time.Second, 10*time.Millisecond)

	items := s.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, notify.TypeInfo, items[0].Type)
}

type fatalRecorder struct {
	nopLogger
	mu     sync.Mutex
	fatals []string
}

func (f *fatalRecorder) Fatal(msg string, _ ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fatals = append(f.fatals, msg)
}
func (f *fatalRecorder) WithField(string, interface{}) core.ILogger     { return f }
func (f *fatalRecorder) WithFields(map[string]interface{}) core.ILogger { return f }

func TestStaticBindingsAllResolve(t *testing.T) {
	fe := newFakeEngine(t)

	cfg := config.DefaultConfig()
	cfg.Engine.BaseURL = fe.srv.URL
	cfg.Websocket.URL = "ws://127.0.0.1:1"

	rec := &fatalRecorder{}
	s := NewService(cfg, rec, nil)
	t.Cleanup(s.Close)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.fatals, "static event bindings must all resolve")
}

func TestBindingToUnknownSliceIsFatal(t *testing.T) {
	s, _ := newTestService(t)

	rec := &fatalRecorder{}
	s.logger = rec
	s.mustBind(core.EventPriceAlert, "no-such-slice")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.fatals, 1)
	assert.Equal(t, "event binding failed", rec.fatals[0])
}

func TestHealthChecksReportSentinels(t *testing.T) {
	fe := newFakeEngine(t)

	cfg := config.DefaultConfig()
	cfg.Engine.BaseURL = fe.srv.URL
	cfg.Websocket.URL = "ws://127.0.0.1:1"

	hm := health.NewHealthManager(nil)
	s := NewService(cfg, nopLogger{}, hm)
	t.Cleanup(s.Close)

	status := hm.GetStatus()
	// Never connected, attempts not exhausted.
	assert.Equal(t, "Unhealthy: "+apperrors.ErrNotConnected.Error(), status["websocket"])
	// No slice has ever been fetched.
	assert.Contains(t, status["cache"], apperrors.ErrSliceStale.Error())
	// The fake engine answers its health endpoint.
	assert.Equal(t, "Healthy", status["engine"])
}

func TestExhaustedReconnectAddsActionableNotification(t *testing.T) {
	s, _ := newTestService(t)

	s.onStateChange(core.StateReconnecting, core.StateDisconnected)

	items := s.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, notify.TypeError, items[0].Type)
	require.NotNil(t, items[0].Action)
	assert.Equal(t, "Reconnect", items[0].Action.Label)
}
