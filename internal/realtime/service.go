// Package realtime assembles the push connection, event router, notification
// inbox, and cache coordinator into one running dashboard sync service.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dashboard_sync/internal/cache"
	"dashboard_sync/internal/config"
	"dashboard_sync/internal/connection"
	"dashboard_sync/internal/core"
	"dashboard_sync/internal/engine"
	"dashboard_sync/internal/events"
	"dashboard_sync/internal/infrastructure/health"
	"dashboard_sync/internal/notify"
	apperrors "dashboard_sync/pkg/errors"
	"dashboard_sync/pkg/retry"

	"github.com/shopspring/decimal"
)

// Cache slice names
const (
	SliceStocks      = "stocks"
	SliceSignals     = "signals"
	SlicePerformance = "performance"
	SlicePortfolio   = "portfolio"
	SliceTrades      = "trades"
)

// Service owns the realtime sync pipeline and its lifecycle
type Service struct {
	cfg    *config.Config
	logger core.ILogger

	engine  *engine.Client
	manager *connection.Manager
	router  *events.Router
	store   *notify.Store
	cache   *cache.Coordinator

	closeOnce sync.Once
}

// NewService wires the pipeline. Nothing starts until Run.
func NewService(cfg *config.Config, logger core.ILogger, hm *health.HealthManager) *Service {
	log := logger.WithField("component", "realtime_service")

	s := &Service{
		cfg:    cfg,
		logger: log,
		engine: engine.NewClient(cfg.Engine, logger),
		router: events.NewRouter(logger),
		store: notify.NewStore(notify.StoreConfig{
			MaxEntries:      cfg.Notifications.MaxEntries,
			DefaultDuration: cfg.Notifications.DefaultDuration(),
		}, logger),
		cache: cache.NewCoordinator(cache.Config{
			PollInterval:   cfg.Cache.Poll(),
			StaleThreshold: cfg.Cache.Stale(),
			RefreshTimeout: cfg.Cache.RefreshTimeout(),
			PoolSize:       cfg.Cache.WorkerPoolSize,
			PoolBuffer:     cfg.Cache.WorkerPoolBuffer,
		}, logger),
	}

	s.store.AddPresenter(&notify.LogPresenter{Logger: log})

	s.manager = connection.NewManager(connection.Config{
		URL:                  cfg.Websocket.URL,
		HeartbeatInterval:    cfg.Websocket.Heartbeat(),
		ReconnectBaseDelay:   cfg.Websocket.ReconnectBase(),
		ReconnectMaxDelay:    cfg.Websocket.ReconnectMax(),
		MaxReconnectAttempts: cfg.Websocket.MaxReconnectAttempts,
		WriteWait:            cfg.Websocket.WriteWait(),
		HandshakeTimeout:     cfg.Websocket.HandshakeTimeout(),
	}, logger)
	s.manager.SetOnMessage(s.router.Dispatch)
	s.manager.SetOnStateChange(s.onStateChange)

	s.registerSlices()
	s.registerHandlers()
	s.registerHealthChecks(hm)

	return s
}

// Notifications exposes the inbox for the UI layer
func (s *Service) Notifications() *notify.Store { return s.store }

// Cache exposes slice snapshots for the UI layer
func (s *Service) Cache() *cache.Coordinator { return s.cache }

// Connection exposes the push connection manager
func (s *Service) Connection() *connection.Manager { return s.manager }

// Router exposes the event router so embedders can attach extra handlers
func (s *Service) Router() *events.Router { return s.router }

func (s *Service) registerSlices() {
	s.cache.RegisterSlice(SliceStocks, func(ctx context.Context) (interface{}, error) {
		return s.engine.GetStocks(ctx)
	})
	s.cache.RegisterSlice(SliceSignals, func(ctx context.Context) (interface{}, error) {
		return s.engine.GetSignals(ctx)
	})
	s.cache.RegisterSlice(SlicePerformance, func(ctx context.Context) (interface{}, error) {
		return s.engine.GetPerformanceSummary(ctx)
	})
	s.cache.RegisterSlice(SlicePortfolio, func(ctx context.Context) (interface{}, error) {
		return s.engine.GetPortfolio(ctx)
	})
	s.cache.RegisterSlice(SliceTrades, func(ctx context.Context) (interface{}, error) {
		return s.engine.GetTrades(ctx)
	})

	// Push events carry notification payloads, never authoritative data, so
	// each one maps to the slices it invalidates.
	s.mustBind(core.EventSignalGenerated, SliceSignals)
	s.mustBind(core.EventPriceAlert, SliceStocks)
	s.mustBind(core.EventTargetHit, SlicePortfolio, SliceTrades)
	s.mustBind(core.EventStopLossHit, SlicePortfolio, SliceTrades)
	s.mustBind(core.EventPortfolioUpdate, SlicePortfolio, SlicePerformance)
	s.cache.IgnoreEvent(core.EventSystemAlert)
}

// mustBind fails startup on a binding to an unregistered slice. The binding
// table above is static, so an error here is always a programming mistake.
func (s *Service) mustBind(eventType string, slices ...string) {
	if err := s.cache.BindEvent(eventType, slices...); err != nil {
		s.logger.Fatal("event binding failed", "event", eventType, "error", err)
	}
}

func (s *Service) registerHandlers() {
	s.router.Register(core.EventSignalGenerated, "notify", s.onSignalGenerated)
	s.router.Register(core.EventPriceAlert, "notify", s.onPriceAlert)
	s.router.Register(core.EventTargetHit, "notify", s.onTargetHit)
	s.router.Register(core.EventStopLossHit, "notify", s.onStopLossHit)
	s.router.Register(core.EventPortfolioUpdate, "notify", s.onPortfolioUpdate)
	s.router.Register(core.EventSystemAlert, "notify", s.onSystemAlert)

	for _, evt := range []string{
		core.EventSignalGenerated,
		core.EventPriceAlert,
		core.EventTargetHit,
		core.EventStopLossHit,
		core.EventPortfolioUpdate,
		core.EventSystemAlert,
	} {
		s.router.Register(evt, "cache", s.invalidate)
	}
}

func (s *Service) registerHealthChecks(hm *health.HealthManager) {
	if hm == nil {
		return
	}
	hm.Register("websocket", func() error {
		switch st := s.manager.State(); st {
		case core.StateConnected:
			return nil
		case core.StateDisconnected:
			if s.manager.Attempts() >= s.cfg.Websocket.MaxReconnectAttempts {
				return apperrors.ErrReconnectExhausted
			}
			return apperrors.ErrNotConnected
		default:
			return fmt.Errorf("%w: %s", apperrors.ErrNotConnected, st.String())
		}
	})
	hm.Register("cache", func() error {
		for _, name := range s.cache.SliceNames() {
			if s.cache.IsStale(name) {
				return fmt.Errorf("%w: %s", apperrors.ErrSliceStale, name)
			}
		}
		return nil
	})
	hm.Register("engine", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		h, err := s.engine.GetHealth(ctx)
		if err != nil {
			return err
		}
		if h.Status != "ok" && h.Status != "healthy" {
			return fmt.Errorf("engine status %q", h.Status)
		}
		return nil
	})
}

func (s *Service) invalidate(msg core.InboundMessage) {
	s.cache.HandleEvent(context.Background(), msg.Type)
}

type signalPayload struct {
	Symbol     string          `json:"symbol"`
	Strategy   string          `json:"strategy"`
	Action     string          `json:"action"`
	Price      decimal.Decimal `json:"price"`
	Confidence decimal.Decimal `json:"confidence"`
}

func (s *Service) onSignalGenerated(msg core.InboundMessage) {
	var p signalPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		s.logger.Warn("bad signal payload", "error", err)
		return
	}
	s.store.Add(notify.Input{
		Type:    notify.TypeSignal,
		Title:   fmt.Sprintf("%s signal: %s", p.Action, p.Symbol),
		Message: fmt.Sprintf("%s via %s at %s (confidence %s%%)", p.Action, p.Strategy, p.Price, p.Confidence),
		Data:    msg.Data,
	})
}

type priceAlertPayload struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Condition string          `json:"condition"`
	Message   string          `json:"message"`
}

func (s *Service) onPriceAlert(msg core.InboundMessage) {
	var p priceAlertPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		s.logger.Warn("bad price alert payload", "error", err)
		return
	}
	text := p.Message
	if text == "" {
		text = fmt.Sprintf("%s crossed %s (%s)", p.Symbol, p.Price, p.Condition)
	}
	s.store.Add(notify.Input{
		Type:    notify.TypeAlert,
		Title:   "Price alert: " + p.Symbol,
		Message: text,
		Data:    msg.Data,
	})
}

type exitPayload struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	PnL    decimal.Decimal `json:"pnl"`
}

func (s *Service) onTargetHit(msg core.InboundMessage) {
	var p exitPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		s.logger.Warn("bad target hit payload", "error", err)
		return
	}
	s.store.Add(notify.Input{
		Type:    notify.TypeSuccess,
		Title:   "Target hit: " + p.Symbol,
		Message: fmt.Sprintf("Exited %s at %s, P&L %s", p.Symbol, p.Price, p.PnL),
		Data:    msg.Data,
	})
}

func (s *Service) onStopLossHit(msg core.InboundMessage) {
	var p exitPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		s.logger.Warn("bad stop loss payload", "error", err)
		return
	}
	s.store.Add(notify.Input{
		Type:    notify.TypeTrade,
		Title:   "Stop loss hit: " + p.Symbol,
		Message: fmt.Sprintf("Exited %s at %s, P&L %s", p.Symbol, p.Price, p.PnL),
		Data:    msg.Data,
	})
}

type portfolioPayload struct {
	TotalValue decimal.Decimal `json:"total_value"`
	DayPnL     decimal.Decimal `json:"day_pnl"`
}

func (s *Service) onPortfolioUpdate(msg core.InboundMessage) {
	var p portfolioPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		s.logger.Warn("bad portfolio payload", "error", err)
		return
	}
	s.store.Add(notify.Input{
		Type:    notify.TypePortfolio,
		Title:   "Portfolio updated",
		Message: fmt.Sprintf("Value %s, day P&L %s", p.TotalValue, p.DayPnL),
		Data:    msg.Data,
	})
}

type systemAlertPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (s *Service) onSystemAlert(msg core.InboundMessage) {
	var p systemAlertPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		s.logger.Warn("bad system alert payload", "error", err)
		return
	}
	typ := notify.TypeInfo
	if p.Level == "error" || p.Level == "critical" {
		typ = notify.TypeError
	}
	s.store.Add(notify.Input{
		Type:    typ,
		Title:   "System alert",
		Message: p.Message,
		Data:    msg.Data,
	})
}

func (s *Service) onStateChange(from, to core.ConnectionState) {
	switch {
	case to == core.StateConnected && from == core.StateConnecting:
		s.store.Add(notify.Input{
			Type:    notify.TypeInfo,
			Title:   "Realtime connection established",
			Message: "Live updates are active",
		})
		// A gap may have opened while we were away; re-sync everything.
		s.cache.RefreshAll(context.Background())
	case to == core.StateDisconnected && from == core.StateReconnecting:
		s.store.Add(notify.Input{
			Type:    notify.TypeError,
			Title:   "Realtime connection lost",
			Message: "Automatic reconnection failed; showing polled data only",
			Action:  &notify.Action{Label: "Reconnect", Fn: s.manager.Connect},
		})
	case to == core.StateReconnecting:
		s.logger.Warn("push connection interrupted, reconnecting")
	}
}

// Run blocks until the context is cancelled. Polling starts immediately so
// the dashboard has data even if the push connection never comes up.
func (s *Service) Run(ctx context.Context) error {
	s.waitForEngine(ctx)

	s.cache.Start(ctx)
	s.manager.Connect()

	<-ctx.Done()
	s.Close()
	return nil
}

// waitForEngine blocks, with backoff, until the engine answers a health
// probe once. Startup ordering in deployments is not guaranteed.
func (s *Service) waitForEngine(ctx context.Context) {
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts:    10,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}, retry.Always, func(attempt int, err error) {
		s.logger.Warn("engine not ready", "attempt", attempt, "error", err)
	}, func() error {
		probe, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		_, err := s.engine.GetHealth(probe)
		return err
	})
	if err != nil {
		s.logger.Error("engine unreachable at startup, continuing with stale cache", "error", err)
	}
}

// Close tears the pipeline down in dependency order: connection first so no
// new events arrive, then the refresh machinery.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("shutting down realtime service")
		s.manager.Close()
		s.cache.Stop()
	})
}
