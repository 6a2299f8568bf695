// Package engine is the typed REST client for the trading engine. It is the
// authoritative source the cache layer re-fetches from when push events
// invalidate a slice.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"dashboard_sync/internal/config"
	"dashboard_sync/internal/core"
	apperrors "dashboard_sync/pkg/errors"
	apihttp "dashboard_sync/pkg/http"

	"golang.org/x/time/rate"
)

// Envelope is the engine's response wrapper. Data is only meaningful when
// Success is true.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// apiKeySigner attaches the engine API key to every request
type apiKeySigner struct {
	key config.Secret
}

func (s apiKeySigner) SignRequest(req *http.Request) error {
	if v := s.key.Value(); v != "" {
		req.Header.Set("X-API-Key", v)
	}
	return nil
}

// Client calls the engine's REST endpoints with rate limiting, retries, and
// circuit breaking
type Client struct {
	http    *apihttp.Client
	limiter *rate.Limiter
	logger  core.ILogger
}

// NewClient creates an engine client from configuration
func NewClient(cfg config.EngineConfig, logger core.ILogger) *Client {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		http:    apihttp.NewClient(cfg.BaseURL, cfg.Timeout(), apiKeySigner{key: cfg.APIKey}),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.WithField("component", "engine_client"),
	}
}

// getJSON performs the rate-limited GET and unwraps the envelope
func getJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T

	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}

	body, err := c.http.Get(ctx, path, nil)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %v", apperrors.ErrEngineUnavailable, path, err)
	}

	var env Envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedPayload, path, err)
	}
	if !env.Success {
		return zero, fmt.Errorf("engine rejected %s: %s", path, env.Error)
	}
	return env.Data, nil
}

// GetStocks returns the tracked stock list with latest quotes
func (c *Client) GetStocks(ctx context.Context) ([]Stock, error) {
	return getJSON[[]Stock](ctx, c, "/api/stocks")
}

// GetSignals returns recent strategy signals
func (c *Client) GetSignals(ctx context.Context) ([]Signal, error) {
	return getJSON[[]Signal](ctx, c, "/api/signals")
}

// GetPerformanceSummary returns the aggregated performance metrics
func (c *Client) GetPerformanceSummary(ctx context.Context) (PerformanceSummary, error) {
	return getJSON[PerformanceSummary](ctx, c, "/api/performance/summary")
}

// GetPortfolio returns current positions and balances
func (c *Client) GetPortfolio(ctx context.Context) (Portfolio, error) {
	return getJSON[Portfolio](ctx, c, "/api/portfolio")
}

// GetTrades returns recent executed trades
func (c *Client) GetTrades(ctx context.Context) ([]Trade, error) {
	return getJSON[[]Trade](ctx, c, "/api/trades")
}

// GetHealth reports engine liveness
func (c *Client) GetHealth(ctx context.Context) (Health, error) {
	return getJSON[Health](ctx, c, "/api/health")
}
