package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is one tracked instrument with its latest quote
type Stock struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
}

// Signal is a strategy-generated trade recommendation
type Signal struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Strategy    string          `json:"strategy"`
	Action      string          `json:"action"`
	Price       decimal.Decimal `json:"price"`
	Target      decimal.Decimal `json:"target"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	Confidence  decimal.Decimal `json:"confidence"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// PerformanceSummary aggregates strategy performance
type PerformanceSummary struct {
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	DayPnL        decimal.Decimal `json:"day_pnl"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalTrades   int             `json:"total_trades"`
	OpenPositions int             `json:"open_positions"`
}

// Position is one open portfolio position
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	PnL          decimal.Decimal `json:"pnl"`
	PnLPercent   decimal.Decimal `json:"pnl_percent"`
}

// Portfolio is the account's positions and balances
type Portfolio struct {
	Positions   []Position      `json:"positions"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	TotalValue  decimal.Decimal `json:"total_value"`
}

// Trade is one executed order
type Trade struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Strategy   string          `json:"strategy,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Health reports the engine's liveness
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
