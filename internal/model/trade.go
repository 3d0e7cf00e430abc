package model

import "time"

// Prediction is one bar of a backtest input table: the realized forward return
// over the strategy horizon and the model's probability of an up move.
type Prediction struct {
	Time          time.Time
	ForwardReturn float64
	Proba         float64
}

// Trade is one simulated long position opened on a signal bar and closed horizon bars later.
type Trade struct {
	SignalIndex int
	ExitIndex   int
	SignalTime  time.Time
	ExitTime    time.Time
	RawReturn   float64 // realized forward return, before cost and cap
	NetReturn   float64 // cap * (raw - 2*cost)
}

// StrategyMetrics summarises a backtest run.
type StrategyMetrics struct {
	Trades      int     `json:"n_trades"`
	HitRate     float64 `json:"hit_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"mdd"` // <= 0
	EquityLast  float64 `json:"equity_last"`
}

// EquityPoint is one bar of an equity curve.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}
