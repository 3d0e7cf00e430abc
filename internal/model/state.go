package model

import "time"

// SchedulerState is the single persisted record of the daily scheduler.
type SchedulerState struct {
	LastRunDate string    `json:"last_run_date"`
	DoneSymbols []string  `json:"done_symbols"`
	RunID       string    `json:"run_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Watermark is the per-symbol state.json written next to the model artifacts.
type Watermark struct {
	LastDate  string    `json:"last_dt"`
	Revision  string    `json:"revision"`
	Interval  string    `json:"interval"`
	Horizon   int       `json:"horizon"`
	Threshold float64   `json:"threshold"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}
