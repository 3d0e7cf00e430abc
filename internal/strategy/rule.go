package strategy

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRule is returned by Rule.Validate.
var ErrInvalidRule = errors.New("invalid strategy rule")

// Rule turns model probabilities into long entries and prices each trade.
type Rule struct {
	SignalThreshold float64 `yaml:"signal_threshold" json:"signal_threshold" default:"0.6"`
	Cost            float64 `yaml:"cost" json:"cost" default:"0.001"` // per side, fraction of notional
	Cap             float64 `yaml:"cap" json:"cap" default:"0.3"`     // fraction of equity per trade
}

// DefaultRule returns the production defaults.
func DefaultRule() Rule {
	return Rule{SignalThreshold: 0.6, Cost: 0.001, Cap: 0.3}
}

// Validate checks ranges: threshold in [0,1], cost >= 0, cap in (0,1].
func (r Rule) Validate() error {
	switch {
	case !finite(r.SignalThreshold) || r.SignalThreshold < 0 || r.SignalThreshold > 1:
		return fmt.Errorf("signal threshold %v not in [0,1]: %w", r.SignalThreshold, ErrInvalidRule)
	case !finite(r.Cost) || r.Cost < 0:
		return fmt.Errorf("cost %v must be >= 0: %w", r.Cost, ErrInvalidRule)
	case !finite(r.Cap) || r.Cap <= 0 || r.Cap > 1:
		return fmt.Errorf("cap %v not in (0,1]: %w", r.Cap, ErrInvalidRule)
	}
	return nil
}

// Enter reports whether a probability opens a position.
func (r Rule) Enter(proba float64) bool {
	return proba >= r.SignalThreshold
}

// Signals returns the indices of probabilities that open a position.
func (r Rule) Signals(proba []float64) []int {
	var idx []int
	for i, p := range proba {
		if r.Enter(p) {
			idx = append(idx, i)
		}
	}
	return idx
}

// NetReturn applies position cap and round-trip cost to a raw trade return.
func (r Rule) NetReturn(raw float64) float64 {
	return r.Cap * (raw - 2*r.Cost)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
