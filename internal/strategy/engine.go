package strategy

import "time"

// Tier is a confidence band for an up-move probability.
type Tier struct {
	MinProba float64
	Label    string
	Emoji    string
}

// Tiers is ordered from the most to the least confident band.
var Tiers = []Tier{
	{0.80, "strong buy", "🟢"},
	{0.65, "buy", "🟢"},
	{0.55, "lean up", "🟡"},
	{0.45, "neutral", "⚪"},
	{0.30, "lean down", "🟠"},
}

// DefaultTier covers probabilities below every band.
var DefaultTier = Tier{0, "avoid", "🔴"}

// TierFor maps a probability to its confidence tier.
func TierFor(proba float64) Tier {
	for _, t := range Tiers {
		if proba >= t.MinProba {
			return t
		}
	}
	return DefaultTier
}

// Signal is the model's view of one symbol at one bar.
type Signal struct {
	Symbol string
	Time   time.Time
	Proba  float64
	Tier   Tier
	Enter  bool
}

// Evaluate builds the signal for the latest probability of a symbol.
func Evaluate(symbol string, at time.Time, proba float64, rule Rule) Signal {
	return Signal{
		Symbol: symbol,
		Time:   at,
		Proba:  proba,
		Tier:   TierFor(proba),
		Enter:  rule.Enter(proba),
	}
}
