package notifier

import (
	"context"

	"github.com/rs/zerolog"

	"Cortexa/internal/metrics"
)

// Notifier delivers a message to an operator channel. Notify never fails loudly:
// it reports whether the message was delivered and leaves logging to the caller.
type Notifier interface {
	Notify(ctx context.Context, text string) bool
	Name() string
}

// Chain tries each notifier in order and stops at the first delivery.
type Chain struct {
	notifiers []Notifier
	metrics   *metrics.Recorder
	log       zerolog.Logger
}

// NewChain builds a fallback chain. Nil entries are skipped; m may be nil.
func NewChain(log zerolog.Logger, m *metrics.Recorder, notifiers ...Notifier) *Chain {
	c := &Chain{metrics: m, log: log.With().Str("component", "notifier").Logger()}
	for _, n := range notifiers {
		if n != nil {
			c.notifiers = append(c.notifiers, n)
		}
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Notify logs the message, then tries each channel until one delivers.
func (c *Chain) Notify(ctx context.Context, text string) bool {
	c.log.Info().Str("message", text).Msg("notify")
	sent := false
	for _, n := range c.notifiers {
		if n.Notify(ctx, text) {
			sent = true
			break
		}
		c.log.Warn().Str("channel", n.Name()).Msg("notification not delivered, trying next channel")
	}
	if len(c.notifiers) > 0 {
		c.metrics.RecordNotification(sent)
	}
	return sent
}

// Len returns the number of configured channels.
func (c *Chain) Len() int { return len(c.notifiers) }
