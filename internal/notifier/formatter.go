package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"Cortexa/internal/model"
	"Cortexa/internal/strategy"
)

// Outcome is one symbol's result inside a batch summary.
type Outcome struct {
	Symbol    string
	Kind      string
	Watermark string
	NoOp      bool
	Signal    *strategy.Signal
}

// FormatStarted announces the scheduler process.
func FormatStarted(trigger, tz string, symbols []string) string {
	return fmt.Sprintf("🟢 <b>Scheduler started</b>\nTrigger: %s (%s)\nSymbols (%d): %s",
		html.EscapeString(trigger), html.EscapeString(tz), len(symbols), html.EscapeString(strings.Join(symbols, ", ")))
}

// FormatStopped announces shutdown.
func FormatStopped() string {
	return "🔴 <b>Scheduler stopped</b>"
}

// FormatTriggered announces the start of a batch.
func FormatTriggered(now time.Time, symbols []string) string {
	return fmt.Sprintf("⏰ <b>Daily update</b> | %s\nUpdating %d symbols", now.Format("2006-01-02 15:04"), len(symbols))
}

// FormatFailure describes one symbol's failure.
func FormatFailure(symbol, kind, message string) string {
	return fmt.Sprintf("❌ <b>%s</b> update failed [%s]\n%s",
		html.EscapeString(symbol), html.EscapeString(kind), html.EscapeString(message))
}

// FormatCompleted summarises a finished batch.
func FormatCompleted(date string, outcomes []Outcome) string {
	var b strings.Builder
	ok := 0
	for _, o := range outcomes {
		if o.Kind == "ok" {
			ok++
		}
	}
	b.WriteString(fmt.Sprintf("✅ <b>Daily update done</b> | %s\nOK: %d | Failed: %d\n\n", date, ok, len(outcomes)-ok))
	for _, o := range outcomes {
		switch {
		case o.Kind != "ok":
			b.WriteString(fmt.Sprintf("  %s: %s\n", html.EscapeString(o.Symbol), html.EscapeString(o.Kind)))
		case o.Signal != nil:
			b.WriteString(fmt.Sprintf("  %s %s: p=%.2f %s (data through %s)\n",
				o.Signal.Tier.Emoji, html.EscapeString(o.Symbol), o.Signal.Proba, o.Signal.Tier.Label, o.Watermark))
		case o.NoOp:
			b.WriteString(fmt.Sprintf("  %s: up to date (%s)\n", html.EscapeString(o.Symbol), o.Watermark))
		default:
			b.WriteString(fmt.Sprintf("  %s: ok (%s)\n", html.EscapeString(o.Symbol), o.Watermark))
		}
	}
	return b.String()
}

// FormatStatus renders the scheduler state record.
func FormatStatus(state model.SchedulerState, next time.Time) string {
	var b strings.Builder
	b.WriteString("📦 <b>Scheduler status</b>\n\n")
	last := state.LastRunDate
	if last == "" {
		last = "never"
	}
	b.WriteString(fmt.Sprintf("Last run: %s\n", last))
	b.WriteString(fmt.Sprintf("Done symbols: %s\n", html.EscapeString(strings.Join(state.DoneSymbols, ", "))))
	if !next.IsZero() {
		b.WriteString(fmt.Sprintf("Next trigger: %s\n", next.Format("2006-01-02 15:04 MST")))
	}
	if !state.UpdatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Updated: %s\n", state.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatSymbols lists the symbols a batch would update.
func FormatSymbols(symbols []string) string {
	return fmt.Sprintf("📋 <b>Symbols</b> (%d)\n%s", len(symbols), html.EscapeString(strings.Join(symbols, ", ")))
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	return "Commands:\n• /status\n• /symbols"
}
