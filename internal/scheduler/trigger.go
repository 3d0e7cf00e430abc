package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrBadTrigger = errors.New("invalid trigger")

// Trigger is the time of day at which a batch may start. It is either "HH:MM"
// or a standard five-field cron expression.
type Trigger struct {
	raw      string
	schedule cron.Schedule
}

// ParseTrigger parses "HH:MM" or a cron expression.
func ParseTrigger(runAt string) (*Trigger, error) {
	runAt = strings.TrimSpace(runAt)
	spec := runAt
	if !strings.Contains(runAt, " ") {
		t, err := time.Parse("15:04", runAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is neither HH:MM nor a cron expression", ErrBadTrigger, runAt)
		}
		spec = fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrBadTrigger, runAt, err)
	}
	return &Trigger{raw: runAt, schedule: sched}, nil
}

func (tr *Trigger) String() string { return tr.raw }

// Matches reports whether t lies inside a trigger minute, evaluated in t's location.
func (tr *Trigger) Matches(t time.Time) bool {
	minute := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	return tr.schedule.Next(minute.Add(-time.Second)).Equal(minute)
}

// Next returns the first trigger minute strictly after t.
func (tr *Trigger) Next(t time.Time) time.Time {
	return tr.schedule.Next(t)
}
