package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Clock produces tick times. The channel closes when the clock is
// exhausted or ctx is done.
type Clock interface {
	Ticks(ctx context.Context) <-chan time.Time
}

// ReplayClock emits a fixed, ordered list of times. It waits for each tick
// to be received before sending the next, so a replay is deterministic.
type ReplayClock struct {
	times []time.Time
}

func NewReplayClock(times []time.Time) *ReplayClock {
	ts := slices.Clone(times)
	slices.SortFunc(ts, func(a, b time.Time) int { return a.Compare(b) })
	ts = slices.CompactFunc(ts, func(a, b time.Time) bool { return a.Equal(b) })
	return &ReplayClock{times: ts}
}

// ReplayTimes keeps the bar times that fall inside the session between from
// and to (inclusive dates) and adds the cutoff of every trading day seen, so
// the end-of-session close runs once per day.
func ReplayTimes(h Hours, bars []time.Time, from, to time.Time) []time.Time {
	var out []time.Time
	days := map[string]time.Time{}
	lo := h.OpenAt(from)
	hi := h.CloseAt(to)
	for _, t := range bars {
		if t.Before(lo) || t.After(hi) || !h.InSession(t) {
			continue
		}
		out = append(out, t)
		days[h.Date(t)] = t
	}
	for _, t := range days {
		out = append(out, h.CloseAt(t))
	}
	return out
}

// Times returns the schedule.
func (c *ReplayClock) Times() []time.Time { return slices.Clone(c.times) }

func (c *ReplayClock) Ticks(ctx context.Context) <-chan time.Time {
	ch := make(chan time.Time)
	go func() {
		defer close(ch)
		for _, t := range c.times {
			select {
			case <-ctx.Done():
				return
			case ch <- t:
			}
		}
	}()
	return ch
}

// CronClock fires every interval on a cron schedule. A tick that fires while
// the previous one is still being processed is dropped, so ticks never queue
// up behind a slow step.
type CronClock struct {
	Every time.Duration
	Loc   *time.Location
	Log   zerolog.Logger

	now func() time.Time
}

func NewCronClock(every time.Duration, loc *time.Location, log zerolog.Logger) *CronClock {
	return &CronClock{Every: every, Loc: loc, Log: log.With().Str("component", "clock").Logger(), now: time.Now}
}

// Spec is the cron expression for the interval.
func (c *CronClock) Spec() string { return fmt.Sprintf("@every %s", c.Every) }

func (c *CronClock) Ticks(ctx context.Context) <-chan time.Time {
	ch := make(chan time.Time, 1)
	loc := c.Loc
	if loc == nil {
		loc = time.Local
	}
	now := c.now
	if now == nil {
		now = time.Now
	}

	cr := cron.New(cron.WithSeconds(), cron.WithLocation(loc))
	_, err := cr.AddFunc(c.Spec(), func() {
		select {
		case ch <- now().In(loc):
		default:
			c.Log.Warn().Msg("tick dropped, previous step still running")
		}
	})
	if err != nil {
		c.Log.Error().Err(err).Str("schedule", c.Spec()).Msg("bad schedule")
		close(ch)
		return ch
	}

	cr.Start()
	c.Log.Info().Str("schedule", c.Spec()).Msg("clock started")

	go func() {
		<-ctx.Done()
		<-cr.Stop().Done()
		close(ch)
		c.Log.Info().Msg("clock stopped")
	}()
	return ch
}
