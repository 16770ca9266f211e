// Package session knows the exchange trading window and produces the ticks
// that drive the engine, from either a cron schedule or a replay.
package session

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

const dateLayout = "2006-01-02"

// Hours is a daily trading window in one time zone, Monday to Friday.
type Hours struct {
	Start time.Duration // offset from local midnight
	End   time.Duration
	Loc   *time.Location
}

// ParseHours reads "HH:MM" start and end times and an IANA zone name.
func ParseHours(start, end, zone string) (Hours, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Hours{}, fmt.Errorf("session: timezone %q: %w", zone, err)
	}
	s, err := parseClock(start)
	if err != nil {
		return Hours{}, fmt.Errorf("session: start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Hours{}, fmt.Errorf("session: end: %w", err)
	}
	if e <= s {
		return Hours{}, fmt.Errorf("session: end %s not after start %s", end, start)
	}
	return Hours{Start: s, End: e, Loc: loc}, nil
}

// NSE is 09:15 to 15:30 Asia/Kolkata.
func NSE() Hours {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	return Hours{Start: 9*time.Hour + 15*time.Minute, End: 15*time.Hour + 30*time.Minute, Loc: loc}
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (h Hours) loc() *time.Location {
	if h.Loc == nil {
		return time.UTC
	}
	return h.Loc
}

func (h Hours) midnight(t time.Time) time.Time {
	t = t.In(h.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, h.loc())
}

// TradingDay reports whether t falls on a weekday.
func (h Hours) TradingDay(t time.Time) bool {
	switch t.In(h.loc()).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// Date is the session date of t, YYYY-MM-DD in the session zone.
func (h Hours) Date(t time.Time) string { return t.In(h.loc()).Format(dateLayout) }

// OpenAt is the session open on t's day.
func (h Hours) OpenAt(t time.Time) time.Time { return h.midnight(t).Add(h.Start) }

// CloseAt is the session cutoff on t's day.
func (h Hours) CloseAt(t time.Time) time.Time { return h.midnight(t).Add(h.End) }

// InSession reports start <= t < end on a trading day.
func (h Hours) InSession(t time.Time) bool {
	if !h.TradingDay(t) {
		return false
	}
	return !t.Before(h.OpenAt(t)) && t.Before(h.CloseAt(t))
}

// PastCutoff reports t at or after the end of its trading day's session.
func (h Hours) PastCutoff(t time.Time) bool {
	return h.TradingDay(t) && !t.Before(h.CloseAt(t))
}

func (h Hours) String() string {
	return fmt.Sprintf("%s-%s %s", clock(h.Start), clock(h.End), h.loc())
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
