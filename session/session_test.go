package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utcHours() Hours {
	return Hours{Start: 9*time.Hour + 15*time.Minute, End: 15*time.Hour + 30*time.Minute, Loc: time.UTC}
}

func at(day, hour, min int) time.Time {
	return time.Date(2024, 3, day, hour, min, 0, 0, time.UTC)
}

func TestParseHours(t *testing.T) {
	t.Parallel()

	h, err := ParseHours("09:15", "15:30", "Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+15*time.Minute, h.Start)
	assert.Equal(t, "09:15-15:30 Asia/Kolkata", h.String())

	for _, bad := range [][3]string{
		{"9h", "15:30", "UTC"},
		{"09:15", "15:30", "Nowhere/City"},
		{"15:30", "09:15", "UTC"},
	} {
		_, err := ParseHours(bad[0], bad[1], bad[2])
		assert.Error(t, err, bad)
	}
}

func TestHoursWindow(t *testing.T) {
	t.Parallel()

	h := utcHours()
	tests := []struct {
		name    string
		t       time.Time
		in      bool
		cutoff  bool
		trading bool
	}{
		{"before open", at(4, 9, 0), false, false, true},
		{"at open", at(4, 9, 15), true, false, true},
		{"midday", at(4, 12, 0), true, false, true},
		{"at cutoff", at(4, 15, 30), false, true, true},
		{"evening", at(4, 20, 0), false, true, true},
		{"saturday", at(9, 12, 0), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, h.InSession(tt.t))
			assert.Equal(t, tt.cutoff, h.PastCutoff(tt.t))
			assert.Equal(t, tt.trading, h.TradingDay(tt.t))
		})
	}
	assert.Equal(t, "2024-03-04", h.Date(at(4, 23, 59)))
}

func TestNSEZone(t *testing.T) {
	t.Parallel()

	h := NSE()
	// 04:00 UTC is 09:30 IST.
	assert.True(t, h.InSession(at(4, 4, 0)))
	assert.True(t, h.PastCutoff(at(4, 10, 0)))
}

func TestReplayTimes(t *testing.T) {
	t.Parallel()

	h := utcHours()
	bars := []time.Time{
		at(4, 9, 0), // pre-open
		at(4, 10, 0),
		at(4, 10, 5),
		at(5, 11, 0),
		at(9, 11, 0),  // saturday
		at(11, 11, 0), // outside range
	}
	c := NewReplayClock(ReplayTimes(h, bars, at(4, 0, 0), at(9, 0, 0)))
	assert.Equal(t, []time.Time{
		at(4, 10, 0), at(4, 10, 5), at(4, 15, 30),
		at(5, 11, 0), at(5, 15, 30),
	}, c.Times())
}

func TestReplayClockTicks(t *testing.T) {
	t.Parallel()

	c := NewReplayClock([]time.Time{at(4, 11, 0), at(4, 10, 0), at(4, 10, 0)})
	var got []time.Time
	for tk := range c.Ticks(context.Background()) {
		got = append(got, tk)
	}
	assert.Equal(t, []time.Time{at(4, 10, 0), at(4, 11, 0)}, got)
}

func TestReplayClockCancel(t *testing.T) {
	t.Parallel()

	c := NewReplayClock([]time.Time{at(4, 10, 0), at(4, 11, 0)})
	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Ticks(ctx)
	<-ch
	cancel()
	for range ch {
	}
}

func TestCronClock(t *testing.T) {
	t.Parallel()

	c := NewCronClock(time.Second, time.UTC, zerolog.Nop())
	assert.Equal(t, "@every 1s", c.Spec())

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Ticks(ctx)

	select {
	case tk := <-ch:
		assert.False(t, tk.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("no tick")
	}
	cancel()
	for range ch {
	}
}
