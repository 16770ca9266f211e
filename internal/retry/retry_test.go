package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := Do(context.Background(), fast, zerolog.Nop(), "test", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("down")
	_, err := Do(context.Background(), fast, zerolog.Nop(), "test", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoPermanentStops(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("rejected")
	_, err := Do(context.Background(), fast, zerolog.Nop(), "test", func(context.Context) (int, error) {
		calls++
		return 0, Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoTimesOutEachAttempt(t *testing.T) {
	t.Parallel()

	p := fast
	p.Attempts = 2
	p.Timeout = 5 * time.Millisecond

	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), p, zerolog.Nop(), "test", func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoHonorsCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, fast, zerolog.Nop(), "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, ctx.Err()
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
