package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	t.Parallel()

	err := E(DataUnavailable, "feed.snapshot", errors.New("timeout"))
	wrapped := fmt.Errorf("tick: %w", err)

	assert.ErrorIs(t, wrapped, ErrDataUnavailable)
	assert.NotErrorIs(t, wrapped, ErrExecutionFailed)
	assert.Equal(t, DataUnavailable, KindOf(wrapped))
	assert.Contains(t, err.Error(), "feed.snapshot")
	assert.Contains(t, err.Error(), "timeout")
}

func TestUnwrapReachesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("broker down")
	err := E(ExecutionFailed, "submit", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{DataUnavailable, false},
		{ExecutionFailed, false},
		{RiskLimitBreached, false},
		{ConfigInvalid, true},
		{StateCorruption, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.fatal, IsFatal(E(tt.kind, "op", nil)))
		})
	}

	assert.False(t, IsFatal(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
}
