package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("etherscan: 503 service unavailable")

// flaky fails the first n calls with errUpstream.
func flaky(n int, calls *int) func() error {
	return func() error {
		*calls++
		if *calls <= n {
			return errUpstream
		}
		return nil
	}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failFirst int
		wantErr   error
		wantCalls int
	}{
		{"first try", 3, 0, nil, 1},
		{"recovers on third", 3, 2, nil, 3},
		{"exhausted", 3, 5, errUpstream, 3},
		{"zero attempts runs once", 0, 0, nil, 1},
		{"negative attempts runs once", -2, 1, errUpstream, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			err := Do(context.Background(), tt.attempts, time.Millisecond, flaky(tt.failFirst, &calls))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestDo_PermanentReturnsInnerError(t *testing.T) {
	notFound := errors.New("defillama: 404")
	var calls int
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(notFound)
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, notFound, err, "permanent wrapper is stripped")
	assert.False(t, IsPermanent(err))
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	time.AfterFunc(25*time.Millisecond, cancel)
	err := Do(ctx, 10, 200*time.Millisecond, func() error {
		calls.Add(1)
		return errUpstream
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestDo_DelayGrows(t *testing.T) {
	var stamps []time.Time
	err := Do(context.Background(), 4, 20*time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 4 {
			return errUpstream
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, stamps, 4)

	// 20ms, 40ms, 80ms before jitter; the last gap must clear the first
	// one's upper jitter bound.
	first := stamps[1].Sub(stamps[0])
	last := stamps[3].Sub(stamps[2])
	assert.GreaterOrEqual(t, first, 15*time.Millisecond)
	assert.Greater(t, last, 25*time.Millisecond)
}

func TestDoNotify_ReportsEachRetry(t *testing.T) {
	type retried struct {
		attempt int
		wait    time.Duration
	}
	var seen []retried
	err := DoNotify(context.Background(), 3, 4*time.Millisecond, func() error {
		return errUpstream
	}, func(attempt int, err error, wait time.Duration) {
		assert.ErrorIs(t, err, errUpstream)
		seen = append(seen, retried{attempt, wait})
	})

	require.ErrorIs(t, err, errUpstream)
	require.Len(t, seen, 2, "no callback after the final attempt")
	assert.Equal(t, 1, seen[0].attempt)
	assert.Equal(t, 2, seen[1].attempt)
	assert.InDelta(t, 4*time.Millisecond, seen[0].wait, float64(time.Millisecond))
	assert.InDelta(t, 8*time.Millisecond, seen[1].wait, float64(2*time.Millisecond))
}

func TestDoNotify_DelayIsCapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wait time.Duration
	err := DoNotify(ctx, 2, time.Hour, func() error { return errUpstream },
		func(_ int, _ error, w time.Duration) {
			wait = w
			cancel()
		})

	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, wait, MaxDelay*3/4)
	assert.LessOrEqual(t, wait, MaxDelay*5/4)
}

func TestIsPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(errUpstream))
	assert.True(t, IsPermanent(Permanent(errUpstream)))
	assert.True(t, IsPermanent(fmt.Errorf("fetch txlist: %w", Permanent(errUpstream))))
	assert.ErrorIs(t, Permanent(errUpstream), errUpstream)
}

func TestJitterBounds(t *testing.T) {
	for range 200 {
		got := jitter(80 * time.Millisecond)
		require.GreaterOrEqual(t, got, 60*time.Millisecond)
		require.LessOrEqual(t, got, 100*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), jitter(0))
	assert.Equal(t, 3*time.Nanosecond, jitter(3), "spread rounds to zero")
}
