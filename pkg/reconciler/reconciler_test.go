package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) FastForward(context.Context) (int, error) {
	f.calls.Add(1)
	return 1, f.err
}

func TestNewReconcilerValidatesSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{schedule: "*/5 * * * *"},
		{schedule: "@hourly"},
		{schedule: "not cron", wantErr: true},
		{schedule: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			_, err := NewReconciler(&fakeSweeper{}, tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextTick(t *testing.T) {
	r, err := NewReconciler(&fakeSweeper{}, "*/5 * * * *")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 10, 2, 30, 0, time.UTC)
	next, err := r.next(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), next)
}

func TestLoopSweepsOnEveryTick(t *testing.T) {
	sweeper := &fakeSweeper{}
	r, err := NewReconciler(sweeper, "* * * * *")
	require.NoError(t, err)
	r.next = func(now time.Time) (time.Time, error) {
		return now.Add(10 * time.Millisecond), nil
	}

	r.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()

	after := sweeper.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, sweeper.calls.Load())
}

func TestSweepErrorKeepsLoopAlive(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("store closed")}
	r, err := NewReconciler(sweeper, "* * * * *")
	require.NoError(t, err)
	r.next = func(now time.Time) (time.Time, error) {
		return now.Add(5 * time.Millisecond), nil
	}

	r.Start(context.Background())
	defer r.Stop()
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	r, err := NewReconciler(&fakeSweeper{}, "*/5 * * * *")
	require.NoError(t, err)

	r.Stop()
	r.Start(context.Background())
	r.Stop()
	r.Stop()
}
