package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/rs/zerolog"
)

// Sweeper re-triggers task store paths with pending work.
// *manager.Manager satisfies it.
type Sweeper interface {
	FastForward(ctx context.Context) (int, error)
}

// Reconciler periodically sweeps the task store on a cron schedule so
// tasks whose trigger was lost do not wait for the next restart.
type Reconciler struct {
	sweeper  Sweeper
	schedule string
	logger   zerolog.Logger

	// next returns the first tick after now
	next func(now time.Time) (time.Time, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconciler creates a reconciler for a standard cron expression
func NewReconciler(sweeper Sweeper, schedule string) (*Reconciler, error) {
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid schedule %q", schedule)
	}
	r := &Reconciler{
		sweeper:  sweeper,
		schedule: schedule,
		logger:   log.WithComponent("reconciler"),
	}
	r.next = func(now time.Time) (time.Time, error) {
		return gronx.NextTickAfter(schedule, now, false)
	}
	return r, nil
}

// Start begins the sweep loop
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
	r.logger.Info().Str("schedule", r.schedule).Msg("Reconciler started")
}

// Stop stops the loop and waits for a running sweep to finish
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reconciler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		now := time.Now().UTC()
		next, err := r.next(now)
		wait := time.Until(next)
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to compute next sweep")
			wait = 30 * time.Second
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		if err == nil {
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one fast-forward pass
func (r *Reconciler) Sweep(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	n, err := r.sweeper.FastForward(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Task store sweep failed")
		return
	}
	r.logger.Debug().Int("paths", n).Msg("Task store swept")
}
