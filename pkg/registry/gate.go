package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Creator issues the DDL for a table. storage.Store satisfies it.
type Creator interface {
	CreateTable(ctx context.Context, def storage.TableDef) error
}

// State is the lifecycle of one table creation
type State int

const (
	StateUnstarted State = iota
	StateRunning
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unstarted"
	}
}

// DefaultBackoff is the delay before each creation attempt
var DefaultBackoff = []time.Duration{0, 1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}

// Config tunes the gate
type Config struct {
	// MaxConcurrentCreations bounds DDL in flight across all tables
	MaxConcurrentCreations int

	// SettleInterval is waited by callers that find a table already done
	SettleInterval time.Duration

	// Backoff holds one delay per attempt; the first is usually zero
	Backoff []time.Duration

	// DDLRate and DDLBurst pace creation statements. Zero disables pacing.
	DDLRate  float64
	DDLBurst int
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		MaxConcurrentCreations: 4,
		SettleInterval:         100 * time.Millisecond,
		Backoff:                DefaultBackoff,
		DDLRate:                20,
		DDLBurst:               5,
	}
}

// creation is shared by the creator of a table and every caller that
// arrives while it runs. done is closed once err is final.
type creation struct {
	state State
	done  chan struct{}
	err   error
}

// Gate collapses concurrent creations of the same table into one and
// bounds creations in flight process-wide. Queued creators are admitted
// in arrival order.
type Gate struct {
	creator Creator
	cfg     Config
	slots   *semaphore.Weighted
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu     sync.Mutex
	tables map[string]*creation
}

// NewGate creates a gate issuing DDL through creator
func NewGate(creator Creator, cfg Config) *Gate {
	if cfg.MaxConcurrentCreations <= 0 {
		cfg.MaxConcurrentCreations = 1
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{0}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.DDLRate > 0 {
		burst := cfg.DDLBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.DDLRate), burst)
	}

	return &Gate{
		creator: creator,
		cfg:     cfg,
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrentCreations)),
		limiter: limiter,
		logger:  log.WithComponent("registry"),
		tables:  make(map[string]*creation),
	}
}

// MarkCreated records tables known to exist, e.g. from the store catalog
func (g *Gate) MarkCreated(names ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range names {
		c := &creation{state: StateDone, done: make(chan struct{})}
		close(c.done)
		g.tables[name] = c
	}
}

// State reports the creation state of a table
func (g *Gate) State(name string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.tables[name]; ok {
		return c.state
	}
	return StateUnstarted
}

// CreateTable ensures def exists. The first caller for a table starts the
// creation; it and every caller arriving meanwhile wait for the same
// outcome. The creation is detached from the starting caller's
// cancellation, so a caller giving up only stops its own wait. A table
// whose creation failed is attempted again by the next caller.
func (g *Gate) CreateTable(ctx context.Context, def storage.TableDef) error {
	g.mu.Lock()
	c, ok := g.tables[def.Name]
	if ok {
		switch c.state {
		case StateDone:
			g.mu.Unlock()
			return sleep(ctx, g.cfg.SettleInterval)
		case StateRunning:
			g.mu.Unlock()
			metrics.TableCreationWaiters.Inc()
			return c.wait(ctx)
		}
	}

	c = &creation{state: StateRunning, done: make(chan struct{})}
	g.tables[def.Name] = c
	g.mu.Unlock()

	go g.run(context.WithoutCancel(ctx), c, def)
	return c.wait(ctx)
}

func (c *creation) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) run(ctx context.Context, c *creation, def storage.TableDef) {
	err := g.create(ctx, def)

	g.mu.Lock()
	c.err = err
	if err != nil {
		c.state = StateFailed
	} else {
		c.state = StateDone
	}
	g.mu.Unlock()
	close(c.done)
}

func (g *Gate) create(ctx context.Context, def storage.TableDef) error {
	logger := log.WithTable(g.logger, def.Name)

	if err := g.slots.Acquire(ctx, 1); err != nil {
		metrics.TableCreationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("waiting for creation slot for %s: %w", def.Name, err)
	}
	defer g.slots.Release(1)

	metrics.TableCreationsInFlight.Inc()
	defer metrics.TableCreationsInFlight.Dec()

	var (
		err      error
		attempts int
	)
	for _, delay := range g.cfg.Backoff {
		if err = sleep(ctx, delay); err != nil {
			break
		}
		if err = g.limiter.Wait(ctx); err != nil {
			break
		}

		attempts++
		if err = g.creator.CreateTable(ctx, def); err == nil {
			metrics.TableCreationsTotal.WithLabelValues("created").Inc()
			logger.Info().Int("attempt", attempts).Msg("Table created")
			return nil
		}
		logger.Warn().Err(err).Int("attempt", attempts).Msg("Table creation failed")
	}

	metrics.TableCreationsTotal.WithLabelValues("failed").Inc()
	return fmt.Errorf("create table %s: giving up after %d attempts: %w", def.Name, attempts, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
