package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/broker"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/routine"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/views"
	"github.com/rs/zerolog"
)

// Trigger asks the projector to drain the task store rows of a path
type Trigger struct {
	Path string `json:"path"`
}

// Notice is published after a task has been applied
type Notice struct {
	Path   string       `json:"path"`
	OpID   string       `json:"opId"`
	Action types.Action `json:"action"`
}

// Publisher queues a payload. *broker.Broker satisfies it.
type Publisher interface {
	Push(ctx context.Context, payload []byte, dedupKey string) error
}

// PushTrigger publishes a trigger for path. Pending triggers of the same
// path are collapsed by the broker.
func PushTrigger(ctx context.Context, pub Publisher, path string) error {
	payload, err := json.Marshal(Trigger{Path: path})
	if err != nil {
		return err
	}
	return pub.Push(ctx, payload, path)
}

// Config tunes the projector
type Config struct {
	// BatchSize is the number of task rows fetched per drain round
	BatchSize int

	// PendingRetryDelay is waited before retrying a task whose tables were
	// just created
	PendingRetryDelay time.Duration

	// ScanPageSize is the page size of task store sweeps
	ScanPageSize int
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		BatchSize:         100,
		PendingRetryDelay: 500 * time.Millisecond,
		ScanPageSize:      500,
	}
}

// Projector applies task store rows to the views
type Projector struct {
	exec     *views.Executor
	routine  *routine.Routine
	triggers Publisher
	notices  Publisher
	locks    *pathLocks
	cfg      Config
	logger   zerolog.Logger
}

// New creates a projector. notices may be nil.
func New(exec *views.Executor, r *routine.Routine, triggers, notices Publisher, cfg Config) *Projector {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ScanPageSize <= 0 {
		cfg.ScanPageSize = def.ScanPageSize
	}
	return &Projector{
		exec:     exec,
		routine:  r,
		triggers: triggers,
		notices:  notices,
		locks:    newPathLocks(),
		cfg:      cfg,
		logger:   log.WithComponent("projector"),
	}
}

// Handle processes one trigger message
func (p *Projector) Handle(ctx context.Context, msg *broker.Message) error {
	var t Trigger
	if err := json.Unmarshal(msg.Payload, &t); err != nil || t.Path == "" {
		// Redelivering a malformed trigger can never succeed
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Discarding malformed trigger")
		return nil
	}
	return p.ProjectTask(ctx, t.Path)
}

// ProjectTask drains one batch of pending tasks of path in opID order. If
// the batch was full the trigger is published again for the remainder.
func (p *Projector) ProjectTask(ctx context.Context, path string) error {
	unlock := p.locks.Lock(path)
	timer := metrics.NewTimer()
	full, err := p.drainBatch(ctx, path)
	timer.ObserveDurationVec(metrics.DrainDuration, "trigger")
	unlock()
	if err != nil {
		return err
	}

	if full {
		if err := PushTrigger(ctx, p.triggers, path); err != nil {
			return fmt.Errorf("re-trigger %s: %w", path, err)
		}
	}
	return nil
}

// ForwardCollection drains every pending task of a collection scope. Reads
// call it so they observe all accepted writes.
func (p *Projector) ForwardCollection(ctx context.Context, scope types.Path) error {
	path := scope.CollectionScope().String()

	unlock := p.locks.Lock(path)
	defer unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DrainDuration, "forward")

	for {
		full, err := p.drainBatch(ctx, path)
		if err != nil || !full {
			return err
		}
	}
}

// drainBatch applies up to BatchSize tasks. The caller holds the path lock.
func (p *Projector) drainBatch(ctx context.Context, path string) (bool, error) {
	rs, err := p.exec.Query(ctx, views.TaskList(path, p.cfg.BatchSize))
	if err != nil {
		return false, fmt.Errorf("list tasks of %s: %w", path, err)
	}
	for _, row := range rs.Rows {
		if err := p.applyRow(ctx, path, row); err != nil {
			return false, err
		}
	}
	return len(rs.Rows) >= p.cfg.BatchSize, nil
}

func (p *Projector) applyRow(ctx context.Context, path string, row storage.Row) error {
	opID, _ := row.Keys[views.OpIDColumn].(string)
	logger := log.WithPath(p.logger, path).With().Str("op_id", opID).Logger()

	var d types.Descriptor
	err := json.Unmarshal(row.Value, &d)
	if err == nil {
		err = d.Validate()
	}
	if err != nil {
		// A row that cannot be decoded would block its path forever
		logger.Error().Err(err).Msg("Dropping undecodable task")
		return p.remove(ctx, path, opID)
	}

	_, err = p.routine.Apply(ctx, &d)
	if errors.Is(err, views.ErrTableCreationPending) {
		metrics.TaskPendingRetries.Inc()
		logger.Debug().Err(err).Msg("Tables created, retrying task")
		if err := sleep(ctx, p.cfg.PendingRetryDelay); err != nil {
			return err
		}
		_, err = p.routine.Apply(ctx, &d)
	}
	if err != nil {
		return fmt.Errorf("apply %s on %s: %w", d.OpID, path, err)
	}

	p.notify(ctx, path, &d)
	if err := p.remove(ctx, path, d.OpID); err != nil {
		return err
	}
	metrics.TasksApplied.WithLabelValues(string(d.Action)).Inc()
	logger.Debug().Str("action", string(d.Action)).Msg("Task applied")
	return nil
}

func (p *Projector) remove(ctx context.Context, path, opID string) error {
	if _, err := p.exec.Query(ctx, views.TaskRemove(path, opID)); err != nil {
		return fmt.Errorf("remove task %s of %s: %w", opID, path, err)
	}
	return nil
}

func (p *Projector) notify(ctx context.Context, path string, d *types.Descriptor) {
	if p.notices == nil {
		return
	}
	payload, err := json.Marshal(Notice{Path: path, OpID: d.OpID, Action: d.Action})
	if err == nil {
		err = p.notices.Push(ctx, payload, "")
	}
	if err != nil {
		p.logger.Debug().Err(err).Msg("After-task notice not published")
	}
}

// FastForwardTaskStore publishes one trigger per path that has pending
// tasks. It recovers tasks whose trigger was lost, e.g. in a crash between
// the append and the push.
func (p *Projector) FastForwardTaskStore(ctx context.Context) (int, error) {
	paths, err := p.pendingPaths(ctx)
	if err != nil {
		return 0, err
	}

	for _, path := range paths {
		if err := PushTrigger(ctx, p.triggers, path); err != nil {
			return 0, fmt.Errorf("trigger %s: %w", path, err)
		}
	}
	metrics.FastForwardPaths.Add(float64(len(paths)))
	if len(paths) > 0 {
		p.logger.Info().Int("paths", len(paths)).Msg("Re-triggered pending task store paths")
	}
	return len(paths), nil
}

// DrainTaskStore synchronously projects every pending task of every path.
// It returns the number of paths drained.
func (p *Projector) DrainTaskStore(ctx context.Context) (int, error) {
	paths, err := p.pendingPaths(ctx)
	if err != nil {
		return 0, err
	}
	for _, raw := range paths {
		scope, err := types.ParsePath(raw)
		if err != nil {
			p.logger.Warn().Err(err).Str("path", raw).Msg("Skipping task store path")
			continue
		}
		if err := p.ForwardCollection(ctx, scope); err != nil {
			return 0, fmt.Errorf("drain %s: %w", raw, err)
		}
	}
	return len(paths), nil
}

func (p *Projector) pendingPaths(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	err := p.scan(ctx, func(row storage.Row) {
		if path, ok := row.Keys[views.PathColumn].(string); ok && !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	})
	return paths, err
}

// TaskBacklog counts the rows waiting in the task store
func (p *Projector) TaskBacklog(ctx context.Context) (int, error) {
	n := 0
	err := p.scan(ctx, func(storage.Row) { n++ })
	return n, err
}

func (p *Projector) scan(ctx context.Context, fn func(storage.Row)) error {
	token := ""
	for {
		rs, err := p.exec.Query(ctx, views.TaskScan(p.cfg.ScanPageSize, token))
		if err != nil {
			return fmt.Errorf("scan task store: %w", err)
		}
		for _, row := range rs.Rows {
			fn(row)
		}
		if token = rs.PageToken; token == "" {
			return nil
		}
	}
}

// Run consumes triggers from b until ctx is done
func (p *Projector) Run(ctx context.Context, b *broker.Broker) {
	p.logger.Info().Msg("Projector started")
	b.Run(ctx, p.Handle)
	p.logger.Info().Msg("Projector stopped")
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
