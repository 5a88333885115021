package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/broker"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/projector"
	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/routine"
	"github.com/cuemby/burrow/pkg/search"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/views"
	"github.com/rs/zerolog"
)

// Manager is the front door of a burrow node. It owns the store, the
// creation gate, both brokers and the projector.
type Manager struct {
	cfg *config.Config

	store     storage.Store
	gate      *registry.Gate
	exec      *views.Executor
	cipher    *security.Cipher
	routine   *routine.Routine
	search    search.Index
	triggers  *broker.Broker
	notices   *broker.Broker
	projector *projector.Projector
	collector *metrics.Collector
	logger    zerolog.Logger

	subMu       sync.RWMutex
	subscribers map[Subscriber]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager opens the store and wires the components. Nothing runs until
// Start is called, but writes and reads are served immediately.
func NewManager(cfg *config.Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cipher, err := cfg.Cipher()
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	gate := registry.NewGate(store, registry.Config{
		MaxConcurrentCreations: cfg.Registry.MaxConcurrentCreations,
		SettleInterval:         cfg.Registry.SettleInterval.Std(),
		Backoff:                registry.DefaultBackoff,
		DDLRate:                cfg.Registry.DDLRate,
		DDLBurst:               cfg.Registry.DDLBurst,
	})
	tables, err := store.Tables(context.Background())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	for _, def := range tables {
		gate.MarkCreated(def.Name)
	}

	var idx search.Index
	if cfg.Search.Enabled {
		idx = search.NewMemory()
	}

	exec := views.NewExecutor(store, gate)
	r := routine.New(exec, cipher, idx)

	triggers := broker.New(broker.Config{
		Name:            "triggers",
		Buffer:          cfg.Projector.QueueSize,
		Concurrency:     cfg.Projector.Concurrency,
		RedeliveryDelay: cfg.Projector.RedeliveryDelay.Std(),
	})

	// A nil *broker.Broker must not reach the projector as a non-nil Publisher
	var notices *broker.Broker
	var publisher projector.Publisher
	if cfg.Notices.Enabled {
		notices = broker.New(broker.Config{
			Name:       "notices",
			Buffer:     cfg.Notices.QueueSize,
			BestEffort: true,
		})
		publisher = notices
	}

	proj := projector.New(exec, r, triggers, publisher, projector.Config{
		BatchSize:         cfg.Projector.BatchSize,
		PendingRetryDelay: cfg.Projector.PendingRetryDelay.Std(),
		ScanPageSize:      cfg.Projector.ScanPageSize,
	})

	m := &Manager{
		cfg:         cfg,
		store:       store,
		gate:        gate,
		exec:        exec,
		cipher:      cipher,
		routine:     r,
		search:      idx,
		triggers:    triggers,
		notices:     notices,
		projector:   proj,
		collector:   metrics.NewCollector(proj, cfg.Metrics.CollectInterval.Std()),
		logger:      log.WithComponent("manager"),
		subscribers: make(map[Subscriber]bool),
	}

	metrics.Health().Update("store", true, cfg.Backend)
	m.logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("backend", cfg.Backend).
		Int("tables", len(tables)).
		Msg("Store opened")
	return m, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendPebble:
		return storage.NewPebbleStore(cfg.DataDir)
	default:
		return storage.NewBoltStore(cfg.DataDir)
	}
}

// Start runs the projector, the notice fan-out and the metrics collector,
// then re-triggers any task left behind by a previous process.
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.projector.Run(ctx, m.triggers)
	}()

	if m.notices != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.notices.Run(ctx, m.fanOut)
		}()
	}

	if _, err := m.projector.FastForwardTaskStore(ctx); err != nil {
		metrics.Health().Update("projector", false, err.Error())
		return fmt.Errorf("failed to fast-forward task store: %w", err)
	}

	m.collector.Start()
	metrics.Health().Update("projector", true, "running")
	m.logger.Info().Msg("Manager started")
	return nil
}

// Save appends a save of obj at the document path raw and returns its opID.
// The views are updated asynchronously.
func (m *Manager) Save(ctx context.Context, raw string, obj map[string]any, schema types.Schema, opts types.Options) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RequestDuration, string(types.ActionSave))

	p, err := types.ParsePath(raw)
	if err == nil {
		var d *types.Descriptor
		if d, err = types.NewSave(p, obj, schema, opts); err == nil {
			err = m.submit(ctx, d)
			if err == nil {
				countRequest(types.ActionSave, nil)
				return d.OpID, nil
			}
		}
	}
	countRequest(types.ActionSave, err)
	return "", err
}

// Remove appends a removal of the document at raw and returns its opID
func (m *Manager) Remove(ctx context.Context, raw string, schema types.Schema) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RequestDuration, string(types.ActionRemove))

	p, err := types.ParsePath(raw)
	if err == nil {
		var d *types.Descriptor
		if d, err = types.NewRemove(p, schema); err == nil {
			err = m.submit(ctx, d)
			if err == nil {
				countRequest(types.ActionRemove, nil)
				return d.OpID, nil
			}
		}
	}
	countRequest(types.ActionRemove, err)
	return "", err
}

// Get reads a document or a collection scope. Pending writes of the scope
// are projected first. A filter matching nothing yields an empty result.
func (m *Manager) Get(ctx context.Context, raw string, schema types.Schema, opts types.Options) (*routine.Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RequestDuration, string(types.ActionGet))

	res, err := m.get(ctx, raw, schema, opts)
	countRequest(types.ActionGet, err)
	return res, err
}

func (m *Manager) get(ctx context.Context, raw string, schema types.Schema, opts types.Options) (*routine.Result, error) {
	p, err := types.ParsePath(raw)
	if err != nil {
		return nil, err
	}
	d, err := types.NewGet(p, schema, opts)
	if err != nil {
		return nil, err
	}
	res, err := m.routine.Get(ctx, d, m.projector)
	if errors.Is(err, routine.ErrEmptyResult) {
		return &routine.Result{Documents: []types.Document{}}, nil
	}
	return res, err
}

// submit performs the write-ahead append and publishes the trigger. Once
// the append succeeded the write is accepted: a lost trigger is recovered
// by the next fast-forward.
func (m *Manager) submit(ctx context.Context, d *types.Descriptor) error {
	if d.ClearObject != nil {
		enc, err := m.cipher.EncryptObject(d.ClearObject)
		if err != nil {
			return fmt.Errorf("encrypt object: %w", err)
		}
		d.ClearObject, d.EncObject = nil, enc
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	redacted, err := json.Marshal(d.Redacted())
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}

	scope := d.Path().CollectionScope().String()
	ttl := int(m.cfg.Projector.TaskTTL.Std() / time.Second)
	ops := []views.Op{
		views.EventSave(d, redacted),
		views.TaskSave(scope, d.OpID, payload, ttl),
	}

	attempts := m.cfg.Projector.AppendAttempts
	for attempt := 1; ; attempt++ {
		err = m.exec.Isolated(ctx, ops)
		if err == nil {
			break
		}
		if !errors.Is(err, views.ErrTableCreationPending) || attempt >= attempts {
			return fmt.Errorf("append %s: %w", d.OpID, err)
		}
		m.logger.Debug().Str("path", scope).Int("attempt", attempt).Msg("Append tables created, retrying")
	}

	if err := projector.PushTrigger(ctx, m.triggers, scope); err != nil {
		m.logger.Warn().Err(err).Str("path", scope).Str("op_id", d.OpID).Msg("Trigger not published, left to fast-forward")
	}
	return nil
}

// Forward synchronously projects the pending writes of the collection scope
// containing raw.
func (m *Manager) Forward(ctx context.Context, raw string) error {
	p, err := types.ParsePath(raw)
	if err != nil {
		return err
	}
	return m.projector.ForwardCollection(ctx, p)
}

// FastForward re-triggers every path with pending tasks
func (m *Manager) FastForward(ctx context.Context) (int, error) {
	return m.projector.FastForwardTaskStore(ctx)
}

// Drain synchronously projects the whole task store
func (m *Manager) Drain(ctx context.Context) (int, error) {
	return m.projector.DrainTaskStore(ctx)
}

// Backlog returns the number of tasks not yet projected
func (m *Manager) Backlog(ctx context.Context) (int, error) {
	return m.projector.TaskBacklog(ctx)
}

// Shutdown stops the workers and closes the store
func (m *Manager) Shutdown() error {
	m.logger.Info().Msg("Shutting down manager")

	m.triggers.Stop()
	if m.notices != nil {
		m.notices.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.collector.Stop()

	m.subMu.Lock()
	for sub := range m.subscribers {
		delete(m.subscribers, sub)
		close(sub)
	}
	m.subMu.Unlock()

	metrics.Health().Update("projector", false, "stopped")
	metrics.Health().Update("store", false, "closed")
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

func countRequest(action types.Action, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, types.ErrValidation):
		status = "invalid"
	default:
		status = "error"
	}
	metrics.RequestsTotal.WithLabelValues(string(action), status).Inc()
}
