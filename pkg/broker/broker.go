package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by Push once the broker has been stopped
var ErrStopped = errors.New("broker stopped")

// Message is one queued payload
type Message struct {
	ID         string
	Payload    []byte
	DedupKey   string
	Attempt    int
	EnqueuedAt time.Time
}

// Handler processes a message. A nil return acknowledges it; an error
// rejects it and the message is delivered again after the redelivery delay.
type Handler func(ctx context.Context, msg *Message) error

// Config configures a broker
type Config struct {
	// Name labels metrics and logs
	Name string

	// Buffer is the number of messages that can wait for a worker
	Buffer int

	// Concurrency is the number of workers Run starts
	Concurrency int

	// RedeliveryDelay is waited before a rejected message is queued again
	RedeliveryDelay time.Duration

	// BestEffort drops messages when the buffer is full instead of
	// blocking the sender, and never redelivers.
	BestEffort bool
}

// Broker is an in-process queue with a bounded worker pool. While a message
// with a given dedup key waits for a worker, pushes with the same key are
// absorbed by it. Once a worker has taken the message, the key is free
// again so work arriving during handling is not lost.
type Broker struct {
	cfg    Config
	queue  chan *Message
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*Message

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a broker
func New(cfg Config) *Broker {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Broker{
		cfg:     cfg,
		queue:   make(chan *Message, cfg.Buffer),
		logger:  log.WithComponent("broker").With().Str("queue", cfg.Name).Logger(),
		pending: make(map[string]*Message),
		stopCh:  make(chan struct{}),
	}
}

// Push queues payload. Pushes to a best-effort broker never block.
func (b *Broker) Push(ctx context.Context, payload []byte, dedupKey string) error {
	msg := &Message{
		ID:         uuid.NewString(),
		Payload:    payload,
		DedupKey:   dedupKey,
		EnqueuedAt: time.Now(),
	}
	return b.enqueue(ctx, msg)
}

func (b *Broker) enqueue(ctx context.Context, msg *Message) error {
	select {
	case <-b.stopCh:
		return ErrStopped
	default:
	}

	if msg.DedupKey != "" {
		b.mu.Lock()
		if _, ok := b.pending[msg.DedupKey]; ok {
			b.mu.Unlock()
			b.count("deduped")
			return nil
		}
		b.pending[msg.DedupKey] = msg
		b.mu.Unlock()
	}

	if b.cfg.BestEffort {
		select {
		case b.queue <- msg:
			b.count("pushed")
		default:
			b.release(msg)
			b.count("dropped")
		}
		return nil
	}

	select {
	case b.queue <- msg:
		b.count("pushed")
		return nil
	case <-ctx.Done():
		b.release(msg)
		return ctx.Err()
	case <-b.stopCh:
		b.release(msg)
		return ErrStopped
	}
}

// release frees the dedup key held by msg
func (b *Broker) release(msg *Message) {
	if msg.DedupKey == "" {
		return
	}
	b.mu.Lock()
	if b.pending[msg.DedupKey] == msg {
		delete(b.pending, msg.DedupKey)
	}
	b.mu.Unlock()
}

// Run delivers messages to handler on Concurrency workers until ctx is
// cancelled or Stop is called.
func (b *Broker) Run(ctx context.Context, handler Handler) {
	var wg sync.WaitGroup
	for i := 0; i < b.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.work(ctx, handler)
		}()
	}
	wg.Wait()
}

func (b *Broker) work(ctx context.Context, handler Handler) {
	for {
		select {
		case msg := <-b.queue:
			b.release(msg)
			b.deliver(ctx, handler, msg)
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) deliver(ctx context.Context, handler Handler, msg *Message) {
	msg.Attempt++
	err := handler(ctx, msg)
	if err == nil {
		b.count("acked")
		return
	}

	b.count("rejected")
	if b.cfg.BestEffort {
		b.logger.Debug().Err(err).Str("message_id", msg.ID).Msg("Dropping rejected message")
		return
	}

	b.logger.Warn().Err(err).
		Str("message_id", msg.ID).
		Int("attempt", msg.Attempt).
		Dur("delay", b.cfg.RedeliveryDelay).
		Msg("Message rejected, redelivering")

	go b.redeliver(ctx, msg)
}

func (b *Broker) redeliver(ctx context.Context, msg *Message) {
	t := time.NewTimer(b.cfg.RedeliveryDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return
	case <-b.stopCh:
		return
	}

	if err := b.enqueue(ctx, msg); err == nil {
		b.count("redelivered")
	}
}

// Stop stops the workers and rejects further pushes
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Len returns the number of messages waiting for a worker
func (b *Broker) Len() int {
	return len(b.queue)
}

func (b *Broker) count(event string) {
	metrics.BrokerMessagesTotal.WithLabelValues(b.cfg.Name, event).Inc()
}
