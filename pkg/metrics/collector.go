package metrics

import (
	"context"
	"time"
)

// BacklogSource reports how many task store entries are waiting to be
// projected.
type BacklogSource interface {
	TaskBacklog(ctx context.Context) (int, error)
}

// Collector periodically samples gauges that are expensive to keep live
type Collector struct {
	source   BacklogSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source BacklogSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	n, err := c.source.TaskBacklog(ctx)
	if err != nil {
		return
	}
	TaskStoreBacklog.Set(float64(n))
}
