package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pydash/methodref/pkg/config"
	"github.com/pydash/methodref/pkg/kafka"
)

// Publisher is the subset of the Kafka producer the Collector uses.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events on a channel and publishes them to Kafka in
// batches, flushing when a batch fills or the flush interval elapses.
// Track never blocks: events are dropped when the buffer is full.
type Collector struct {
	publisher     Publisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	onDrop        func()
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewCollector creates a Collector. onDrop, if non-nil, is called for every
// dropped event.
func NewCollector(publisher Publisher, cfg config.AnalyticsConfig, onDrop func()) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan any, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		onDrop:        onDrop,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publishing goroutine. It runs until Close is called or
// ctx is cancelled, publishing whatever is still buffered before it exits.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flush(context.Background())
				return
			}
			batch = append(batch, toKafkaEvent(event))
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drainRemaining(&batch)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			return
		}
	}
}

// Track enqueues event for publishing.
func (c *Collector) Track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.onDrop != nil {
			c.onDrop()
		}
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for buffered ones to be published.
// Start must have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainRemaining(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, toKafkaEvent(event))
		default:
			return
		}
	}
}

// toKafkaEvent keys search events by term and lookups by id so that
// per-key ordering holds within a partition.
func toKafkaEvent(event any) kafka.Event {
	switch e := event.(type) {
	case SearchEvent:
		return kafka.Event{Key: "search:" + e.Term, Type: string(EventSearch), Value: e}
	case LookupEvent:
		return kafka.Event{Key: "lookup:" + e.ID, Type: string(EventLookup), Value: e}
	default:
		return kafka.Event{Key: "analytics", Value: event}
	}
}
