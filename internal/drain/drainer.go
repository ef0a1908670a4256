// Package drain implements a bounded-time queue drain loop: poll a batch,
// hand each message to a handler, batch-delete the handled ones, and stop
// when the queue is empty or the execution budget runs out.
package drain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chaincast/internal/transport"
)

// Handler processes one queue message. A non-nil error leaves the message
// in the queue for redelivery after its visibility timeout.
type Handler func(ctx context.Context, msg transport.Message) error

// Stats are per-drain counters for observability.
type Stats struct {
	Processed int
	Polls     int
}

// Config tunes a Drainer. Zero values take the defaults.
type Config struct {
	// BatchSize is how many messages one poll may claim. Default 10.
	BatchSize int
	// PollWait is the long-poll interval. Default 3s.
	PollWait time.Duration
	// FailFast abandons the rest of a batch after the first handler
	// error. The default is fail-isolated: every message in the batch is
	// still attempted.
	FailFast bool
}

const (
	defaultBatchSize = 10
	defaultPollWait  = 3 * time.Second
)

// Drainer drains a queue within a known remaining-time budget, such as one
// scheduled worker invocation.
type Drainer struct {
	queue     transport.Queue
	handle    Handler
	remaining func() time.Duration
	logger    *slog.Logger

	batchSize int
	pollWait  time.Duration
	failFast  bool
}

// New creates a drainer. remaining reports the wall-clock budget left in
// the current invocation; the loop exits once it drops below two poll
// intervals, leaving room for the in-flight poll and one cleanup pass.
func New(queue transport.Queue, handle Handler, remaining func() time.Duration, logger *slog.Logger, cfg Config) *Drainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = defaultPollWait
	}

	return &Drainer{
		queue:     queue,
		handle:    handle,
		remaining: remaining,
		logger:    logger,
		batchSize: cfg.BatchSize,
		pollWait:  cfg.PollWait,
		failFast:  cfg.FailFast,
	}
}

// Drain runs one bounded drain: an initial single-message poll for the
// trigger that woke this invocation, then batch polls until the queue is
// empty or the time budget is spent. It never retries a message within the
// same invocation; redelivery is the queue's job.
func (d *Drainer) Drain(ctx context.Context) (Stats, error) {
	var stats Stats

	trigger, err := d.queue.Receive(ctx, 1, d.pollWait)
	if err != nil {
		return stats, fmt.Errorf("polling for trigger message: %w", err)
	}
	stats.Polls++

	if len(trigger) == 0 {
		// The trigger may have been claimed by a concurrent invocation.
		// Keep draining; the queue may still hold work.
		d.logger.Warn("no trigger message received, draining anyway")
	} else {
		d.processBatch(ctx, trigger, &stats)
	}

	for {
		if d.remaining() < 2*d.pollWait {
			d.logger.Info("time budget spent, stopping drain",
				"processed", stats.Processed,
				"polls", stats.Polls,
			)
			return stats, nil
		}

		messages, err := d.queue.Receive(ctx, d.batchSize, d.pollWait)
		if err != nil {
			return stats, fmt.Errorf("polling queue: %w", err)
		}
		stats.Polls++

		if len(messages) == 0 {
			d.logger.Info("queue drained",
				"processed", stats.Processed,
				"polls", stats.Polls,
			)
			return stats, nil
		}

		d.processBatch(ctx, messages, &stats)
	}
}

// processBatch runs the handler over a batch sequentially, then deletes
// the handled messages in one call. A handler error excludes that message
// from the delete batch; under the default fail-isolated policy the rest
// of the batch is still attempted.
func (d *Drainer) processBatch(ctx context.Context, messages []transport.Message, stats *Stats) {
	handled := make([]string, 0, len(messages))
	attempted := 0

	for _, msg := range messages {
		attempted++

		if err := d.handle(ctx, msg); err != nil {
			d.logger.Error("handler failed, leaving message for redelivery",
				"message_id", msg.ID,
				"error", err,
			)
			if d.failFast {
				d.logger.Warn("abandoning rest of batch",
					"abandoned", len(messages)-attempted,
				)
				break
			}
			continue
		}

		handled = append(handled, msg.ReceiptHandle)
	}

	stats.Processed += attempted

	if err := d.queue.DeleteBatch(ctx, handled); err != nil {
		// Handled messages will be redelivered; the pipeline is
		// at-least-once, so this is lost efficiency, not lost data.
		d.logger.Error("failed to delete handled messages",
			"count", len(handled),
			"error", err,
		)
	}
}
