// Package worker runs the ranking broadcaster: a single consumer that turns
// queued broadcast jobs into published top-K snapshots.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/okian/besttime/internal/adapters/mq/queue"
	"github.com/okian/besttime/internal/domain/types"
	"github.com/okian/besttime/pkg/logger"
	"github.com/okian/besttime/pkg/metrics"
)

// Default dispatcher configuration constants.
const (
	defaultChannel        = "ranking_update"
	defaultWindow         = 10
	defaultPublishTimeout = 5 * time.Second
)

// Job abstracts what the dispatcher reads off the queue.
type Job = queue.Job

// SnapshotSource builds the current top-K rows from the live index.
type SnapshotSource interface {
	Snapshot(ctx context.Context, k int) ([]types.RankingRow, error)
}

// Publisher delivers an encoded snapshot on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Queue defines how the dispatcher receives jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Dispatcher consumes broadcast jobs on one goroutine, so snapshots for a
// channel are published in the order their state was observed. Jobs that
// pile up while a snapshot is being published are merged into the next one.
type Dispatcher struct {
	queue     Queue
	source    SnapshotSource
	publisher Publisher

	name           string
	channel        string
	window         int
	publishTimeout time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewDispatcher creates a dispatcher with configuration options.
func NewDispatcher(q Queue, source SnapshotSource, publisher Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:          q,
		source:         source,
		publisher:      publisher,
		name:           "broadcaster",
		channel:        defaultChannel,
		window:         defaultWindow,
		publishTimeout: defaultPublishTimeout,
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
		logger:         logger.Get().Named("broadcaster"),
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes jobs until ctx is cancelled, Shutdown is called, or the
// queue is closed. Jobs still queued when the queue closes are flushed as
// one final snapshot.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	jobs := d.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			merged, open := drain(jobs)
			d.dispatch(ctx, job, merged)
			if !open {
				return
			}
		}
	}
}

// drain pulls every job already waiting without blocking. It reports how
// many were merged and whether the channel is still open.
func drain(jobs <-chan Job) (int, bool) {
	merged := 0
	for {
		select {
		case _, ok := <-jobs:
			if !ok {
				return merged, false
			}
			merged++
		default:
			return merged, true
		}
	}
}

// Shutdown stops the dispatcher and waits for the current publish to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.shutdownOnce.Do(func() { close(d.shutdown) })

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "shutdown timed out", logger.String("dispatcher", d.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// dispatch builds a snapshot from the live index and publishes it.
// Failures are logged and counted; they never reach submitters.
func (d *Dispatcher) dispatch(ctx context.Context, job Job, merged int) {
	if merged > 0 {
		metrics.RecordBroadcastCoalesced(merged)
	}

	start := time.Now()
	rows, err := d.source.Snapshot(ctx, d.window)
	metrics.RecordBroadcastBuildLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordBroadcastFailed()
		metrics.RecordErrorByComponent("broadcaster", "snapshot_error")
		d.logger.Error(ctx, "snapshot build failed",
			logger.String("triggered_by", job.TriggeredBy),
			logger.Error(err),
		)
		return
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		metrics.RecordBroadcastFailed()
		metrics.RecordErrorByComponent("broadcaster", "encode_error")
		d.logger.Error(ctx, "snapshot encode failed", logger.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	if err := d.publisher.Publish(pubCtx, d.channel, payload); err != nil {
		metrics.RecordBroadcastFailed()
		metrics.RecordErrorByComponent("broadcaster", "publish_error")
		d.logger.Error(ctx, "snapshot publish failed",
			logger.String("channel", d.channel),
			logger.Error(err),
		)
		return
	}

	metrics.RecordBroadcastPublished()
	d.logger.Debug(ctx, "snapshot published",
		logger.String("channel", d.channel),
		logger.String("reason", job.Reason),
		logger.String("triggered_by", job.TriggeredBy),
		logger.Int("rank", job.Rank),
		logger.Int("merged", merged),
		logger.Int("rows", len(rows)),
		logger.Duration("queued_for", start.Sub(job.EnqueuedAt)),
	)
}
