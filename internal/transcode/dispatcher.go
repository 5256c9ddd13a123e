package transcode

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jmylchreest/vidarr/internal/models"
	"github.com/jmylchreest/vidarr/internal/observability"
)

// job is one queued transcode request.
type job struct {
	videoID   models.ULID
	inputPath string
}

// Dispatcher runs transcode jobs on a bounded worker pool with a bounded
// admission queue. When the queue is full, Submit rejects immediately:
// transcoding is CPU and disk heavy, so backpressure beats unbounded
// concurrency.
type Dispatcher struct {
	pipeline *Pipeline
	workers  int
	queue    chan job
	logger   *slog.Logger

	// mu excludes Submit's channel send from Stop's close: senders hold
	// the read side, Stop closes the queue under the write side.
	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker count and queue
// depth. Values below 1 are clamped to 1.
func NewDispatcher(pipeline *Pipeline, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		pipeline: pipeline,
		workers:  workers,
		queue:    make(chan job, queueSize),
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = observability.WithComponent(logger, "dispatcher")
	return d
}

// Start launches the worker pool. Workers run until Stop is called or ctx
// is cancelled; jobs already dequeued run to completion.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("dispatcher started",
		slog.Int("workers", d.workers),
		slog.Int("queue_size", cap(d.queue)),
	)
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case j, ok := <-d.queue:
			if !ok {
				return
			}
			d.logger.Info("transcode job started",
				slog.Int("worker", id),
				slog.String("video_id", j.videoID.String()),
			)
			if err := d.pipeline.Transcode(ctx, j.videoID, j.inputPath); err != nil {
				d.logger.Error("transcode job failed",
					slog.Int("worker", id),
					slog.String("video_id", j.videoID.String()),
					slog.Any("error", err),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a transcode job, failing fast with models.ErrQueueFull
// when the admission queue is at capacity.
func (d *Dispatcher) Submit(videoID models.ULID, inputPath string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return models.ErrQueueFull
	}

	// Non-blocking send, so holding the read lock here never blocks Stop
	// for longer than the enqueue itself.
	select {
	case d.queue <- job{videoID: videoID, inputPath: inputPath}:
		return nil
	default:
		return models.ErrQueueFull
	}
}

// QueueDepth returns the number of jobs waiting in the queue.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}
