// Package worker decouples audit emission from the request path: Emit only
// buffers, and a background loop delivers batches to the sink.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "certverify/pkg/platform/audit"
)

// Worker implements audit.Publisher on top of a RingBuffer.
type Worker struct {
	sink      audit.Publisher
	buffer    *RingBuffer
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	wake      chan struct{}
}

type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithCapacity(n int) Option {
	return func(w *Worker) {
		w.buffer = NewRingBuffer(n)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWorker(sink audit.Publisher, opts ...Option) *Worker {
	w := &Worker{
		sink:      sink,
		buffer:    NewRingBuffer(0),
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Emit buffers event and never blocks on the sink.
func (w *Worker) Emit(_ context.Context, event audit.Event) error {
	event.Normalize(time.Now())
	w.buffer.Enqueue(event)
	if w.buffer.Len() >= w.batchSize {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of buffered events.
func (w *Worker) Pending() int {
	return w.buffer.Len()
}

// Run delivers batches until ctx is done, then flushes what is left with a
// fresh deadline.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			w.Flush(ctx)
		case <-w.wake:
			w.Flush(ctx)
		}
	}
}

// Flush delivers every buffered event. Events the sink rejects are logged and
// dropped.
func (w *Worker) Flush(ctx context.Context) {
	for {
		batch := w.buffer.DequeueBatch(w.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := w.sink.Emit(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit delivery failed",
					"action", event.Action,
					"document_id", event.DocumentID,
					"error", err,
				)
			}
		}
	}
}
