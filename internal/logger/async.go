package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered log records on shutdown.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from log I/O. Records are queued on
// a buffered channel and written by a worker pool; when the queue is full
// the record is dropped rather than blocking the caller, because the hot
// paths emitting logs here (frame fan-out, stream ticks) must never stall
// on a slow sink. Queue size and worker count come from config.Logging.
type AsyncHandler struct {
	next    slog.Handler
	queue   chan slog.Record
	workers *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler buffers up to queueSize records and writes them to next
// from workers goroutines.
func NewAsyncHandler(next slog.Handler, queueSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		next:    next,
		queue:   make(chan slog.Record, queueSize),
		workers: &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for i := 0; i < workers; i++ {
		h.workers.Add(1)
		go h.work()
	}
	return h
}

func (h *AsyncHandler) work() {
	defer h.workers.Done()
	for rec := range h.queue {
		_ = h.next.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs wraps the derived inner handler. The queue, worker pool, and
// drop counter are shared so Close drains derived handlers too.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		next:    h.next.WithAttrs(attrs),
		queue:   h.queue,
		workers: h.workers,
		dropped: h.dropped,
	}
}

// WithGroup wraps the derived inner handler, sharing queue state as
// WithAttrs does.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		next:    h.next.WithGroup(name),
		queue:   h.queue,
		workers: h.workers,
		dropped: h.dropped,
	}
}

// Dropped reports how many records were discarded on a full queue.
func (h *AsyncHandler) Dropped() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and waits for the workers to drain the
// queue. Must be called at most once.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.workers.Wait()
}
