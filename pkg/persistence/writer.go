package persistence

import (
	"context"
	"fmt"
	"sync"

	"slackagent/pkg/logx"
)

// DefaultWriterBuffer is the queue depth used when NewWriter gets zero.
const DefaultWriterBuffer = 100

// Writer saves runs on a background goroutine so request handling never
// waits on the database. Submit drops runs when the queue is full.
type Writer struct {
	store  *Store
	ch     chan *Run
	done   chan struct{}
	logger *logx.Logger

	mu     sync.Mutex
	closed bool
}

// NewWriter starts the worker.
func NewWriter(store *Store, buffer int) *Writer {
	if buffer <= 0 {
		buffer = DefaultWriterBuffer
	}
	w := &Writer{
		store:  store,
		ch:     make(chan *Run, buffer),
		done:   make(chan struct{}),
		logger: logx.NewLogger("persistence"),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	w.logger.Debug("Starting persistence worker")
	for run := range w.ch {
		if err := w.store.SaveRun(context.Background(), run); err != nil {
			w.logger.Error("❌ Failed to persist run %s: %v", run.Snapshot.ID, err)
		}
	}
}

// Submit queues run for saving. It reports false when the run was dropped.
func (w *Writer) Submit(run *Run) bool {
	if w == nil || run == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.ch <- run:
		return true
	default:
		w.logger.Warn("⚠️ Persistence queue full, dropping run %s", run.Snapshot.ID)
		return false
	}
}

// Close stops accepting runs and waits for queued ones to be written.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		w.logger.Info("Persistence queue drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for persistence queue to drain: %w", ctx.Err())
	}
}
