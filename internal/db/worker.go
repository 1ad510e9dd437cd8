package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrWorkerClosed is returned by Do after Close has been called.
var ErrWorkerClosed = errors.New("db writer closed")

type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker runs write transactions one at a time on a single goroutine.
// A transaction whose caller context is cancelled before Commit is rolled
// back by database/sql, so an aborted request never leaves partial writes.
type Worker struct {
	db     *sql.DB
	jobs   chan job
	done   chan struct{}
	logger *slog.Logger
	slow   time.Duration

	mu     sync.RWMutex
	closed bool
}

type WorkerOption func(*Worker)

// WithLogger reports transactions slower than threshold.
func WithLogger(l *slog.Logger, threshold time.Duration) WorkerOption {
	return func(w *Worker) {
		w.logger = l
		w.slow = threshold
	}
}

func NewWorker(db *sql.DB, opts ...WorkerOption) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 256),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	go w.loop()
	return w
}

// Close stops accepting jobs, drains the queue and waits for the loop to exit.
// It is safe to call more than once.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<-w.done
}

// Do queues fn and waits for its outcome. Once queued, Do always reports
// what happened to the transaction: a committed write is never reported as
// cancelled. A job whose ctx is already done is skipped, and one cancelled
// mid-flight is rolled back by database/sql, so the wait stays short.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWorkerClosed
	}
	select {
	case w.jobs <- j:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	return <-ch
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		// Skip work nobody is waiting for.
		if err := j.ctx.Err(); err != nil {
			j.ch <- err
			continue
		}
		start := time.Now()
		j.ch <- w.run(j)
		if w.logger != nil && w.slow > 0 {
			if d := time.Since(start); d > w.slow {
				w.logger.Warn("slow write transaction", "duration", d)
			}
		}
	}
}

func (w *Worker) run(j job) error {
	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return err
	}
	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
