package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jo25425/dona-sub000/internal/core"
)

// Recorder persists run records.
type Recorder interface {
	Record(context.Context, core.RunRecord) error
}

// BufferedRecorder batches run records in front of a slower Recorder. Watch
// mode can finish many small runs in a burst; they reach the ledger in one
// pass once the batch fills or the flush interval elapses.
type BufferedRecorder struct {
	base          Recorder
	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	buffer  []core.RunRecord
	timer   *time.Timer
	closed  bool
	lastErr error
}

type BufferedOptions struct {
	BatchSize     int
	FlushInterval time.Duration
}

func NewBufferedRecorder(base Recorder, opts BufferedOptions) *BufferedRecorder {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 1
	}
	return &BufferedRecorder{
		base:          base,
		batchSize:     batch,
		flushInterval: opts.FlushInterval,
	}
}

// Record queues run. Errors from an earlier timer flush surface here.
func (b *BufferedRecorder) Record(ctx context.Context, run core.RunRecord) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("buffered recorder closed")
	}

	pendingErr := b.lastErr
	b.lastErr = nil

	b.buffer = append(b.buffer, run)
	if len(b.buffer) == 1 && b.flushInterval > 0 {
		b.startTimerLocked()
	}

	if len(b.buffer) < b.batchSize {
		b.mu.Unlock()
		return pendingErr
	}

	runs := append([]core.RunRecord(nil), b.buffer...)
	b.buffer = b.buffer[:0]
	b.stopTimerLocked()
	b.mu.Unlock()

	if err := b.writeAll(ctx, runs); err != nil {
		return err
	}
	return pendingErr
}

// Close flushes anything still queued.
func (b *BufferedRecorder) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.stopTimerLocked()
	runs := append([]core.RunRecord(nil), b.buffer...)
	b.buffer = nil
	pendingErr := b.lastErr
	b.lastErr = nil
	b.mu.Unlock()

	if len(runs) > 0 {
		if err := b.writeAll(context.Background(), runs); err != nil {
			return err
		}
	}
	return pendingErr
}

func (b *BufferedRecorder) onTimer() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.buffer) == 0 {
		b.timer = nil
		b.mu.Unlock()
		return
	}
	runs := append([]core.RunRecord(nil), b.buffer...)
	b.buffer = b.buffer[:0]
	b.timer = nil
	b.mu.Unlock()

	if err := b.writeAll(context.Background(), runs); err != nil {
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
	}
}

func (b *BufferedRecorder) startTimerLocked() {
	if b.flushInterval <= 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.flushInterval, b.onTimer)
}

func (b *BufferedRecorder) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *BufferedRecorder) writeAll(ctx context.Context, runs []core.RunRecord) error {
	for _, run := range runs {
		if err := b.base.Record(ctx, run); err != nil {
			return err
		}
	}
	return nil
}
