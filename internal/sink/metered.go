package sink

import (
	"context"

	"github.com/jo25425/dona-sub000/internal/core"
)

type errorCounter interface {
	IncLedgerErrors()
}

// WithErrorCount wraps a Recorder and counts failed writes.
type WithErrorCount struct {
	Recorder
	counter errorCounter
}

func WithMetrics(base Recorder, counter errorCounter) *WithErrorCount {
	return &WithErrorCount{Recorder: base, counter: counter}
}

func (w *WithErrorCount) Record(ctx context.Context, run core.RunRecord) error {
	err := w.Recorder.Record(ctx, run)
	if err != nil && w.counter != nil {
		w.counter.IncLedgerErrors()
	}
	return err
}
