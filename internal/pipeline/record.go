package pipeline

import (
	"time"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/donation"
	"github.com/jo25425/dona-sub000/internal/ingesttrace"
)

// RunRecord summarizes a finished run for the ledger. It carries counters
// and reason codes only.
func RunRecord(trace *ingesttrace.RunTrace, source core.DataSource, res core.AnonymizationResult, err error) core.RunRecord {
	rec := core.RunRecord{
		RunID:      trace.RunID,
		TraceID:    trace.TraceID,
		Source:     source,
		StartedAt:  trace.Started.UTC(),
		DurationMS: time.Since(trace.Started).Milliseconds(),
		Outcome:    core.OutcomeOK,
		Files:      trace.Files,
		Counters:   make(map[string]int64),
	}
	for stage, n := range trace.Counters() {
		rec.Counters[string(stage)] = n
	}
	if err != nil {
		rec.Outcome = core.OutcomeFailed
		rec.Reason = string(donation.Normalize(err).Reason)
		return rec
	}
	rec.Conversations = len(res.AnonymizedConversations)
	return rec
}
