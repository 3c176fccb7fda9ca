package core

import "time"

// Run outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// RunRecord is the ledger entry for one pipeline run. It holds counts and
// reason codes, never names or text.
type RunRecord struct {
	RunID         string           `json:"run_id"`
	TraceID       string           `json:"trace_id"`
	Source        DataSource       `json:"source"`
	StartedAt     time.Time        `json:"started_at"`
	DurationMS    int64            `json:"duration_ms"`
	Outcome       string           `json:"outcome"`
	Reason        string           `json:"reason,omitempty"`
	Files         int              `json:"files"`
	Conversations int              `json:"conversations"`
	Counters      map[string]int64 `json:"counters"`
	Output        string           `json:"output,omitempty"`
}
