package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkg/errors"

	"github.com/jo25425/dona-sub000/internal/core"
	"github.com/jo25425/dona-sub000/internal/httpapi"
)

const schema = `CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT NOT NULL PRIMARY KEY,
  trace_id TEXT NOT NULL,
  source TEXT NOT NULL,
  started_at TEXT NOT NULL,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  outcome TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  files INTEGER NOT NULL DEFAULT 0,
  conversations INTEGER NOT NULL DEFAULT 0,
  counters_json TEXT NOT NULL DEFAULT '{}',
  output TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);`

// Ledger is the SQLite run history. It stores run metadata only.
type Ledger struct {
	db *sql.DB
}

const defaultListLimit = 100

// tsLayout is fixed width so started_at sorts lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OpenLedger opens or creates the ledger at path. tuning enables the
// optional pragma set.
func OpenLedger(path string, tuning bool) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	if err := migrateLedger(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if tuning {
		ApplySQLitePragmas(context.Background(), db)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Record inserts run. A run id already present is left untouched.
func (l *Ledger) Record(ctx context.Context, run core.RunRecord) error {
	const q = `INSERT INTO runs (run_id, trace_id, source, started_at, duration_ms, outcome, reason, files, conversations, counters_json, output)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO NOTHING;`
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return errors.Wrap(err, "encode counters")
	}
	if run.Counters == nil {
		counters = []byte("{}")
	}
	ts := run.StartedAt.UTC().Format(tsLayout)
	_, err = l.db.ExecContext(ctx, q, run.RunID, run.TraceID, string(run.Source), ts, run.DurationMS,
		run.Outcome, run.Reason, run.Files, run.Conversations, string(counters), run.Output)
	return errors.Wrap(err, "insert run")
}

func (l *Ledger) Ping() error {
	return l.db.Ping()
}

func (l *Ledger) String() string {
	return fmt.Sprintf("Ledger{%p}", l.db)
}

// Count returns the number of runs matching filters.
func (l *Ledger) Count(ctx context.Context, filters httpapi.Filters) (int64, error) {
	query, args := buildRunQuery(filters, true)
	var n int64
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}

// List returns runs matching filters, newest first unless filters ask otherwise.
func (l *Ledger) List(ctx context.Context, filters httpapi.Filters) ([]core.RunRecord, error) {
	query, args := buildRunQuery(filters, false)
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	out := []core.RunRecord{}
	for rows.Next() {
		var (
			run      core.RunRecord
			source   string
			ts       string
			counters string
		)
		if err := rows.Scan(&run.RunID, &run.TraceID, &source, &ts, &run.DurationMS, &run.Outcome,
			&run.Reason, &run.Files, &run.Conversations, &counters, &run.Output); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		run.Source = core.DataSource(source)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			run.StartedAt = t
		}
		if err := json.Unmarshal([]byte(counters), &run.Counters); err != nil {
			return nil, errors.Wrapf(err, "decode counters for %s", run.RunID)
		}
		out = append(out, run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate runs")
	}
	return out, nil
}

func buildRunQuery(filters httpapi.Filters, count bool) (string, []any) {
	var builder strings.Builder
	if count {
		builder.WriteString("SELECT COUNT(*) FROM runs")
	} else {
		builder.WriteString("SELECT run_id, trace_id, source, started_at, duration_ms, outcome, reason, files, conversations, counters_json, output FROM runs")
	}

	var (
		conditions []string
		args       []any
	)

	if len(filters.Sources) > 0 {
		placeholders := make([]string, 0, len(filters.Sources))
		for _, s := range filters.Sources {
			placeholders = append(placeholders, "?")
			args = append(args, string(s))
		}
		conditions = append(conditions, fmt.Sprintf("source IN (%s)", strings.Join(placeholders, ",")))
	}

	if filters.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filters.Outcome)
	}

	if len(filters.Reasons) > 0 {
		ors := make([]string, 0, len(filters.Reasons))
		for _, r := range filters.Reasons {
			ors = append(ors, "LOWER(reason) = LOWER(?)")
			args = append(args, r)
		}
		conditions = append(conditions, fmt.Sprintf("(%s)", strings.Join(ors, " OR ")))
	}

	if filters.Since != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filters.Since.UTC().Format(tsLayout))
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	if !count {
		order := "DESC"
		if filters.Order == httpapi.OrderAsc {
			order = "ASC"
		}
		builder.WriteString(" ORDER BY started_at ")
		builder.WriteString(order)
		limit := filters.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	builder.WriteString(";")
	return builder.String(), args
}
