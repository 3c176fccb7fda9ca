package sink

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo25425/dona-sub000/internal/httpapi"
)

func TestMigrateLegacyLedger(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	legacy := `CREATE TABLE runs (
  run_id TEXT NOT NULL PRIMARY KEY,
  source TEXT NOT NULL,
  started_at TEXT NOT NULL,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  outcome TEXT NOT NULL,
  reason TEXT,
  files INTEGER NOT NULL DEFAULT 0,
  conversations INTEGER NOT NULL DEFAULT 0,
  counters_json TEXT
);
INSERT INTO runs (run_id, source, started_at, outcome, reason, counters_json)
VALUES ('old-1', 'WhatsApp', '2023-03-01T10:00:00.000000000Z', 'ok', NULL, NULL);
PRAGMA user_version = 1;`
	if _, err := db.Exec(legacy); err != nil {
		t.Fatalf("create legacy schema: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	l, err := OpenLedger(dbPath, false)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	cols, err := sqliteTableInfo(ctx, l.db, "runs")
	if err != nil {
		t.Fatalf("inspect columns: %v", err)
	}
	for _, name := range []string{"trace_id", "output"} {
		col, ok := cols[name]
		if !ok {
			t.Fatalf("expected %s column to exist", name)
		}
		if !col.NotNull {
			t.Fatalf("expected %s to be NOT NULL, got %+v", name, col)
		}
	}

	version, err := sqliteUserVersion(ctx, l.db)
	if err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != ledgerVersion {
		t.Fatalf("expected user_version %d, got %d", ledgerVersion, version)
	}

	runs, err := l.List(ctx, httpapi.Filters{Limit: 10, Order: httpapi.OrderAsc})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "old-1" || runs[0].Reason != "" {
		t.Fatalf("unexpected legacy rows %+v", runs)
	}
	if !runs[0].StartedAt.Equal(time.Date(2023, time.March, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected started_at %v", runs[0].StartedAt)
	}
	if len(runs[0].Counters) != 0 {
		t.Fatalf("expected empty counters, got %v", runs[0].Counters)
	}
}

func TestMigrateFreshLedgerIsCurrent(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	version, err := sqliteUserVersion(ctx, l.db)
	if err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != ledgerVersion {
		t.Fatalf("expected user_version %d, got %d", ledgerVersion, version)
	}
	ok, err := sqliteHasIndex(ctx, l.db, "runs", "runs_started_at")
	if err != nil || !ok {
		t.Fatalf("expected runs_started_at index, got %v %v", ok, err)
	}
	if err := migrateLedger(ctx, l.db); err != nil {
		t.Fatalf("re-run migrate: %v", err)
	}
}
