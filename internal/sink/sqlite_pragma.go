package sink

import (
	"context"
	"database/sql"
	"errors"
	"log"
)

// ledgerPragmas trade durability for write latency on the run ledger.
var ledgerPragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
	"PRAGMA wal_autocheckpoint=1000;",
	"PRAGMA temp_store=MEMORY;",
}

// ApplySQLitePragmas applies the ledger tuning statements. Callers gate it on
// GN_SQLITE_TUNING; each pragma result is logged.
func ApplySQLitePragmas(ctx context.Context, db *sql.DB) {
	for _, pragma := range ledgerPragmas {
		if value, err := applyPragma(ctx, db, pragma); err != nil {
			log.Printf("ledger: pragma %s failed: %v", pragma, err)
		} else {
			log.Printf("ledger: pragma %s => %v", pragma, value)
		}
	}
}

func applyPragma(ctx context.Context, db *sql.DB, pragma string) (any, error) {
	row := db.QueryRowContext(ctx, pragma)
	var value any
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
				return nil, execErr
			}
			return "ok", nil
		}
		return nil, err
	}
	return value, nil
}
