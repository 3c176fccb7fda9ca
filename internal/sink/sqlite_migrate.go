package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/pkg/errors"
)

// ledgerVersion is stored in PRAGMA user_version once migrations ran.
const ledgerVersion = 2

type sqliteColumn struct {
	Name        string
	Type        string
	NotNull     bool
	DefaultText string
}

// migrateLedger upgrades ledgers written by earlier releases: version 1 had
// no output or trace_id columns and allowed NULL reasons.
func migrateLedger(ctx context.Context, db *sql.DB) error {
	path := sqlitePath(ctx, db)
	userVersion, err := sqliteUserVersion(ctx, db)
	if err != nil {
		return errors.Wrap(err, "ledger: user_version")
	}
	log.Printf("ledger: path=%s user_version=%d", path, userVersion)
	if userVersion >= ledgerVersion {
		return nil
	}

	columns, err := sqliteTableInfo(ctx, db, "runs")
	if err != nil {
		return errors.Wrap(err, "ledger: describe runs")
	}
	if len(columns) == 0 {
		return errors.New("ledger: runs table missing")
	}

	add := []struct {
		name string
		ddl  string
	}{
		{"trace_id", `ALTER TABLE runs ADD COLUMN trace_id TEXT NOT NULL DEFAULT '';`},
		{"output", `ALTER TABLE runs ADD COLUMN output TEXT NOT NULL DEFAULT '';`},
	}
	for _, col := range add {
		if _, ok := columns[col.name]; ok {
			continue
		}
		if _, err := db.ExecContext(ctx, col.ddl); err != nil {
			return errors.Wrapf(err, "ledger: add %s column", col.name)
		}
		log.Printf("ledger: added %s column to runs", col.name)
	}

	normalize := []struct {
		query string
		label string
	}{
		{`UPDATE runs SET reason='' WHERE reason IS NULL;`, "reason"},
		{`UPDATE runs SET counters_json='{}' WHERE counters_json IS NULL OR TRIM(counters_json) = '';`, "counters_json"},
	}
	for _, step := range normalize {
		res, execErr := db.ExecContext(ctx, step.query)
		if execErr != nil {
			return errors.Wrapf(execErr, "ledger: normalize %s", step.label)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			log.Printf("ledger: normalized %s rows=%d", step.label, n)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);`); err != nil {
		return errors.Wrap(err, "ledger: ensure runs_started_at")
	}
	hasIndex, err := sqliteHasIndex(ctx, db, "runs", "runs_started_at")
	if err != nil {
		return errors.Wrap(err, "ledger: inspect indices")
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, ledgerVersion)); err != nil {
		return errors.Wrap(err, "ledger: set user_version")
	}
	log.Printf("ledger: migrated to user_version=%d runs_started_at=%v", ledgerVersion, hasIndex)
	return nil
}

func sqlitePath(ctx context.Context, db *sql.DB) string {
	rows, err := db.QueryContext(ctx, `PRAGMA database_list;`)
	if err != nil {
		return "(unknown)"
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq  int
			name string
			file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return "(unknown)"
		}
		if strings.EqualFold(strings.TrimSpace(name), "main") {
			if file.Valid && strings.TrimSpace(file.String) != "" {
				return file.String
			}
			return "(memory)"
		}
	}
	return "(unknown)"
}

func sqliteUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var userVersion int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&userVersion); err != nil {
		return 0, err
	}
	return userVersion, nil
}

func sqliteTableInfo(ctx context.Context, db *sql.DB, table string) (map[string]sqliteColumn, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]sqliteColumn)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		out[strings.ToLower(strings.TrimSpace(name))] = sqliteColumn{
			Name:        name,
			Type:        strings.TrimSpace(colType),
			NotNull:     notNull == 1,
			DefaultText: strings.TrimSpace(defaultVal.String),
		}
	}
	return out, rows.Err()
}

func sqliteHasIndex(ctx context.Context, db *sql.DB, table, index string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list('%s');`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return false, err
		}
		if strings.EqualFold(strings.TrimSpace(name), index) {
			return true, nil
		}
	}
	return false, rows.Err()
}
