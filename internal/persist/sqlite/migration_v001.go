package sqlite

import "database/sql"

// migrateV001 creates the snapshot schema: one table per piece of engine
// state that must survive a restart. Every statement uses IF NOT EXISTS
// for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS impressions (
			id                 TEXT PRIMARY KEY,
			impression_site    TEXT NOT NULL,
			intermediary_site  TEXT NOT NULL DEFAULT '',
			conversion_sites   TEXT NOT NULL DEFAULT '',
			conversion_callers TEXT NOT NULL DEFAULT '',
			match_value        INTEGER NOT NULL DEFAULT 0,
			timestamp_unix     INTEGER NOT NULL,
			lifetime_seconds   INTEGER NOT NULL,
			histogram_index    INTEGER NOT NULL,
			priority           INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS budget_entries (
			site             TEXT NOT NULL,
			epoch            INTEGER NOT NULL,
			micro_epsilons   INTEGER NOT NULL,
			PRIMARY KEY (site, epoch)
		)`,

		`CREATE TABLE IF NOT EXISTS epoch_origins (
			site            TEXT PRIMARY KEY,
			origin_unix_nano INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS global_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_impressions_site ON impressions(impression_site)`,
		`CREATE INDEX IF NOT EXISTS idx_impressions_ts    ON impressions(timestamp_unix)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
