package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type migration struct {
	name string
	run  func(tx *sql.Tx) error
}

// Migrations are additive only: released schema versions added nullable or
// defaulted columns, never rewrote rows.
var migrations = []migration{
	{name: "0001_initial_schema", run: migrateInitialSchema},
	{name: "0002_source_display_order", run: migrateSourceDisplayOrder},
	{name: "0003_source_tag", run: migrateSourceTag},
}

func OpenDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer at a time; serialize connections so every
	// write funnels through a single path instead of hitting busy/locked.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, ok := applied[m.name]; ok {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}

		if err := m.run(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %s: %w", m.name, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO schema_migrations(name, applied_at) VALUES (?, ?)`,
			m.name,
			time.Now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}

	return nil
}

func appliedMigrations(db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

func migrateInitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			site_url TEXT,
			feed_url TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			refresh_interval_minutes INTEGER NOT NULL DEFAULT 0,
			last_fetched_at DATETIME,
			etag TEXT,
			last_modified TEXT,
			last_error TEXT,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			guid TEXT,
			link TEXT NOT NULL,
			title TEXT NOT NULL,
			published_at DATETIME,
			summary TEXT,
			is_read INTEGER NOT NULL DEFAULT 0,
			first_seen_at DATETIME NOT NULL,
			dedupe_key TEXT NOT NULL,
			UNIQUE(source_id, dedupe_key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_id);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_is_read ON articles(is_read);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateSourceDisplayOrder(tx *sql.Tx) error {
	has, err := hasSourceColumn(tx, "display_order")
	if err != nil {
		return err
	}
	if !has {
		if _, err := tx.Exec(`ALTER TABLE sources ADD COLUMN display_order INTEGER NOT NULL DEFAULT 0;`); err != nil {
			return err
		}
	}
	return nil
}

func migrateSourceTag(tx *sql.Tx) error {
	has, err := hasSourceColumn(tx, "tag")
	if err != nil {
		return err
	}
	if !has {
		// nullable on purpose: NULL means uncategorized
		if _, err := tx.Exec(`ALTER TABLE sources ADD COLUMN tag TEXT;`); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_sources_tag ON sources(tag);`); err != nil {
		return err
	}
	return nil
}

func hasSourceColumn(tx *sql.Tx, target string) (bool, error) {
	rows, err := tx.Query(`PRAGMA table_info(sources);`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == target {
			return true, nil
		}
	}
	return false, rows.Err()
}
