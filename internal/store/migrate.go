package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"sort"
	"strings"

	"nyaymitra/client/db"
)

// migration is one *.up.sql file; its base name is the recorded version.
type migration struct {
	version string
	sql     string
}

// ApplyMigrations applies pending migrations from migrationsDir, or the
// embedded set when the directory is empty or missing.
func ApplyMigrations(ctx context.Context, conn *sql.DB, migrationsDir string) error {
	source, root := migrationSource(migrationsDir)
	return ApplyMigrationsFS(ctx, conn, source, root)
}

func migrationSource(dir string) (fs.FS, string) {
	if strings.TrimSpace(dir) != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir), "."
		}
		log.Printf("store: migrations dir %q not found, using embedded migrations", dir)
	}
	return db.Migrations, "migrations"
}

// ApplyMigrationsFS applies every *.up.sql under root in name order, each in
// its own transaction, skipping versions already recorded.
func ApplyMigrationsFS(ctx context.Context, conn *sql.DB, source fs.FS, root string) error {
	if err := ensureMigrationsTable(ctx, conn); err != nil {
		return err
	}

	pending, err := readMigrations(source, root)
	if err != nil {
		return err
	}

	for _, m := range pending {
		migrated, err := isMigrated(ctx, conn, m.version)
		if err != nil {
			return err
		}
		if migrated {
			continue
		}
		if err := applyMigration(ctx, conn, m); err != nil {
			return err
		}
		log.Printf("store: applied migration %s", m.version)
	}
	return nil
}

func readMigrations(source fs.FS, root string) ([]migration, error) {
	entries, err := fs.ReadDir(source, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		contents, err := fs.ReadFile(source, path.Join(root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		out = append(out, migration{version: entry.Name(), sql: string(contents)})
	}
	if len(out) == 0 {
		return nil, errors.New("no migrations found")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func applyMigration(ctx context.Context, conn *sql.DB, m migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration %s: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, m.version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, conn *sql.DB, version string) (bool, error) {
	var exists bool
	err := conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
