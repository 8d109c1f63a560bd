package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestReportsMigrationCreatesArchiveTable(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_analysis_reports.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := strings.ToLower(string(contents))
	for _, want := range []string{"create table if not exists analysis_reports", "result jsonb not null", "created_at"} {
		if !strings.Contains(sql, want) {
			t.Errorf("migration missing %q", want)
		}
	}
}

func TestReadMigrationsOrdersUpFilesOnly(t *testing.T) {
	source := fstest.MapFS{
		"m/0002_b.up.sql":   {Data: []byte("SELECT 2")},
		"m/0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"m/0001_a.down.sql": {Data: []byte("SELECT -1")},
		"m/README":          {Data: []byte("notes")},
	}

	got, err := readMigrations(source, "m")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(got) != 2 || got[0].version != "0001_a.up.sql" || got[1].sql != "SELECT 2" {
		t.Fatalf("unexpected migrations %+v", got)
	}

	if _, err := readMigrations(fstest.MapFS{"m/x.down.sql": {}}, "m"); err == nil {
		t.Fatalf("expected error without up migrations")
	}
}

func TestMigrationSourceFallsBackToEmbedded(t *testing.T) {
	source, root := migrationSource(filepath.Join(t.TempDir(), "missing"))
	got, err := readMigrations(source, root)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if got[0].version != "0001_analysis_reports.up.sql" {
		t.Fatalf("unexpected embedded migration %s", got[0].version)
	}
}
