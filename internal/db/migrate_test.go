package db

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"airquality-server/internal/config"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(config.Config{SQLitePath: ":memory:", MaxOpenConns: 1}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_CreatesReadingsTable(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	if err := Migrate(ctx, db, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO sensor_readings (id, ts, doc) VALUES ('a', '2024-01-01T00:00:00Z', '{}')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Second run is a no-op.
	if err := Migrate(ctx, db, nil); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + tableName).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("applied migrations = %d, want 1", n)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in      string
		version string
		name    string
		ok      bool
	}{
		{"0001_sensor_readings.sql", "0001", "sensor_readings", true},
		{"0012_add_index.sql", "0012", "add_index", true},
		{"1_short.sql", "", "", false},
		{"0001_readme.md", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, n, ok := parseMigrationFilename(tt.in)
			if ok != tt.ok || v != tt.version || n != tt.name {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v", tt.in, v, n, ok)
			}
		})
	}
}

func TestPendingMigrations_OrderAndSkip(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_b.sql": {Data: []byte("B")},
		"sql/0001_a.sql": {Data: []byte("A")},
		"sql/0003_c.sql": {Data: []byte("C")},
		"sql/notes.txt":  {Data: []byte("x")},
	}
	got, err := pendingMigrations(fsys, map[string]bool{"0002": true})
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(got) != 2 || got[0].version != "0001" || got[1].version != "0003" {
		t.Fatalf("pending = %+v", got)
	}
	if got[0].body != "A" {
		t.Errorf("body = %q, want A", got[0].body)
	}
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"explicit dsn", config.Config{DSN: "file:x.db"}, "file:x.db"},
		{"memory", config.Config{SQLitePath: ":memory:"}, ":memory:"},
		{"plain path", config.Config{SQLitePath: dir + "/a.db"}, "file:" + dir + "/a.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{"file prefix with query", config.Config{SQLitePath: "file:" + dir + "/b.db?cache=shared"}, "file:" + dir + "/b.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if err != nil {
				t.Fatalf("buildDSN: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildDSN = %q, want %q", got, tt.want)
			}
		})
	}
}
