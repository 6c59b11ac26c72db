package schema

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"

	_ "modernc.org/sqlite"
)

func sqliteTarget(path string) Target {
	return Target{
		SQLDriver:  "sqlite",
		DataSource: path,
		Name:       "sqlite",
		Driver: func(db *sql.DB) (database.Driver, error) {
			return sqlite.WithInstance(db, &sqlite.Config{})
		},
	}
}

func TestUpAppliesPendingMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.db")
	src := fstest.MapFS{
		"sql/0001_notes.up.sql":   {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);")},
		"sql/0001_notes.down.sql": {Data: []byte("DROP TABLE notes;")},
	}

	version, err := Up(sqliteTarget(path), src, "sql")
	if err != nil || version != 1 {
		t.Fatalf("first run: version=%d err=%v", version, err)
	}
	if version, err := Up(sqliteTarget(path), src, "sql"); err != nil || version != 1 {
		t.Fatalf("second run should be a no-op: version=%d err=%v", version, err)
	}

	src["sql/0002_tags.up.sql"] = &fstest.MapFile{Data: []byte("ALTER TABLE notes ADD COLUMN tag TEXT;")}
	if version, err := Up(sqliteTarget(path), src, "sql"); err != nil || version != 2 {
		t.Fatalf("upgrade: version=%d err=%v", version, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`INSERT INTO notes (body, tag) VALUES ('x', 'y')`); err != nil {
		t.Fatalf("migrated table unusable: %v", err)
	}
}

func TestUpReportsBrokenMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.db")
	src := fstest.MapFS{
		"sql/0001_bad.up.sql": {Data: []byte("CREATE TABLE (;")},
	}
	if _, err := Up(sqliteTarget(path), src, "sql"); err == nil {
		t.Fatal("expected an error for invalid SQL")
	}
	if _, err := Up(sqliteTarget(path), fstest.MapFS{}, "sql"); err == nil {
		t.Fatal("expected an error for a missing migration directory")
	}
}
