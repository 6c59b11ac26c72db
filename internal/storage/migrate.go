package storage

import (
	"database/sql"
	"embed"
	"log/slog"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"

	flog "fintrack/internal/log"
	"fintrack/internal/storage/schema"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded schema migrations to the database at dbPath.
func RunMigrations(dbPath string) error {
	version, err := schema.Up(schema.Target{
		SQLDriver:  "sqlite",
		DataSource: dbPath,
		Name:       "sqlite",
		Driver: func(db *sql.DB) (database.Driver, error) {
			return sqlite.WithInstance(db, &sqlite.Config{})
		},
	}, migrationsFS, "migrations")
	if err != nil {
		return err
	}
	slog.Debug("SQLite schema up to date", "version", version, flog.FieldComponent, flog.ComponentStorage)
	return nil
}
