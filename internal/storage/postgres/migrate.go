package postgres

import (
	"database/sql"
	"embed"
	"log/slog"

	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	flog "fintrack/internal/log"
	"fintrack/internal/storage/schema"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded schema to the database at dsn.
func RunMigrations(dsn string) error {
	version, err := schema.Up(schema.Target{
		SQLDriver:  "pgx",
		DataSource: dsn,
		Name:       "pgx5",
		Driver: func(db *sql.DB) (database.Driver, error) {
			return migratepgx.WithInstance(db, &migratepgx.Config{})
		},
	}, migrationsFS, "migrations")
	if err != nil {
		return err
	}
	slog.Debug("PostgreSQL schema up to date", "version", version, flog.FieldComponent, flog.ComponentStorage)
	return nil
}
