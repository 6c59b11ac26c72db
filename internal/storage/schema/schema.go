// Package schema applies embedded SQL migrations with golang-migrate. The
// SQLite and PostgreSQL repositories share it and differ only in the
// database driver they hand over.
package schema

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// DriverFunc wraps an open connection in a golang-migrate database driver.
type DriverFunc func(db *sql.DB) (database.Driver, error)

// Target is a database a migration set can be applied to.
type Target struct {
	SQLDriver  string // database/sql driver name
	DataSource string
	Name       string // golang-migrate database name
	Driver     DriverFunc
}

// Up opens a dedicated connection to t, applies every pending migration
// found in dir of src and returns the resulting schema version. A schema
// that is already current is not an error.
func Up(t Target, src fs.FS, dir string) (uint, error) {
	db, err := sql.Open(t.SQLDriver, t.DataSource)
	if err != nil {
		return 0, fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := t.Driver(db)
	if err != nil {
		return 0, fmt.Errorf("create %s driver: %w", t.Name, err)
	}

	d, err := iofs.New(src, dir)
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, t.Name, driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
