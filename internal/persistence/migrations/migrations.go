// Package migrations carries the bundled reference persistence server's SQL
// schema and a golang-migrate-based runner, grounded on the teacher's
// cmd/migrate.go (migrator construction, up/down/version/force commands) and
// internal/upgrade/checker.go (schema-version compatibility check, adapted
// here without the teacher's data-hook machinery since this schema has no
// hooks registered against it — see DESIGN.md).
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// RequiredSchemaVersion is the schema version this binary expects.
const RequiredSchemaVersion = 1

// New builds a *migrate.Migrate bound to the embedded SQL and an already
// open Postgres connection (github.com/jackc/pgx/v5/stdlib-backed) — the
// production target of the bundled reference persistence server.
func New(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded source: %w", err)
	}
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations: build postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("migrations: build migrator: %w", err)
	}
	return m, nil
}

// Status reports whether the database's applied schema version matches
// RequiredSchemaVersion.
type Status struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

// CheckStatus reads schema_migrations (golang-migrate's own bookkeeping
// table) and compares against RequiredSchemaVersion.
func CheckStatus(db *sql.DB) (*Status, error) {
	var version uint
	var dirty bool
	err := db.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err != nil {
		return &Status{RequiredVersion: RequiredSchemaVersion, NeedsMigration: true}, nil
	}

	s := &Status{CurrentVersion: version, RequiredVersion: RequiredSchemaVersion, Dirty: dirty}
	if dirty {
		return s, nil
	}
	switch {
	case version == RequiredSchemaVersion:
		s.Compatible = true
	case version < RequiredSchemaVersion:
		s.NeedsMigration = true
	}
	return s, nil
}
