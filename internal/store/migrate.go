package store

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	"github.com/agentops-sre/rca-engine/pkg/opfail"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending goose migration embedded in the binary.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return opfail.ConfigurationError("goose dialect", err.Error())
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return opfail.FailedTo("run database migrations", err)
	}
	return nil
}
