package pgstore

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the embedded goose migrations for the queue schema,
// rooted so they can be handed straight to pg.Migrate.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		// The embedded tree is fixed at compile time; a missing
		// subdirectory means a broken build, not a runtime condition.
		panic(err)
	}
	return sub
}
