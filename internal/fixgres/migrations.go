package fixgres

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns gridstore's demo-schema goose migrations (a
// "quotes" table), for use with WithGooseUp by tests that need a real
// Postgres catalog to introspect.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err) // migrationsFS is embedded at build time; Sub can only fail on a bad literal path
	}
	return sub
}
