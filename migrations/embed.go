// Package migrations embeds the versioned schema for each supported store.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// SQLite returns the sqlite migration set rooted at its directory.
func SQLite() (fs.FS, error) {
	return fs.Sub(FS, "sqlite")
}

// Postgres returns the postgres migration set rooted at its directory.
func Postgres() (fs.FS, error) {
	return fs.Sub(FS, "postgres")
}
