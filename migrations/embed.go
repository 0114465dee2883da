// Package migrations holds the goose migrations for the local store schema.
package migrations

import "embed"

// FS contains the SQL migration files applied by store.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
