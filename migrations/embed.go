// Package migrations embeds the goose SQL migration files that define the
// local database schema.
package migrations

import "embed"

// FS contains the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
