// Package migrations embeds the goose SQL migrations applied by
// database.Migrate and the "migrate" command.
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
