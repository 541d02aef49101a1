// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

// FS holds every migration under sql/.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the migrations directory inside FS.
const Dir = "sql"
