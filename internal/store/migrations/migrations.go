// Package migrations embeds the SQL migration files for the snapshot DB.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
