// Package migrations embeds the SQL schema for the journey service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
