// Package migrations embeds the controller's SQL schema into the binary.
package migrations

import "embed"

// FS holds every NNN_description.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
