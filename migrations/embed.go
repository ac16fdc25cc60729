// Package migrations holds the versioned PostgreSQL schema.
package migrations

import "embed"

// FS contains the up and down scripts in golang-migrate naming
//
//go:embed *.sql
var FS embed.FS
