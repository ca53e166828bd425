// Package migrations holds the SQL schema, embedded into the binaries.
package migrations

import "embed"

// FS contains every *.sql migration of this directory
//
//go:embed *.sql
var FS embed.FS
