// Package migrations holds the SQLite schema as numbered NNN_name.up.sql
// and NNN_name.down.sql pairs. The runner records applied versions itself,
// so the scripts contain schema statements only.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
