// Package migrations embeds the SQL schema migrations of the profiles store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
