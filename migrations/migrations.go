// Package migrations embeds the SQL schema files so integration tests and
// deployment tooling can apply them without a filesystem checkout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
