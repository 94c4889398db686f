// Package migrations embeds the resolver ledger schema.
package migrations

import "embed"

// FS holds the ledger migrations in apply order.
//
//go:embed *.sql
var FS embed.FS
