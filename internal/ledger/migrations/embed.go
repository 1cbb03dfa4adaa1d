// Package migrations embeds the bridge.db schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
