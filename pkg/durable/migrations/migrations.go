// Package migrations embeds the goose SQL migration set for the durable
// store schema, following the embed-FS layout used elsewhere in the pack.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
