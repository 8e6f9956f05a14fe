// Package migrations embeds the SQL schema migrations, one directory per
// database dialect, using golang-migrate's NNNNNN_name.{up,down}.sql layout.
package migrations

import "embed"

// FS holds the postgres, mysql and sqlite migration directories.
//
//go:embed postgres/*.sql mysql/*.sql sqlite/*.sql
var FS embed.FS
