package repcoach

import "embed"

// Migrations holds the database schema, applied at startup by the server and
// the importer.
//
//go:embed migrations/*.sql
var Migrations embed.FS
