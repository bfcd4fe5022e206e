package audit

import "embed"

// Migrations holds the goose migrations for PostgresStorage, rooted at
// "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS
