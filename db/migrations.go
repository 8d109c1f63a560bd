// Package db carries the SQL migrations for the report archive.
package db

import "embed"

// Migrations holds migrations/*.sql, used when no directory is configured.
//
//go:embed migrations/*.sql
var Migrations embed.FS
