package store

import "embed"

// Migrations holds the schema for the Postgres store, applied in file name order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
