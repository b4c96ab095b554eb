package database

import _ "embed"

// Schema is the flattened schema produced by the migrations. Tests apply it
// directly to skip the migration bookkeeping.
//
//go:embed schema.sql
var Schema string
