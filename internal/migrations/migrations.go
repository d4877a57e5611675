// Package migrations carries the database schema. The initial schema is
// embedded so a deployed binary never depends on finding SQL files on disk;
// incremental migrations for existing databases live in cmd/migrate.
package migrations

import _ "embed"

//go:embed 001_initial_schema.sql
var initialSchema string

// GetInitialSchema returns the schema applied when a database is first
// opened. Every statement is idempotent so re-applying on startup is safe.
func GetInitialSchema() (string, error) {
	return initialSchema, nil
}
