package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var baseSchema string

// migrations[i] moves a database from version i to i+1. Append only.
var migrations = []string{
	baseSchema,
}

// schemaVersion is the version a fully migrated database reports.
var schemaVersion = len(migrations)

// ErrSchemaMismatch reports a database written by a newer reelpipe.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) migrate(ctx context.Context) error {
	current, err := readSchemaVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("%w: database is at version %d, this build understands up to %d",
			ErrSchemaMismatch, current, schemaVersion)
	}
	for version := current; version < schemaVersion; version++ {
		if err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[version]); err != nil {
				return fmt.Errorf("apply migration %d: %w", version+1, err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version+1)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// readSchemaVersion returns 0 for a database that has never been migrated.
func readSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var tables int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}
