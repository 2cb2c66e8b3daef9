package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion identifies the layout in schema.sql. There are no migrations:
// a database at any other version must be deleted and recreated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// readSchemaVersion returns the recorded version, or ok=false for a database
// that was never initialized.
func readSchemaVersion(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (version int, ok bool, err error) {
	var tables int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&tables); err != nil {
		return 0, false, fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, false, nil
	}
	err = q.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, true, nil
}

// initSchema creates the schema in a fresh database and rejects databases
// written by another version.
func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, ok, err := readSchemaVersion(ctx, tx)
	if err != nil {
		return err
	}
	if ok {
		if version != schemaVersion {
			return fmt.Errorf("%w: %s has version %d, expected %d; delete it to start over",
				ErrSchemaMismatch, s.path, version, schemaVersion)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
