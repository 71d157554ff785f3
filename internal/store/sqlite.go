package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewSQLite opens (or creates) the SQLite file at path, ensures the
// schema, and returns a ready Store.
func NewSQLite(ctx context.Context, path string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer

	if err := EnsureSchema(ctx, db, DialectSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLStore(db, DialectSQLite), nil
}
