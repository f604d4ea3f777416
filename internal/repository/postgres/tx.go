package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asso-tools/assobot/internal/errs"
)

// requireAuthor rejects writes that carry no acting member
func requireAuthor(author int64) error {
	if author <= 0 {
		return errs.MissingAuthor
	}
	return nil
}

// withTx runs fn inside a transaction. The transaction is rolled back on
// any error, including a failed commit.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queryEach runs a query and hands every row to scan
func queryEach(ctx context.Context, db *sql.DB, query string, scan func(rows *sql.Rows) error, args ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
