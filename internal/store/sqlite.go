// Package store persists the credit transaction journal in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/petrel-net/petrel/internal/ledger"
)

// SQLiteStore is the journal backing. It implements ledger.Journal.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and migrates it.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			account TEXT NOT NULL,
			counterparty TEXT,
			type TEXT NOT NULL,
			amount REAL NOT NULL,
			description TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account, created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements ledger.Journal.
func (s *SQLiteStore) Append(ctx context.Context, tx ledger.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (transaction_id, account, counterparty, type, amount, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Account, tx.Counterparty, tx.Type, tx.Amount, tx.Description, tx.At)
	return err
}

// ListTransactions returns the newest transactions touching an account,
// either side of a transfer included.
func (s *SQLiteStore) ListTransactions(ctx context.Context, account string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_id, account, counterparty, type, amount, description, created_at
		 FROM transactions
		 WHERE account = ? OR counterparty = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		account, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var counterparty, description sql.NullString
		if err := rows.Scan(&tx.ID, &tx.Account, &counterparty, &tx.Type, &tx.Amount, &description, &tx.At); err != nil {
			return nil, err
		}
		tx.Counterparty = counterparty.String
		tx.Description = description.String
		out = append(out, tx)
	}
	return out, rows.Err()
}
