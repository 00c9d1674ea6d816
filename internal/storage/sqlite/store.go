// Package sqlite stores ledger accounts and the operation journal in a
// SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "modernc.org/sqlite"

	"fundLedger/internal/ledger"
	"fundLedger/internal/model"
)

const timeFormat = time.RFC3339Nano

// Store is a ledger backend and journal sink on one SQLite database.
type Store struct {
	db *sql.DB
}

var _ ledger.Backend = (*Store)(nil)

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps every unit serialised behind the same writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			address    TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS journal (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT NOT NULL UNIQUE,
			op           TEXT NOT NULL,
			caller       TEXT NOT NULL,
			committed_at TEXT NOT NULL,
			body         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_op ON journal (op)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Begin starts a unit. SQLite has one writer, so read-only units take the
// same lock.
func (s *Store) Begin(ctx context.Context, _ bool) (ledger.BackendTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Get(ctx context.Context, addr solana.PublicKey) ([]byte, bool, error) {
	var data []byte
	err := t.tx.QueryRowContext(ctx, `SELECT data FROM accounts WHERE address = ?`, addr.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (t *sqliteTx) Put(ctx context.Context, addr solana.PublicKey, data []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (address, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, addr.String(), data, time.Now().UTC().Format(timeFormat))
	return err
}

func (t *sqliteTx) Delete(ctx context.Context, addr solana.PublicKey) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM accounts WHERE address = ?`, addr.String())
	return err
}

func (t *sqliteTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback(context.Context) error { return t.tx.Rollback() }

// AppendEntries writes journal entries in one transaction.
func (s *Store) AppendEntries(ctx context.Context, entries []model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		body, err := json.Marshal(entry)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal journal entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal (id, op, caller, committed_at, body) VALUES (?, ?, ?, ?, ?)`,
			entry.ID, entry.Op, entry.Caller, entry.CommittedAt, string(body),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert journal entry: %w", err)
		}
	}
	return tx.Commit()
}

// Entries returns the journal in commit order, optionally filtered by op.
func (s *Store) Entries(ctx context.Context, op string) ([]model.JournalEntry, error) {
	query := `SELECT body FROM journal ORDER BY seq`
	args := []interface{}{}
	if op != "" {
		query = `SELECT body FROM journal WHERE op = ? ORDER BY seq`
		args = append(args, op)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.JournalEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var entry model.JournalEntry
		if err := json.Unmarshal([]byte(body), &entry); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
