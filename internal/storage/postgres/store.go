package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundLedger/internal/ledger"
	"fundLedger/internal/model"
)

// Schema creates the tables the store uses.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	address    TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS journal (
	seq          BIGSERIAL PRIMARY KEY,
	id           UUID NOT NULL UNIQUE,
	op           TEXT NOT NULL,
	caller       TEXT NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL,
	body         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_op ON journal (op);
CREATE TABLE IF NOT EXISTS relay_state (
	name            TEXT PRIMARY KEY,
	last_block      BIGINT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for ledger accounts, the journal and
// relay progress.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Backend = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// Begin opens a serializable transaction. Writers lock every row they read
// so conflicting units queue instead of failing at commit.
func (s *Store) Begin(ctx context.Context, readOnly bool) (ledger.BackendTx, error) {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	if readOnly {
		opts.AccessMode = pgx.ReadOnly
	}
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, readOnly: readOnly}, nil
}

type pgTx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) Get(ctx context.Context, addr solana.PublicKey) ([]byte, bool, error) {
	query := `SELECT data FROM accounts WHERE address = $1 FOR UPDATE`
	if t.readOnly {
		query = `SELECT data FROM accounts WHERE address = $1`
	}
	var data []byte
	err := t.tx.QueryRow(ctx, query, addr.String()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (t *pgTx) Put(ctx context.Context, addr solana.PublicKey, data []byte) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (address, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (address) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, addr.String(), data)
	return err
}

func (t *pgTx) Delete(ctx context.Context, addr solana.PublicKey) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE address = $1`, addr.String())
	return err
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// AppendEntries inserts journal entries in one batch.
func (s *Store) AppendEntries(ctx context.Context, entries []model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		body, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal journal entry: %w", err)
		}
		batch.Queue(`
			INSERT INTO journal (id, op, caller, committed_at, body)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`,
			entry.ID,
			entry.Op,
			entry.Caller,
			entry.CommittedAt,
			body,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the last relayed block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_block FROM relay_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the last relayed block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_state (name, last_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_block = EXCLUDED.last_block, updated_at = now()
	`, name, int64(block))
	return err
}
