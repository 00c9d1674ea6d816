package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"fundLedger/internal/config"
	"fundLedger/internal/ledger"
	"fundLedger/internal/router"
	"fundLedger/internal/storage"
	"fundLedger/internal/storage/postgres"
	"fundLedger/internal/storage/sqlite"
)

// journalInDB selects the backend's own journal table.
const journalInDB = "db"

// env is an opened ledger with whichever backend served it.
type env struct {
	router   *router.Router
	sqlite   *sqlite.Store
	postgres *postgres.Store
	journal  storage.Journal
}

func (e *env) Close() {
	if e.sqlite != nil {
		_ = e.sqlite.Close()
	}
	if e.postgres != nil {
		e.postgres.Close()
	}
}

func openEnv(ctx context.Context, cfg config.Config, logger *zap.Logger) (*env, error) {
	programs, err := parsePrograms(cfg)
	if err != nil {
		return nil, err
	}

	e := &env{}
	var backend ledger.Backend
	var dbJournal storage.Journal
	switch cfg.Store {
	case "memory":
		backend = ledger.NewMemoryBackend()
	case "sqlite":
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		s, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		e.sqlite = s
		backend, dbJournal = s, s
	case "postgres":
		if cfg.PGDSN == "" {
			return nil, fmt.Errorf("pg-dsn is required for the postgres store")
		}
		s, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		e.postgres = s
		backend, dbJournal = s, s
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	switch cfg.Journal {
	case "":
		e.journal = storage.Discard{}
	case journalInDB:
		if dbJournal == nil {
			e.Close()
			return nil, fmt.Errorf("store %s has no journal table", cfg.Store)
		}
		e.journal = dbJournal
	default:
		e.journal = storage.NewJsonlJournal(cfg.Journal)
	}

	e.router = router.New(ledger.NewStore(backend), programs, e.journal, logger)
	logger.Debug("ledger opened",
		zap.String("store", cfg.Store),
		zap.String("journal", cfg.Journal),
		zap.String("fund_program", programs.Fund.String()),
		zap.String("vault_program", programs.Vault.String()),
	)
	return e, nil
}

func parsePrograms(cfg config.Config) (router.Programs, error) {
	fundProgram, err := solana.PublicKeyFromBase58(cfg.FundProgram)
	if err != nil {
		return router.Programs{}, fmt.Errorf("fund-program: %w", err)
	}
	vaultProgram, err := solana.PublicKeyFromBase58(cfg.VaultProgram)
	if err != nil {
		return router.Programs{}, fmt.Errorf("vault-program: %w", err)
	}
	return router.Programs{Fund: fundProgram, Vault: vaultProgram}, nil
}
