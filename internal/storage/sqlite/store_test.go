package sqlite

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
	"fundLedger/internal/model"
	"fundLedger/internal/registry"
)

func key(b byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32))
}

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestLedgerUnitsPersist(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	reg := registry.New(key(100))

	store := ledger.NewStore(s)
	if _, err := store.Update(ctx, func(tx *ledger.Tx) error {
		_, err := reg.Initialize(tx, key(1))
		return err
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := store.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := reg.AllocateFundSlot(tx); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil || err.Error() != "abort" {
		t.Fatalf("expected abort, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	store = ledger.NewStore(reopened)
	err = store.View(ctx, func(tx *ledger.Tx) error {
		r, err := reg.Load(tx)
		if err != nil {
			return err
		}
		if !r.Admin.Equals(key(1)) || r.FundNonce != 0 {
			t.Fatalf("registry = %+v", r)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	_, err = store.Update(ctx, func(tx *ledger.Tx) error {
		_, err := reg.Initialize(tx, key(2))
		return err
	})
	if !errors.Is(err, ledger.ErrAlreadyInitialized) {
		t.Fatalf("expected AlreadyInitialized, got %v", err)
	}
}

func TestDeleteRemovesAccount(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	addr := key(9)

	btx, err := s.Begin(ctx, false)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := btx.Put(ctx, addr, []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := btx.Put(ctx, addr, []byte{4}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := btx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	btx, err = s.Begin(ctx, false)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	data, ok, err := btx.Get(ctx, addr)
	if err != nil || !ok || !bytes.Equal(data, []byte{4}) {
		t.Fatalf("get = %v, %v, %v", data, ok, err)
	}
	if err := btx.Delete(ctx, addr); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := btx.Get(ctx, addr); ok {
		t.Fatalf("account visible after delete")
	}
	if err := btx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestJournalEntries(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	entries := []model.JournalEntry{
		{ID: "a", Op: "initialize", Caller: "x", CommittedAt: "2026-01-01T00:00:00Z"},
		{ID: "b", Op: "grant-fund", Caller: "x", Detail: map[string]string{"creator": "y"}, CommittedAt: "2026-01-01T00:00:01Z"},
	}
	if err := s.AppendEntries(ctx, entries); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendEntries(ctx, entries[:1]); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}

	all, err := s.Entries(ctx, "")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].Detail["creator"] != "y" {
		t.Fatalf("entries = %+v", all)
	}
	grants, err := s.Entries(ctx, "grant-fund")
	if err != nil {
		t.Fatalf("entries by op: %v", err)
	}
	if len(grants) != 1 || grants[0].ID != "b" {
		t.Fatalf("grants = %+v", grants)
	}
}
