package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MemoryBackend keeps accounts in a map. Units are serialized by a mutex held
// from Begin until Commit or Rollback.
type MemoryBackend struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{accounts: make(map[solana.PublicKey][]byte)}
}

// Len returns the number of stored accounts.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.accounts)
}

func (b *MemoryBackend) Begin(ctx context.Context, _ bool) (BackendTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	return &memoryTx{backend: b, staged: make(map[solana.PublicKey][]byte)}, nil
}

type memoryTx struct {
	backend *MemoryBackend
	staged  map[solana.PublicKey][]byte
	done    bool
}

func (t *memoryTx) Get(_ context.Context, addr solana.PublicKey) ([]byte, bool, error) {
	if data, ok := t.staged[addr]; ok {
		return data, data != nil, nil
	}
	data, ok := t.backend.accounts[addr]
	return data, ok, nil
}

func (t *memoryTx) Put(_ context.Context, addr solana.PublicKey, data []byte) error {
	t.staged[addr] = append([]byte(nil), data...)
	return nil
}

func (t *memoryTx) Delete(_ context.Context, addr solana.PublicKey) error {
	t.staged[addr] = nil
	return nil
}

func (t *memoryTx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	for addr, data := range t.staged {
		if data == nil {
			delete(t.backend.accounts, addr)
			continue
		}
		t.backend.accounts[addr] = data
	}
	t.finish()
	return nil
}

func (t *memoryTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *memoryTx) finish() {
	t.done = true
	t.backend.mu.Unlock()
}
