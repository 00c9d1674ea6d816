package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Backend persists raw account bytes keyed by address.
type Backend interface {
	Begin(ctx context.Context, readOnly bool) (BackendTx, error)
}

// BackendTx is one serialized backend transaction.
type BackendTx interface {
	Get(ctx context.Context, addr solana.PublicKey) ([]byte, bool, error)
	Put(ctx context.Context, addr solana.PublicKey, data []byte) error
	Delete(ctx context.Context, addr solana.PublicKey) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Refund is a storage deposit returned when a record is closed.
type Refund struct {
	From     solana.PublicKey `json:"from"`
	To       solana.PublicKey `json:"to"`
	Lamports uint64           `json:"lamports"`
}

// Receipt summarises a committed atomic unit.
type Receipt struct {
	Touched []solana.PublicKey
	Written []solana.PublicKey
	Refunds []Refund
	At      time.Time
}

// Store runs operations as atomic units against a backend.
type Store struct {
	backend Backend
	clock   func() time.Time
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend, clock: time.Now}
}

// SetClock overrides the time source seen by operations.
func (s *Store) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Update runs fn in one atomic unit. All writes commit together if fn returns
// nil; otherwise nothing is written and fn's error is returned unchanged.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) (Receipt, error) {
	return s.run(ctx, false, fn)
}

// View runs fn against a consistent read-only snapshot.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	_, err := s.run(ctx, true, fn)
	return err
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx *Tx) error) (Receipt, error) {
	if s.backend == nil {
		return Receipt{}, fmt.Errorf("ledger backend is nil")
	}
	btx, err := s.backend.Begin(ctx, readOnly)
	if err != nil {
		return Receipt{}, fmt.Errorf("begin: %w", err)
	}
	tx := newTx(ctx, btx, readOnly, s.clock().UTC())

	// finished is set once the backend transaction has been ended, so a
	// panicking fn still releases it.
	finished := false
	defer func() {
		if !finished {
			_ = btx.Rollback(ctx)
		}
	}()

	if err := fn(tx); err != nil {
		finished = true
		if rbErr := btx.Rollback(ctx); rbErr != nil {
			return Receipt{}, errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return Receipt{}, err
	}
	if readOnly {
		finished = true
		return Receipt{}, btx.Rollback(ctx)
	}

	if err := tx.flush(); err != nil {
		finished = true
		_ = btx.Rollback(ctx)
		return Receipt{}, err
	}
	finished = true
	if err := btx.Commit(ctx); err != nil {
		return Receipt{}, fmt.Errorf("commit: %w", err)
	}
	return tx.receipt(), nil
}

type pendingWrite struct {
	data    []byte
	deleted bool
}

// Tx is the view of the ledger inside one atomic unit. Writes are buffered and
// only reach the backend when the unit commits.
type Tx struct {
	ctx      context.Context
	backend  BackendTx
	readOnly bool
	now      time.Time

	writes     map[solana.PublicKey]pendingWrite
	writeOrder []solana.PublicKey
	touched    map[solana.PublicKey]struct{}
	touchOrder []solana.PublicKey
	refunds    []Refund
}

func newTx(ctx context.Context, backend BackendTx, readOnly bool, now time.Time) *Tx {
	return &Tx{
		ctx:      ctx,
		backend:  backend,
		readOnly: readOnly,
		now:      now,
		writes:   make(map[solana.PublicKey]pendingWrite),
		touched:  make(map[solana.PublicKey]struct{}),
	}
}

// Context returns the context the unit was started with.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Now is the unit's timestamp; it is fixed for the whole unit.
func (tx *Tx) Now() time.Time { return tx.now }

// Raw returns the stored bytes at addr.
func (tx *Tx) Raw(addr solana.PublicKey) ([]byte, bool, error) {
	tx.touch(addr)
	if w, ok := tx.writes[addr]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return w.data, true, nil
	}
	return tx.backend.Get(tx.ctx, addr)
}

// Exists reports whether addr holds a record.
func (tx *Tx) Exists(addr solana.PublicKey) (bool, error) {
	_, ok, err := tx.Raw(addr)
	return ok, err
}

// Load decodes the record at addr into rec.
func (tx *Tx) Load(addr solana.PublicKey, rec Record) error {
	data, ok, err := tx.Raw(addr)
	if err != nil {
		return fmt.Errorf("load %s: %w", addr, err)
	}
	if !ok {
		return Reject(CodeAccountNotFound, "no %s at %s", rec.AccountName(), addr)
	}
	return Decode(data, rec)
}

// Create stores rec at a previously empty addr.
func (tx *Tx) Create(addr solana.PublicKey, rec Record) error {
	ok, err := tx.Exists(addr)
	if err != nil {
		return err
	}
	if ok {
		return Reject(CodeAlreadyInitialized, "%s already in use", addr)
	}
	return tx.put(addr, rec)
}

// Save overwrites the existing record at addr.
func (tx *Tx) Save(addr solana.PublicKey, rec Record) error {
	ok, err := tx.Exists(addr)
	if err != nil {
		return err
	}
	if !ok {
		return Reject(CodeAccountNotFound, "no %s at %s", rec.AccountName(), addr)
	}
	return tx.put(addr, rec)
}

// Close deletes the record at addr and returns its deposit to refundTo.
func (tx *Tx) Close(addr, refundTo solana.PublicKey) (Refund, error) {
	if tx.readOnly {
		return Refund{}, fmt.Errorf("close %s in read-only unit", addr)
	}
	data, ok, err := tx.Raw(addr)
	if err != nil {
		return Refund{}, err
	}
	if !ok {
		return Refund{}, Reject(CodeAccountNotFound, "nothing to close at %s", addr)
	}
	tx.stage(addr, pendingWrite{deleted: true})
	refund := Refund{From: addr, To: refundTo, Lamports: RentExempt(len(data))}
	tx.refunds = append(tx.refunds, refund)
	return refund, nil
}

func (tx *Tx) put(addr solana.PublicKey, rec Record) error {
	if tx.readOnly {
		return fmt.Errorf("write %s in read-only unit", addr)
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	tx.stage(addr, pendingWrite{data: data})
	return nil
}

func (tx *Tx) stage(addr solana.PublicKey, w pendingWrite) {
	if _, ok := tx.writes[addr]; !ok {
		tx.writeOrder = append(tx.writeOrder, addr)
	}
	tx.writes[addr] = w
	tx.touch(addr)
}

func (tx *Tx) touch(addr solana.PublicKey) {
	if _, ok := tx.touched[addr]; ok {
		return
	}
	tx.touched[addr] = struct{}{}
	tx.touchOrder = append(tx.touchOrder, addr)
}

func (tx *Tx) flush() error {
	for _, addr := range tx.writeOrder {
		w := tx.writes[addr]
		var err error
		if w.deleted {
			err = tx.backend.Delete(tx.ctx, addr)
		} else {
			err = tx.backend.Put(tx.ctx, addr, w.data)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", addr, err)
		}
	}
	return nil
}

func (tx *Tx) receipt() Receipt {
	return Receipt{
		Touched: append([]solana.PublicKey(nil), tx.touchOrder...),
		Written: append([]solana.PublicKey(nil), tx.writeOrder...),
		Refunds: append([]Refund(nil), tx.refunds...),
		At:      tx.now,
	}
}
