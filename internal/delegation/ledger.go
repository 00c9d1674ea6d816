// Package delegation records which identities may create records. A record
// exists for a creator exactly while that creator holds the permission.
package delegation

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
	"fundLedger/internal/registry"
)

// Record is one creator's permission.
type Record struct {
	Creator solana.PublicKey
	Bump    uint8

	name string
}

func (r *Record) AccountName() string { return r.name }

func (r *Record) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := ledger.WriteKey(enc, r.Creator); err != nil {
		return err
	}
	return enc.WriteUint8(r.Bump)
}

func (r *Record) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if r.Creator, err = ledger.ReadKey(dec); err != nil {
		return err
	}
	r.Bump, err = dec.ReadUint8()
	return err
}

// Ledger grants and revokes one kind of creation permission.
type Ledger struct {
	programID   solana.PublicKey
	tag         string
	accountName string
	registry    *registry.Service
}

// NewFundLedger tracks fund creation rights.
func NewFundLedger(programID solana.PublicKey, reg *registry.Service) *Ledger {
	return &Ledger{programID: programID, tag: ledger.TagFundAuth, accountName: "RbfAuth", registry: reg}
}

// NewVaultLedger tracks vault deployment rights.
func NewVaultLedger(programID solana.PublicKey, reg *registry.Service) *Ledger {
	return &Ledger{programID: programID, tag: ledger.TagVaultAuth, accountName: "VaultAuth", registry: reg}
}

// NewRecord returns an empty record of this ledger's kind.
func (l *Ledger) NewRecord() *Record { return &Record{name: l.accountName} }

// Address derives the record address for creator.
func (l *Ledger) Address(creator solana.PublicKey) (ledger.Derived, error) {
	return ledger.Derive(l.programID, l.tag, creator[:])
}

// Grant creates the record for creator. Only the administrator may grant, and
// an existing record must be revoked first.
func (l *Ledger) Grant(tx *ledger.Tx, admin, creator solana.PublicKey) (*Record, error) {
	if _, err := l.registry.RequireAdmin(tx, admin); err != nil {
		return nil, err
	}
	if creator.IsZero() {
		return nil, ledger.Reject(ledger.CodeInvalidAccount, "creator is empty")
	}
	derived, err := l.Address(creator)
	if err != nil {
		return nil, err
	}
	rec := l.NewRecord()
	rec.Creator = creator
	rec.Bump = derived.Bump
	if err := tx.Create(derived.Address, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Revoke closes creator's record and refunds its deposit to the administrator.
func (l *Ledger) Revoke(tx *ledger.Tx, admin, creator solana.PublicKey) (ledger.Refund, error) {
	if _, err := l.registry.RequireAdmin(tx, admin); err != nil {
		return ledger.Refund{}, err
	}
	derived, err := l.Address(creator)
	if err != nil {
		return ledger.Refund{}, err
	}
	rec, err := l.load(tx, derived.Address)
	if err != nil {
		return ledger.Refund{}, err
	}
	if !rec.Creator.Equals(creator) {
		return ledger.Refund{}, ledger.Reject(ledger.CodeInvalidAuthAccount, "record at %s belongs to %s", derived.Address, rec.Creator)
	}
	return tx.Close(derived.Address, admin)
}

// Require checks creator currently holds a matching record.
func (l *Ledger) Require(tx *ledger.Tx, creator solana.PublicKey) error {
	derived, err := l.Address(creator)
	if err != nil {
		return err
	}
	rec, err := l.load(tx, derived.Address)
	if err != nil {
		if ledger.CodeOf(err) == ledger.CodeAccountNotFound {
			return ledger.Reject(ledger.CodeUnauthorized, "%s holds no %s delegation", creator, l.tag)
		}
		return err
	}
	if !rec.Creator.Equals(creator) {
		return ledger.Reject(ledger.CodeInvalidAuthAccount, "record at %s belongs to %s", derived.Address, rec.Creator)
	}
	return ledger.VerifyDerived(l.programID, derived.Address, rec.Bump, l.tag, creator[:])
}

// Has reports whether creator currently holds the permission.
func (l *Ledger) Has(tx *ledger.Tx, creator solana.PublicKey) (bool, error) {
	derived, err := l.Address(creator)
	if err != nil {
		return false, err
	}
	return tx.Exists(derived.Address)
}

func (l *Ledger) load(tx *ledger.Tx, addr solana.PublicKey) (*Record, error) {
	rec := l.NewRecord()
	if err := tx.Load(addr, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
