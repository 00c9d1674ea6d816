package token

import (
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
)

// Custody is the token collaborator the engines move value through.
type Custody interface {
	CreateMint(tx *ledger.Tx, mint, authority solana.PublicKey, decimals uint8) error
	CreateDerivedMint(tx *ledger.Tx, mint, authority solana.PublicKey, decimals uint8) error
	EnsureAccount(tx *ledger.Tx, owner, mint solana.PublicKey) (solana.PublicKey, error)
	MintTo(tx *ledger.Tx, mint, to, authority solana.PublicKey, amount uint64) error
	Burn(tx *ledger.Tx, mint, from, owner solana.PublicKey, amount uint64) error
	Transfer(tx *ledger.Tx, from, to, owner solana.PublicKey, amount uint64) error
	Balance(tx *ledger.Tx, account solana.PublicKey) (uint64, error)
	Supply(tx *ledger.Tx, mint solana.PublicKey) (uint64, error)
}

// Ledger keeps mints and token accounts as ledger records, so token movements
// commit or roll back with the operation that caused them.
type Ledger struct{}

var _ Custody = Ledger{}

// CreateMint creates a mint at a keypair address. Derived addresses are
// off the ed25519 curve and belong to the engines, so they are refused here.
func (Ledger) CreateMint(tx *ledger.Tx, mint, authority solana.PublicKey, decimals uint8) error {
	if !mint.IsOnCurve() {
		return ledger.Reject(ledger.CodeInvalidAccount, "mint %s is a derived address", mint)
	}
	return createMint(tx, mint, authority, decimals)
}

// CreateDerivedMint creates a mint at an engine-derived address.
func (Ledger) CreateDerivedMint(tx *ledger.Tx, mint, authority solana.PublicKey, decimals uint8) error {
	if mint.IsOnCurve() {
		return ledger.Reject(ledger.CodeInvalidAccount, "mint %s is not a derived address", mint)
	}
	return createMint(tx, mint, authority, decimals)
}

func createMint(tx *ledger.Tx, mint, authority solana.PublicKey, decimals uint8) error {
	if authority.IsZero() {
		return ledger.Reject(ledger.CodeInvalidAccount, "mint authority is empty")
	}
	return tx.Create(mint, &Mint{Authority: authority, Decimals: decimals})
}

// EnsureAccount returns the associated account for owner and mint, creating
// it when absent.
func (Ledger) EnsureAccount(tx *ledger.Tx, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	var m Mint
	if err := tx.Load(mint, &m); err != nil {
		return solana.PublicKey{}, err
	}
	addr, err := ledger.AssociatedAccount(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	var existing Account
	err = tx.Load(addr, &existing)
	switch {
	case err == nil:
		if !existing.Mint.Equals(mint) || !existing.Owner.Equals(owner) {
			return solana.PublicKey{}, ledger.Reject(ledger.CodeInvalidAccount, "account %s belongs to another owner or mint", addr)
		}
		return addr, nil
	case ledger.CodeOf(err) == ledger.CodeAccountNotFound:
		return addr, tx.Create(addr, &Account{Mint: mint, Owner: owner})
	default:
		return solana.PublicKey{}, err
	}
}

func (Ledger) MintTo(tx *ledger.Tx, mint, to, authority solana.PublicKey, amount uint64) error {
	var m Mint
	if err := tx.Load(mint, &m); err != nil {
		return err
	}
	if !m.Authority.Equals(authority) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s is not the authority of mint %s", authority, mint)
	}
	dst, err := loadAccount(tx, to, mint)
	if err != nil {
		return err
	}
	if m.Supply, err = ledger.CheckedAdd(m.Supply, amount); err != nil {
		return err
	}
	if dst.Amount, err = ledger.CheckedAdd(dst.Amount, amount); err != nil {
		return err
	}
	if err := tx.Save(mint, &m); err != nil {
		return err
	}
	return tx.Save(to, dst)
}

func (Ledger) Burn(tx *ledger.Tx, mint, from, owner solana.PublicKey, amount uint64) error {
	var m Mint
	if err := tx.Load(mint, &m); err != nil {
		return err
	}
	src, err := loadOwnedAccount(tx, from, mint, owner)
	if err != nil {
		return err
	}
	if src.Amount, err = ledger.CheckedSub(src.Amount, amount); err != nil {
		return err
	}
	if m.Supply, err = ledger.CheckedSub(m.Supply, amount); err != nil {
		return err
	}
	if err := tx.Save(mint, &m); err != nil {
		return err
	}
	return tx.Save(from, src)
}

func (Ledger) Transfer(tx *ledger.Tx, from, to, owner solana.PublicKey, amount uint64) error {
	var src Account
	if err := tx.Load(from, &src); err != nil {
		return err
	}
	if !src.Owner.Equals(owner) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s does not own %s", owner, from)
	}
	if from.Equals(to) {
		return nil
	}
	dst, err := loadAccount(tx, to, src.Mint)
	if err != nil {
		return err
	}
	if src.Amount, err = ledger.CheckedSub(src.Amount, amount); err != nil {
		return err
	}
	if dst.Amount, err = ledger.CheckedAdd(dst.Amount, amount); err != nil {
		return err
	}
	if err := tx.Save(from, &src); err != nil {
		return err
	}
	return tx.Save(to, dst)
}

func (Ledger) Balance(tx *ledger.Tx, account solana.PublicKey) (uint64, error) {
	var a Account
	if err := tx.Load(account, &a); err != nil {
		return 0, err
	}
	return a.Amount, nil
}

func (Ledger) Supply(tx *ledger.Tx, mint solana.PublicKey) (uint64, error) {
	var m Mint
	if err := tx.Load(mint, &m); err != nil {
		return 0, err
	}
	return m.Supply, nil
}

func loadAccount(tx *ledger.Tx, addr, mint solana.PublicKey) (*Account, error) {
	var a Account
	if err := tx.Load(addr, &a); err != nil {
		return nil, err
	}
	if !a.Mint.Equals(mint) {
		return nil, ledger.Reject(ledger.CodeInvalidAccount, "account %s holds mint %s, want %s", addr, a.Mint, mint)
	}
	return &a, nil
}

func loadOwnedAccount(tx *ledger.Tx, addr, mint, owner solana.PublicKey) (*Account, error) {
	a, err := loadAccount(tx, addr, mint)
	if err != nil {
		return nil, err
	}
	if !a.Owner.Equals(owner) {
		return nil, ledger.Reject(ledger.CodeUnauthorized, "%s does not own %s", owner, addr)
	}
	return a, nil
}
