// Package registry holds the singleton that names the administrator and
// hands out fund nonces.
package registry

import (
	"encoding/binary"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
)

// Registry is the global configuration record.
type Registry struct {
	Admin     solana.PublicKey
	FundNonce uint64
	Bump      uint8
}

func (r *Registry) AccountName() string { return "GlobalConfig" }

func (r *Registry) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := ledger.WriteKey(enc, r.Admin); err != nil {
		return err
	}
	if err := enc.WriteUint64(r.FundNonce, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint8(r.Bump)
}

func (r *Registry) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if r.Admin, err = ledger.ReadKey(dec); err != nil {
		return err
	}
	if r.FundNonce, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	r.Bump, err = dec.ReadUint8()
	return err
}

// Service reads and mutates the registry inside an atomic unit.
type Service struct {
	programID solana.PublicKey
	derived   ledger.Derived
}

func New(programID solana.PublicKey) *Service {
	return &Service{
		programID: programID,
		derived:   ledger.MustDerive(programID, ledger.TagGlobalConfig),
	}
}

// Address is the singleton's derived address.
func (s *Service) Address() solana.PublicKey { return s.derived.Address }

// Initialize creates the singleton with nonce 0.
func (s *Service) Initialize(tx *ledger.Tx, admin solana.PublicKey) (*Registry, error) {
	if admin.IsZero() {
		return nil, ledger.Reject(ledger.CodeInvalidAccount, "administrator is empty")
	}
	reg := &Registry{Admin: admin, Bump: s.derived.Bump}
	if err := tx.Create(s.derived.Address, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Load returns the singleton.
func (s *Service) Load(tx *ledger.Tx) (*Registry, error) {
	var reg Registry
	if err := tx.Load(s.derived.Address, &reg); err != nil {
		return nil, err
	}
	if err := ledger.VerifyDerived(s.programID, s.derived.Address, reg.Bump, ledger.TagGlobalConfig); err != nil {
		return nil, err
	}
	return &reg, nil
}

// RequireAdmin loads the singleton and checks caller is its administrator.
func (s *Service) RequireAdmin(tx *ledger.Tx, caller solana.PublicKey) (*Registry, error) {
	reg, err := s.Load(tx)
	if err != nil {
		return nil, err
	}
	if !reg.Admin.Equals(caller) {
		return nil, ledger.Reject(ledger.CodeUnauthorized, "%s is not the administrator", caller)
	}
	return reg, nil
}

// AllocateFundSlot returns the current nonce and advances it. It must run in
// the same unit that creates the fund so a nonce is never claimed twice.
func (s *Service) AllocateFundSlot(tx *ledger.Tx) (uint64, error) {
	reg, err := s.Load(tx)
	if err != nil {
		return 0, err
	}
	if reg.FundNonce == math.MaxUint64 {
		return 0, ledger.Reject(ledger.CodeNumericalOverflow, "fund nonce exhausted")
	}
	nonce := reg.FundNonce
	reg.FundNonce++
	if err := tx.Save(s.derived.Address, reg); err != nil {
		return 0, err
	}
	return nonce, nil
}

// PeekNonce returns the nonce the next fund creation will consume.
func (s *Service) PeekNonce(tx *ledger.Tx) (uint64, error) {
	reg, err := s.Load(tx)
	if err != nil {
		return 0, err
	}
	return reg.FundNonce, nil
}
