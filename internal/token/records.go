package token

import (
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
)

// Mint is a fungible token definition.
type Mint struct {
	Authority solana.PublicKey
	Decimals  uint8
	Supply    uint64
}

func (m *Mint) AccountName() string { return "Mint" }

func (m *Mint) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := ledger.WriteKey(enc, m.Authority); err != nil {
		return err
	}
	if err := enc.WriteUint8(m.Decimals); err != nil {
		return err
	}
	return enc.WriteUint64(m.Supply, binary.LittleEndian)
}

func (m *Mint) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if m.Authority, err = ledger.ReadKey(dec); err != nil {
		return err
	}
	if m.Decimals, err = dec.ReadUint8(); err != nil {
		return err
	}
	m.Supply, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

// Account holds a balance of one mint for one owner.
type Account struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

func (a *Account) AccountName() string { return "TokenAccount" }

func (a *Account) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := ledger.WriteKey(enc, a.Mint); err != nil {
		return err
	}
	if err := ledger.WriteKey(enc, a.Owner); err != nil {
		return err
	}
	return enc.WriteUint64(a.Amount, binary.LittleEndian)
}

func (a *Account) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.Mint, err = ledger.ReadKey(dec); err != nil {
		return err
	}
	if a.Owner, err = ledger.ReadKey(dec); err != nil {
		return err
	}
	a.Amount, err = dec.ReadUint64(binary.LittleEndian)
	return err
}
