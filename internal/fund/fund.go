package fund

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
)

// Status is the fund lifecycle stage. The only transition is Running to
// Liquidating.
type Status uint8

const (
	StatusRunning Status = iota
	StatusLiquidating
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusLiquidating:
		return "Liquidating"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// MaxSlippageBps bounds the liquidation slippage tolerance.
const MaxSlippageBps = 10_000

// Fund is the tokenized pooled-investment record.
type Fund struct {
	Creator        solana.PublicKey
	Manager        solana.PublicKey
	RiskOracle     solana.PublicKey
	AssetMint      solana.PublicKey
	FundMint       solana.PublicKey
	AssetTreasury  solana.PublicKey
	AssetRecipient solana.PublicKey
	// Vault is nil until bound, and never changes afterwards.
	Vault *solana.PublicKey

	TotalSubscription   uint64
	TotalRedemption     uint64
	LiquidationSlippage uint64
	Status              Status

	Nonce uint64
	Bump  uint8
}

func (f *Fund) AccountName() string { return "RBF" }

func (f *Fund) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, k := range []solana.PublicKey{
		f.Creator, f.Manager, f.RiskOracle, f.AssetMint,
		f.FundMint, f.AssetTreasury, f.AssetRecipient,
	} {
		if err := ledger.WriteKey(enc, k); err != nil {
			return err
		}
	}
	if err := ledger.WriteOptionalKey(enc, f.Vault); err != nil {
		return err
	}
	for _, v := range []uint64{f.TotalSubscription, f.TotalRedemption, f.LiquidationSlippage} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return err
		}
	}
	if err := enc.WriteUint8(uint8(f.Status)); err != nil {
		return err
	}
	if err := enc.WriteUint64(f.Nonce, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint8(f.Bump)
}

func (f *Fund) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, k := range []*solana.PublicKey{
		&f.Creator, &f.Manager, &f.RiskOracle, &f.AssetMint,
		&f.FundMint, &f.AssetTreasury, &f.AssetRecipient,
	} {
		if *k, err = ledger.ReadKey(dec); err != nil {
			return err
		}
	}
	if f.Vault, err = ledger.ReadOptionalKey(dec); err != nil {
		return err
	}
	for _, v := range []*uint64{&f.TotalSubscription, &f.TotalRedemption, &f.LiquidationSlippage} {
		if *v, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return err
		}
	}
	status, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	if Status(status) > StatusLiquidating {
		return fmt.Errorf("unknown fund status %d", status)
	}
	f.Status = Status(status)
	if f.Nonce, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	f.Bump, err = dec.ReadUint8()
	return err
}

// HasVault reports whether vault is the fund's bound vault.
func (f *Fund) HasVault(vault solana.PublicKey) bool {
	return f.Vault != nil && f.Vault.Equals(vault)
}
