package vault

import (
	"encoding/binary"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
)

// Schedule is the inclusive funding window for deposits.
type Schedule struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (s Schedule) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// Vault is the custody record paired with one fund. FundAmount always equals
// idle plus both deployed balances.
type Vault struct {
	Creator       solana.PublicKey
	Manager       solana.PublicKey
	TradingBot    solana.PublicKey
	VaultMint     solana.PublicKey
	AssetMint     solana.PublicKey
	VaultTreasury solana.PublicKey
	AssetTreasury solana.PublicKey
	LinkedFund    solana.PublicKey

	Schedule          Schedule
	FundAmount        uint64
	DeployedToFund    uint64
	DeployedToTrading uint64
	MinDepositAmount  uint64

	Bump uint8
}

func (v *Vault) AccountName() string { return "Vault" }

// Idle is the part of FundAmount held in the vault's own asset treasury.
func (v *Vault) Idle() uint64 {
	return v.FundAmount - v.DeployedToFund - v.DeployedToTrading
}

func (v *Vault) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, k := range []solana.PublicKey{
		v.Creator, v.Manager, v.TradingBot, v.VaultMint,
		v.AssetMint, v.VaultTreasury, v.AssetTreasury, v.LinkedFund,
	} {
		if err := ledger.WriteKey(enc, k); err != nil {
			return err
		}
	}
	if err := enc.WriteInt64(v.Schedule.Start.Unix(), binary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteInt64(v.Schedule.End.Unix(), binary.LittleEndian); err != nil {
		return err
	}
	for _, n := range []uint64{v.FundAmount, v.DeployedToFund, v.DeployedToTrading, v.MinDepositAmount} {
		if err := enc.WriteUint64(n, binary.LittleEndian); err != nil {
			return err
		}
	}
	return enc.WriteUint8(v.Bump)
}

func (v *Vault) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, k := range []*solana.PublicKey{
		&v.Creator, &v.Manager, &v.TradingBot, &v.VaultMint,
		&v.AssetMint, &v.VaultTreasury, &v.AssetTreasury, &v.LinkedFund,
	} {
		if *k, err = ledger.ReadKey(dec); err != nil {
			return err
		}
	}
	start, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return err
	}
	end, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return err
	}
	v.Schedule = Schedule{Start: time.Unix(start, 0).UTC(), End: time.Unix(end, 0).UTC()}
	for _, n := range []*uint64{&v.FundAmount, &v.DeployedToFund, &v.DeployedToTrading, &v.MinDepositAmount} {
		if *n, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return err
		}
	}
	v.Bump, err = dec.ReadUint8()
	return err
}
