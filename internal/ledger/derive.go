package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed tags for every derived record address.
const (
	TagGlobalConfig = "global_config"
	TagFundAuth     = "rbf_auth"
	TagVaultAuth    = "vault_auth"
	TagFund         = "rbf"
	TagFundMint     = "rbf_mint"
	TagVault        = "vault"
	TagVaultMint    = "vault_mint"
)

// Derived is an address computed from seeds plus the bump that made it valid.
type Derived struct {
	Address solana.PublicKey
	Bump    uint8
}

// Seeds assembles the tag and inputs into a seed list.
func Seeds(tag string, inputs ...[]byte) [][]byte {
	seeds := make([][]byte, 0, len(inputs)+1)
	seeds = append(seeds, []byte(tag))
	return append(seeds, inputs...)
}

// Derive tries bump values downward from 255 until the seeds map off-curve.
func Derive(programID solana.PublicKey, tag string, inputs ...[]byte) (Derived, error) {
	addr, bump, err := solana.FindProgramAddress(Seeds(tag, inputs...), programID)
	if err != nil {
		return Derived{}, fmt.Errorf("derive %s: %w", tag, err)
	}
	return Derived{Address: addr, Bump: bump}, nil
}

// MustDerive is Derive for fixed seeds known to be valid.
func MustDerive(programID solana.PublicKey, tag string, inputs ...[]byte) Derived {
	d, err := Derive(programID, tag, inputs...)
	if err != nil {
		panic(err)
	}
	return d
}

// VerifyDerived re-derives addr from the seeds and its stored bump.
func VerifyDerived(programID, addr solana.PublicKey, bump uint8, tag string, inputs ...[]byte) error {
	seeds := append(Seeds(tag, inputs...), []byte{bump})
	got, err := solana.CreateProgramAddress(seeds, programID)
	if err != nil || !got.Equals(addr) {
		return Reject(CodeInvalidAccount, "%s does not derive from %s seeds", addr, tag)
	}
	return nil
}

// NonceSeed encodes a nonce as the little-endian u64 used in fund seeds.
func NonceSeed(nonce uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, nonce)
	return out
}

// AssociatedAccount is the custody account address for owner and mint.
func AssociatedAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated account: %w", err)
	}
	return addr, nil
}
