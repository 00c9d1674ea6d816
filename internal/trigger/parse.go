package trigger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// ParseContract converts a hex contract address.
func ParseContract(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid contract address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseOracle converts the base58 ledger identity the relay acts as.
func ParseOracle(input string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(input))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid oracle identity %q: %w", input, err)
	}
	return key, nil
}
