package plan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/config"
	"fundLedger/internal/ledger"
	"fundLedger/internal/router"
)

// Args resolves operation arguments. Keys may be plan names or base58;
// amounts are decimal strings in whole tokens.
type Args struct {
	values   map[string]string
	names    map[string]solana.PublicKey
	decimals uint8
}

// ParseArgs turns key=value pairs into a map.
func ParseArgs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid argument %q (want key=value)", pair)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func (a Args) raw(name string) (string, error) {
	v, ok := a.values[name]
	if !ok || v == "" {
		return "", fmt.Errorf("missing argument %q", name)
	}
	return v, nil
}

func (a Args) has(name string) bool {
	return a.values[name] != ""
}

// Key resolves a required identity argument.
func (a Args) Key(name string) (solana.PublicKey, error) {
	v, err := a.raw(name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return resolve(a.names, v)
}

// KeyOr resolves name, falling back to def when absent.
func (a Args) KeyOr(name string, def solana.PublicKey) (solana.PublicKey, error) {
	if !a.has(name) {
		return def, nil
	}
	return a.Key(name)
}

// Account resolves a token account given either directly under name or as
// the associated account of the owner given under name+"-owner".
func (a Args) Account(name string, mint solana.PublicKey) (solana.PublicKey, error) {
	if a.has(name) {
		return a.Key(name)
	}
	owner, err := a.Key(name + "-owner")
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("missing argument %q or %q", name, name+"-owner")
	}
	return ledger.AssociatedAccount(owner, mint)
}

// Amount parses a token amount into base units.
func (a Args) Amount(name string) (uint64, error) {
	v, err := a.raw(name)
	if err != nil {
		return 0, err
	}
	return router.ParseAmount(v, a.decimals)
}

// Uint parses a plain unsigned integer.
func (a Args) Uint(name string) (uint64, error) {
	v, err := a.raw(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", name, err)
	}
	return n, nil
}

// UintOr is Uint with a default for absent arguments.
func (a Args) UintOr(name string, def uint64) (uint64, error) {
	if !a.has(name) {
		return def, nil
	}
	return a.Uint(name)
}

// Time parses unix seconds or RFC3339.
func (a Args) Time(name string) (time.Time, error) {
	v, err := a.raw(name)
	if err != nil {
		return time.Time{}, err
	}
	tm, err := config.ParseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("argument %q: %w", name, err)
	}
	return tm, nil
}

func resolve(names map[string]solana.PublicKey, v string) (solana.PublicKey, error) {
	if k, ok := names[v]; ok {
		return k, nil
	}
	k, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("unknown name or invalid key %q", v)
	}
	return k, nil
}
