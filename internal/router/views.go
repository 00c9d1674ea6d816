package router

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"fundLedger/internal/fund"
	"fundLedger/internal/ledger"
	"fundLedger/internal/registry"
	"fundLedger/internal/token"
	"fundLedger/internal/vault"
)

// Field is one labelled value of a described record.
type Field struct {
	Name  string
	Value string
}

// Description is a decoded record ready for display.
type Description struct {
	Address solana.PublicKey
	Type    string
	Fields  []Field
}

// FormatAmount renders base units as a decimal string with the mint's
// precision.
func FormatAmount(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals)).StringFixed(int32(decimals))
}

// ParseAmount converts a decimal string into base units, rejecting values
// with more precision than the mint carries.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ledger.Reject(ledger.CodeInvalidAmount, "amount %q: %v", s, err)
	}
	units := d.Shift(int32(decimals))
	if !units.Equal(units.Truncate(0)) {
		return 0, ledger.Reject(ledger.CodeInvalidAmount, "amount %q has more than %d decimals", s, decimals)
	}
	bi := units.BigInt()
	if bi.Sign() < 0 || !bi.IsUint64() {
		return 0, ledger.Reject(ledger.CodeInvalidAmount, "amount %q out of range", s)
	}
	return bi.Uint64(), nil
}

// RegistryAddress is where the registry lives.
func (r *Router) RegistryAddress() solana.PublicKey { return r.registry.Address() }

// FundAddress derives the address a fund created by creator with nonce gets.
func (r *Router) FundAddress(creator solana.PublicKey, nonce uint64) (solana.PublicKey, error) {
	d, err := r.funds.Address(creator, nonce)
	return d.Address, err
}

// VaultAddress derives the vault address for a fund.
func (r *Router) VaultAddress(fundAddr solana.PublicKey) (solana.PublicKey, error) {
	d, err := r.vaults.Address(fundAddr)
	return d.Address, err
}

// Registry reads the registry.
func (r *Router) Registry(ctx context.Context) (*registry.Registry, error) {
	var out *registry.Registry
	err := r.store.View(ctx, func(tx *ledger.Tx) (err error) {
		out, err = r.registry.Load(tx)
		return err
	})
	return out, err
}

// Fund reads the fund at addr.
func (r *Router) Fund(ctx context.Context, addr solana.PublicKey) (*fund.Fund, error) {
	var out *fund.Fund
	err := r.store.View(ctx, func(tx *ledger.Tx) (err error) {
		out, err = r.funds.Load(tx, addr)
		return err
	})
	return out, err
}

// Vault reads the vault at addr.
func (r *Router) Vault(ctx context.Context, addr solana.PublicKey) (*vault.Vault, error) {
	var out *vault.Vault
	err := r.store.View(ctx, func(tx *ledger.Tx) (err error) {
		out, err = r.vaults.Load(tx, addr)
		return err
	})
	return out, err
}

// Balance reads a token account balance.
func (r *Router) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var out uint64
	err := r.store.View(ctx, func(tx *ledger.Tx) (err error) {
		out, err = r.custody.Balance(tx, account)
		return err
	})
	return out, err
}

// HasFundCreator reports whether creator holds a fund delegation.
func (r *Router) HasFundCreator(ctx context.Context, creator solana.PublicKey) (bool, error) {
	var ok bool
	err := r.store.View(ctx, func(tx *ledger.Tx) (err error) {
		ok, err = r.fundAuth.Has(tx, creator)
		return err
	})
	return ok, err
}

// Describe decodes whatever record lives at addr.
func (r *Router) Describe(ctx context.Context, addr solana.PublicKey) (*Description, error) {
	var out *Description
	err := r.store.View(ctx, func(tx *ledger.Tx) error {
		data, ok, err := tx.Raw(addr)
		if err != nil {
			return err
		}
		if !ok {
			return ledger.Reject(ledger.CodeAccountNotFound, "no record at %s", addr)
		}
		desc := &Description{Address: addr}
		switch {
		case ledger.HasDiscriminator(data, (&registry.Registry{}).AccountName()):
			var rec registry.Registry
			if err := ledger.Decode(data, &rec); err != nil {
				return err
			}
			desc.Type = "registry"
			desc.Fields = []Field{
				{"admin", rec.Admin.String()},
				{"fund_nonce", strconv.FormatUint(rec.FundNonce, 10)},
			}
		case ledger.HasDiscriminator(data, r.fundAuth.NewRecord().AccountName()),
			ledger.HasDiscriminator(data, r.vaultAuth.NewRecord().AccountName()):
			rec := r.fundAuth.NewRecord()
			desc.Type = "fund-delegation"
			if ledger.HasDiscriminator(data, r.vaultAuth.NewRecord().AccountName()) {
				rec = r.vaultAuth.NewRecord()
				desc.Type = "vault-delegation"
			}
			if err := ledger.Decode(data, rec); err != nil {
				return err
			}
			desc.Fields = []Field{{"creator", rec.Creator.String()}}
		case ledger.HasDiscriminator(data, (&fund.Fund{}).AccountName()):
			f, err := r.funds.Load(tx, addr)
			if err != nil {
				return err
			}
			decimals := r.decimals(tx, f.AssetMint)
			vaultRef := "none"
			if f.Vault != nil {
				vaultRef = f.Vault.String()
			}
			desc.Type = "fund"
			desc.Fields = []Field{
				{"status", f.Status.String()},
				{"creator", f.Creator.String()},
				{"manager", f.Manager.String()},
				{"risk_oracle", f.RiskOracle.String()},
				{"asset_mint", f.AssetMint.String()},
				{"fund_mint", f.FundMint.String()},
				{"asset_treasury", f.AssetTreasury.String()},
				{"asset_recipient", f.AssetRecipient.String()},
				{"vault", vaultRef},
				{"total_subscription", FormatAmount(f.TotalSubscription, decimals)},
				{"total_redemption", FormatAmount(f.TotalRedemption, decimals)},
				{"liquidation_slippage_bps", strconv.FormatUint(f.LiquidationSlippage, 10)},
				{"nonce", strconv.FormatUint(f.Nonce, 10)},
			}
		case ledger.HasDiscriminator(data, (&vault.Vault{}).AccountName()):
			v, err := r.vaults.Load(tx, addr)
			if err != nil {
				return err
			}
			decimals := r.decimals(tx, v.AssetMint)
			desc.Type = "vault"
			desc.Fields = []Field{
				{"linked_fund", v.LinkedFund.String()},
				{"creator", v.Creator.String()},
				{"manager", v.Manager.String()},
				{"trading_bot", v.TradingBot.String()},
				{"vault_mint", v.VaultMint.String()},
				{"asset_mint", v.AssetMint.String()},
				{"vault_treasury", v.VaultTreasury.String()},
				{"asset_treasury", v.AssetTreasury.String()},
				{"start", v.Schedule.Start.Format(time.RFC3339)},
				{"end", v.Schedule.End.Format(time.RFC3339)},
				{"fund_amount", FormatAmount(v.FundAmount, decimals)},
				{"idle", FormatAmount(v.Idle(), decimals)},
				{"deployed_to_fund", FormatAmount(v.DeployedToFund, decimals)},
				{"deployed_to_trading", FormatAmount(v.DeployedToTrading, decimals)},
				{"min_deposit", FormatAmount(v.MinDepositAmount, decimals)},
			}
		case ledger.HasDiscriminator(data, (&token.Mint{}).AccountName()):
			var m token.Mint
			if err := ledger.Decode(data, &m); err != nil {
				return err
			}
			desc.Type = "mint"
			desc.Fields = []Field{
				{"authority", m.Authority.String()},
				{"decimals", strconv.Itoa(int(m.Decimals))},
				{"supply", FormatAmount(m.Supply, m.Decimals)},
			}
		case ledger.HasDiscriminator(data, (&token.Account{}).AccountName()):
			var a token.Account
			if err := ledger.Decode(data, &a); err != nil {
				return err
			}
			desc.Type = "token-account"
			desc.Fields = []Field{
				{"mint", a.Mint.String()},
				{"owner", a.Owner.String()},
				{"amount", FormatAmount(a.Amount, r.decimals(tx, a.Mint))},
			}
		default:
			return ledger.Reject(ledger.CodeInvalidAccount, "unknown record type at %s", addr)
		}
		out = desc
		return nil
	})
	return out, err
}

// decimals returns the mint's precision, or zero when it cannot be read.
func (r *Router) decimals(tx *ledger.Tx, mint solana.PublicKey) uint8 {
	var m token.Mint
	if err := tx.Load(mint, &m); err != nil {
		return 0
	}
	return m.Decimals
}
