package fund

import (
	"math/big"

	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
)

// Redeem burns shares of the fund's share mint from holder's share account
// and pays floor(shares * treasury / supply) of the asset back to holder. It
// is open only once the fund is Liquidating.
func (e *Engine) Redeem(tx *ledger.Tx, fundAddr, holder solana.PublicKey, shares uint64) (uint64, error) {
	f, err := e.Load(tx, fundAddr)
	if err != nil {
		return 0, err
	}
	if f.Status != StatusLiquidating {
		return 0, ledger.Reject(ledger.CodeInvalidStatus, "fund %s is %s, want %s", fundAddr, f.Status, StatusLiquidating)
	}
	if f.TotalRedemption, err = ledger.CheckedAdd(f.TotalRedemption, shares); err != nil {
		return 0, err
	}
	if err := tx.Save(fundAddr, f); err != nil {
		return 0, err
	}
	return e.pay(tx, fundAddr, f, holder, shares)
}

// RedeemForVault is Redeem for the bound vault, whose shares sit in the vault
// treasury. The redemption is recorded through RecordRedemption.
func (e *Engine) RedeemForVault(tx *ledger.Tx, fundAddr, vault solana.PublicKey, shares uint64) (uint64, error) {
	f, err := e.RecordRedemption(tx, fundAddr, vault, shares)
	if err != nil {
		return 0, err
	}
	return e.pay(tx, fundAddr, f, vault, shares)
}

// pay prices shares against the treasury before burning them.
func (e *Engine) pay(tx *ledger.Tx, fundAddr solana.PublicKey, f *Fund, holder solana.PublicKey, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, ledger.Reject(ledger.CodeInvalidAmount, "shares must be positive")
	}
	supply, err := e.custody.Supply(tx, f.FundMint)
	if err != nil {
		return 0, err
	}
	if shares > supply {
		return 0, ledger.Reject(ledger.CodeInsufficientFunds, "share supply %d below %d", supply, shares)
	}
	treasury, err := e.custody.Balance(tx, f.AssetTreasury)
	if err != nil {
		return 0, err
	}
	payout := ProRata(shares, treasury, supply)

	src, err := ledger.AssociatedAccount(holder, f.FundMint)
	if err != nil {
		return 0, err
	}
	if err := e.custody.Burn(tx, f.FundMint, src, holder, shares); err != nil {
		return 0, err
	}
	if payout > 0 {
		dst, err := e.custody.EnsureAccount(tx, holder, f.AssetMint)
		if err != nil {
			return 0, err
		}
		if err := e.custody.Transfer(tx, f.AssetTreasury, dst, fundAddr, payout); err != nil {
			return 0, err
		}
	}
	return payout, nil
}

// ProRata is floor(shares * assets / supply). Rounding down leaves any dust
// with the remaining holders.
func ProRata(shares, assets, supply uint64) uint64 {
	if supply == 0 {
		return 0
	}
	n := new(big.Int).Mul(new(big.Int).SetUint64(shares), new(big.Int).SetUint64(assets))
	n.Quo(n, new(big.Int).SetUint64(supply))
	return n.Uint64()
}
