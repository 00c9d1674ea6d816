// Package vault keeps the custody and accounting record paired with each fund
// and moves balances between idle, fund-deployed and trading-deployed.
package vault

import (
	"math/big"

	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/delegation"
	"fundLedger/internal/fund"
	"fundLedger/internal/ledger"
	"fundLedger/internal/token"
)

// Params are the caller-supplied inputs to CreateVault.
type Params struct {
	Manager          solana.PublicKey
	TradingBot       solana.PublicKey
	LinkedFund       solana.PublicKey
	Schedule         Schedule
	MinDepositAmount uint64
}

// Engine runs vault operations inside a caller-owned atomic unit. Fund
// bookkeeping is called synchronously, so a rejection there undoes the whole
// vault operation.
type Engine struct {
	programID   solana.PublicKey
	funds       *fund.Engine
	delegations *delegation.Ledger
	custody     token.Custody
}

func NewEngine(programID solana.PublicKey, funds *fund.Engine, delegations *delegation.Ledger, custody token.Custody) *Engine {
	return &Engine{
		programID:   programID,
		funds:       funds,
		delegations: delegations,
		custody:     custody,
	}
}

// Address derives the vault address for a fund; one fund has one vault.
func (e *Engine) Address(fundAddr solana.PublicKey) (ledger.Derived, error) {
	return ledger.Derive(e.programID, ledger.TagVault, fundAddr[:])
}

// MintAddress derives the vault share mint.
func (e *Engine) MintAddress(vaultAddr solana.PublicKey) (ledger.Derived, error) {
	return ledger.Derive(e.programID, ledger.TagVaultMint, vaultAddr[:])
}

// Load reads the vault at addr and checks it re-derives from its fund.
func (e *Engine) Load(tx *ledger.Tx, addr solana.PublicKey) (*Vault, error) {
	var v Vault
	if err := tx.Load(addr, &v); err != nil {
		return nil, err
	}
	if err := ledger.VerifyDerived(e.programID, addr, v.Bump, ledger.TagVault, v.LinkedFund[:]); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVault creates the vault for params.LinkedFund. The fund's manager must
// hold a vault delegation, and the fund must not have a vault yet. BindVault
// completes the pairing.
func (e *Engine) CreateVault(tx *ledger.Tx, creator solana.PublicKey, params Params) (solana.PublicKey, *Vault, error) {
	if err := e.delegations.Require(tx, creator); err != nil {
		return solana.PublicKey{}, nil, err
	}
	f, err := e.funds.Load(tx, params.LinkedFund)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if f.Vault != nil {
		return solana.PublicKey{}, nil, ledger.Reject(ledger.CodeVaultAlreadySet, "fund %s is bound to %s", params.LinkedFund, *f.Vault)
	}
	if !f.Manager.Equals(creator) {
		return solana.PublicKey{}, nil, ledger.Reject(ledger.CodeUnauthorized, "%s is not the manager of %s", creator, params.LinkedFund)
	}
	if params.Manager.IsZero() || params.TradingBot.IsZero() {
		return solana.PublicKey{}, nil, ledger.Reject(ledger.CodeInvalidAccount, "vault manager and trading bot are required")
	}
	if !params.Schedule.Start.Before(params.Schedule.End) {
		return solana.PublicKey{}, nil, ledger.Reject(ledger.CodeInvalidSchedule, "start %s is not before end %s", params.Schedule.Start, params.Schedule.End)
	}

	derived, err := e.Address(params.LinkedFund)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	var asset token.Mint
	if err := tx.Load(f.AssetMint, &asset); err != nil {
		return solana.PublicKey{}, nil, err
	}
	mint, err := e.MintAddress(derived.Address)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if err := e.custody.CreateDerivedMint(tx, mint.Address, derived.Address, asset.Decimals); err != nil {
		return solana.PublicKey{}, nil, err
	}
	assetTreasury, err := e.custody.EnsureAccount(tx, derived.Address, f.AssetMint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	vaultTreasury, err := e.custody.EnsureAccount(tx, derived.Address, f.FundMint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	v := &Vault{
		Creator:          creator,
		Manager:          params.Manager,
		TradingBot:       params.TradingBot,
		VaultMint:        mint.Address,
		AssetMint:        f.AssetMint,
		VaultTreasury:    vaultTreasury,
		AssetTreasury:    assetTreasury,
		LinkedFund:       params.LinkedFund,
		Schedule:         Schedule{Start: params.Schedule.Start.UTC(), End: params.Schedule.End.UTC()},
		MinDepositAmount: params.MinDepositAmount,
		Bump:             derived.Bump,
	}
	if err := tx.Create(derived.Address, v); err != nil {
		return solana.PublicKey{}, nil, err
	}
	return derived.Address, v, nil
}

// loadPaired loads the vault and its fund and checks the fund points back.
func (e *Engine) loadPaired(tx *ledger.Tx, vaultAddr solana.PublicKey) (*Vault, *fund.Fund, error) {
	v, err := e.Load(tx, vaultAddr)
	if err != nil {
		return nil, nil, err
	}
	f, err := e.funds.Load(tx, v.LinkedFund)
	if err != nil {
		return nil, nil, err
	}
	if !f.HasVault(vaultAddr) {
		return nil, nil, ledger.Reject(ledger.CodeVaultNotBound, "fund %s is not bound to %s", v.LinkedFund, vaultAddr)
	}
	return v, f, nil
}

func requirePositive(amount uint64) error {
	if amount == 0 {
		return ledger.Reject(ledger.CodeInvalidAmount, "amount must be positive")
	}
	return nil
}

func requireIdle(v *Vault, amount uint64) error {
	if amount > v.Idle() {
		return ledger.Reject(ledger.CodeInsufficientFunds, "idle balance %d below %d", v.Idle(), amount)
	}
	return nil
}

// Deposit moves amount of the asset from the depositor into the vault and
// mints vault shares one to one.
func (e *Engine) Deposit(tx *ledger.Tx, vaultAddr, depositor solana.PublicKey, amount uint64) error {
	v, _, err := e.loadPaired(tx, vaultAddr)
	if err != nil {
		return err
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if amount < v.MinDepositAmount {
		return ledger.Reject(ledger.CodeBelowMinimumDeposit, "deposit %d below minimum %d", amount, v.MinDepositAmount)
	}
	if now := tx.Now(); !v.Schedule.Contains(now) {
		return ledger.Reject(ledger.CodeOutsideFundingWindow, "%s outside [%s, %s]", now, v.Schedule.Start, v.Schedule.End)
	}

	src, err := ledger.AssociatedAccount(depositor, v.AssetMint)
	if err != nil {
		return err
	}
	if err := e.custody.Transfer(tx, src, v.AssetTreasury, depositor, amount); err != nil {
		return err
	}
	shares, err := e.custody.EnsureAccount(tx, depositor, v.VaultMint)
	if err != nil {
		return err
	}
	if err := e.custody.MintTo(tx, v.VaultMint, shares, vaultAddr, amount); err != nil {
		return err
	}
	if v.FundAmount, err = ledger.CheckedAdd(v.FundAmount, amount); err != nil {
		return err
	}
	return tx.Save(vaultAddr, v)
}

// Withdraw pays idle assets out to the manager.
func (e *Engine) Withdraw(tx *ledger.Tx, vaultAddr, caller solana.PublicKey, amount uint64) error {
	v, _, err := e.loadPaired(tx, vaultAddr)
	if err != nil {
		return err
	}
	if !v.Manager.Equals(caller) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s is not the manager of vault %s", caller, vaultAddr)
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := requireIdle(v, amount); err != nil {
		return err
	}
	dst, err := e.custody.EnsureAccount(tx, v.Manager, v.AssetMint)
	if err != nil {
		return err
	}
	if err := e.custody.Transfer(tx, v.AssetTreasury, dst, vaultAddr, amount); err != nil {
		return err
	}
	v.FundAmount -= amount
	return tx.Save(vaultAddr, v)
}

// AddLiquidity hands idle assets to the trading bot.
func (e *Engine) AddLiquidity(tx *ledger.Tx, vaultAddr, caller solana.PublicKey, amount uint64) error {
	v, _, err := e.loadPaired(tx, vaultAddr)
	if err != nil {
		return err
	}
	if !v.TradingBot.Equals(caller) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s is not the trading bot of vault %s", caller, vaultAddr)
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := requireIdle(v, amount); err != nil {
		return err
	}
	dst, err := e.custody.EnsureAccount(tx, v.TradingBot, v.AssetMint)
	if err != nil {
		return err
	}
	if err := e.custody.Transfer(tx, v.AssetTreasury, dst, vaultAddr, amount); err != nil {
		return err
	}
	v.DeployedToTrading += amount
	return tx.Save(vaultAddr, v)
}

// RemoveLiquidity returns assets from the trading bot to idle.
func (e *Engine) RemoveLiquidity(tx *ledger.Tx, vaultAddr, caller solana.PublicKey, amount uint64) error {
	v, _, err := e.loadPaired(tx, vaultAddr)
	if err != nil {
		return err
	}
	if !v.TradingBot.Equals(caller) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s is not the trading bot of vault %s", caller, vaultAddr)
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if amount > v.DeployedToTrading {
		return ledger.Reject(ledger.CodeInsufficientFunds, "trading balance %d below %d", v.DeployedToTrading, amount)
	}
	src, err := ledger.AssociatedAccount(v.TradingBot, v.AssetMint)
	if err != nil {
		return err
	}
	if err := e.custody.Transfer(tx, src, v.AssetTreasury, v.TradingBot, amount); err != nil {
		return err
	}
	v.DeployedToTrading -= amount
	return tx.Save(vaultAddr, v)
}

// Subscribe deploys idle assets into the linked fund in exchange for fund
// shares held by the vault.
func (e *Engine) Subscribe(tx *ledger.Tx, vaultAddr, caller solana.PublicKey, amount uint64) error {
	v, f, err := e.loadPaired(tx, vaultAddr)
	if err != nil {
		return err
	}
	if !v.Manager.Equals(caller) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s is not the manager of vault %s", caller, vaultAddr)
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := requireIdle(v, amount); err != nil {
		return err
	}
	if _, err := e.funds.RecordSubscription(tx, v.LinkedFund, vaultAddr, amount); err != nil {
		return err
	}
	if err := e.custody.Transfer(tx, v.AssetTreasury, f.AssetTreasury, vaultAddr, amount); err != nil {
		return err
	}
	if err := e.custody.MintTo(tx, f.FundMint, v.VaultTreasury, v.LinkedFund, amount); err != nil {
		return err
	}
	v.DeployedToFund += amount
	return tx.Save(vaultAddr, v)
}

// Liquidate redeems amount of the vault's fund shares for their pro-rata
// share of the fund treasury, which may be above or below par. A return below
// par must stay within the fund's slippage tolerance; the difference from par
// is carried into FundAmount.
func (e *Engine) Liquidate(tx *ledger.Tx, vaultAddr, caller solana.PublicKey, amount uint64) (uint64, error) {
	v, f, err := e.loadPaired(tx, vaultAddr)
	if err != nil {
		return 0, err
	}
	if !v.Manager.Equals(caller) && !f.RiskOracle.Equals(caller) {
		return 0, ledger.Reject(ledger.CodeUnauthorized, "%s may not liquidate vault %s", caller, vaultAddr)
	}
	if err := requirePositive(amount); err != nil {
		return 0, err
	}
	if f.Status != fund.StatusLiquidating {
		return 0, ledger.Reject(ledger.CodeInvalidStatus, "fund %s is %s", v.LinkedFund, f.Status)
	}
	if amount > v.DeployedToFund {
		return 0, ledger.Reject(ledger.CodeInsufficientFunds, "fund-deployed balance %d below %d", v.DeployedToFund, amount)
	}

	returned, err := e.funds.RedeemForVault(tx, v.LinkedFund, vaultAddr, amount)
	if err != nil {
		return 0, err
	}
	if floor := SlippageFloor(amount, f.LiquidationSlippage); returned < floor {
		return 0, ledger.Reject(ledger.CodeSlippageExceeded, "treasury returns %d, tolerance requires %d", returned, floor)
	}

	v.DeployedToFund -= amount
	if v.FundAmount, err = ledger.CheckedSub(v.FundAmount, amount); err != nil {
		return 0, err
	}
	if v.FundAmount, err = ledger.CheckedAdd(v.FundAmount, returned); err != nil {
		return 0, err
	}
	if err := tx.Save(vaultAddr, v); err != nil {
		return 0, err
	}
	return returned, nil
}

// Redeem burns a holder's vault shares for a pro-rata slice of the vault's
// assets. It is open once the fund is liquidating and every deployed balance
// has come back.
func (e *Engine) Redeem(tx *ledger.Tx, vaultAddr, holder solana.PublicKey, shares uint64) (uint64, error) {
	v, f, err := e.loadPaired(tx, vaultAddr)
	if err != nil {
		return 0, err
	}
	if f.Status != fund.StatusLiquidating {
		return 0, ledger.Reject(ledger.CodeInvalidStatus, "fund %s is %s", v.LinkedFund, f.Status)
	}
	if v.DeployedToFund != 0 || v.DeployedToTrading != 0 {
		return 0, ledger.Reject(ledger.CodeNotSettled, "vault %s still has %d in fund and %d in trading", vaultAddr, v.DeployedToFund, v.DeployedToTrading)
	}
	if err := requirePositive(shares); err != nil {
		return 0, err
	}
	supply, err := e.custody.Supply(tx, v.VaultMint)
	if err != nil {
		return 0, err
	}
	if shares > supply {
		return 0, ledger.Reject(ledger.CodeInsufficientFunds, "share supply %d below %d", supply, shares)
	}
	payout := fund.ProRata(shares, v.FundAmount, supply)

	src, err := ledger.AssociatedAccount(holder, v.VaultMint)
	if err != nil {
		return 0, err
	}
	if err := e.custody.Burn(tx, v.VaultMint, src, holder, shares); err != nil {
		return 0, err
	}
	if payout > 0 {
		dst, err := e.custody.EnsureAccount(tx, holder, v.AssetMint)
		if err != nil {
			return 0, err
		}
		if err := e.custody.Transfer(tx, v.AssetTreasury, dst, vaultAddr, payout); err != nil {
			return 0, err
		}
	}
	v.FundAmount -= payout
	if err := tx.Save(vaultAddr, v); err != nil {
		return 0, err
	}
	return payout, nil
}

// SlippageFloor is the least a liquidation of amount may return given a
// tolerance in basis points, rounded up.
func SlippageFloor(amount, slippageBps uint64) uint64 {
	if slippageBps >= fund.MaxSlippageBps {
		return 0
	}
	n := new(big.Int).Mul(new(big.Int).SetUint64(amount), new(big.Int).SetUint64(fund.MaxSlippageBps-slippageBps))
	d := big.NewInt(fund.MaxSlippageBps)
	n.Add(n, new(big.Int).Sub(d, big.NewInt(1)))
	return n.Quo(n, d).Uint64()
}
