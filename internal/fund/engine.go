// Package fund creates funds and enforces their lifecycle: the write-once
// vault binding, the one-way status transition, and the subscription and
// redemption totals.
package fund

import (
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/delegation"
	"fundLedger/internal/ledger"
	"fundLedger/internal/registry"
	"fundLedger/internal/token"
)

// ShareDecimals is the precision of every fund share mint.
const ShareDecimals = 6

// Params are the caller-supplied inputs to CreateFund.
type Params struct {
	Manager             solana.PublicKey
	RiskOracle          solana.PublicKey
	AssetMint           solana.PublicKey
	AssetRecipient      solana.PublicKey
	LiquidationSlippage uint64
}

// Engine runs fund operations inside a caller-owned atomic unit.
type Engine struct {
	programID   solana.PublicKey
	registry    *registry.Service
	delegations *delegation.Ledger
	custody     token.Custody
}

func NewEngine(programID solana.PublicKey, reg *registry.Service, delegations *delegation.Ledger, custody token.Custody) *Engine {
	return &Engine{
		programID:   programID,
		registry:    reg,
		delegations: delegations,
		custody:     custody,
	}
}

// Address derives the fund address for creator and nonce.
func (e *Engine) Address(creator solana.PublicKey, nonce uint64) (ledger.Derived, error) {
	return ledger.Derive(e.programID, ledger.TagFund, creator[:], ledger.NonceSeed(nonce))
}

// MintAddress derives the fund share mint address.
func (e *Engine) MintAddress(fundAddr solana.PublicKey) (ledger.Derived, error) {
	return ledger.Derive(e.programID, ledger.TagFundMint, fundAddr[:])
}

// Load reads the fund at addr and checks it re-derives from its seeds.
func (e *Engine) Load(tx *ledger.Tx, addr solana.PublicKey) (*Fund, error) {
	var f Fund
	if err := tx.Load(addr, &f); err != nil {
		return nil, err
	}
	if err := ledger.VerifyDerived(e.programID, addr, f.Bump, ledger.TagFund, f.Creator[:], ledger.NonceSeed(f.Nonce)); err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFund consumes one registry nonce and creates the fund, its share mint
// and its asset treasury.
func (e *Engine) CreateFund(tx *ledger.Tx, creator solana.PublicKey, params Params) (solana.PublicKey, *Fund, error) {
	if err := e.delegations.Require(tx, creator); err != nil {
		return solana.PublicKey{}, nil, err
	}
	if err := e.validate(tx, params); err != nil {
		return solana.PublicKey{}, nil, err
	}

	nonce, err := e.registry.AllocateFundSlot(tx)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	derived, err := e.Address(creator, nonce)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	mint, err := e.MintAddress(derived.Address)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if err := e.custody.CreateDerivedMint(tx, mint.Address, derived.Address, ShareDecimals); err != nil {
		return solana.PublicKey{}, nil, err
	}
	treasury, err := e.custody.EnsureAccount(tx, derived.Address, params.AssetMint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	f := &Fund{
		Creator:             creator,
		Manager:             params.Manager,
		RiskOracle:          params.RiskOracle,
		AssetMint:           params.AssetMint,
		FundMint:            mint.Address,
		AssetTreasury:       treasury,
		AssetRecipient:      params.AssetRecipient,
		LiquidationSlippage: params.LiquidationSlippage,
		Status:              StatusRunning,
		Nonce:               nonce,
		Bump:                derived.Bump,
	}
	if err := tx.Create(derived.Address, f); err != nil {
		return solana.PublicKey{}, nil, err
	}
	return derived.Address, f, nil
}

func (e *Engine) validate(tx *ledger.Tx, params Params) error {
	if params.Manager.IsZero() {
		return ledger.Reject(ledger.CodeInvalidAccount, "manager is empty")
	}
	if params.RiskOracle.IsZero() {
		return ledger.Reject(ledger.CodeInvalidAccount, "risk oracle is empty")
	}
	if params.LiquidationSlippage > MaxSlippageBps {
		return ledger.Reject(ledger.CodeInvalidSlippage, "slippage %d bps exceeds %d", params.LiquidationSlippage, MaxSlippageBps)
	}
	var mint token.Mint
	if err := tx.Load(params.AssetMint, &mint); err != nil {
		return asConstraint(err, "asset mint %s", params.AssetMint)
	}
	var recipient token.Account
	if err := tx.Load(params.AssetRecipient, &recipient); err != nil {
		return asConstraint(err, "asset recipient %s", params.AssetRecipient)
	}
	if !recipient.Mint.Equals(params.AssetMint) {
		return ledger.Reject(ledger.CodeInvalidAccount, "asset recipient holds %s, want %s", recipient.Mint, params.AssetMint)
	}
	return nil
}

// BindVault sets the fund's vault. It succeeds at most once per fund.
func (e *Engine) BindVault(tx *ledger.Tx, fundAddr, manager, vault solana.PublicKey) error {
	f, err := e.Load(tx, fundAddr)
	if err != nil {
		return err
	}
	if f.Vault != nil {
		return ledger.Reject(ledger.CodeVaultAlreadySet, "fund %s is bound to %s", fundAddr, *f.Vault)
	}
	if !f.Manager.Equals(manager) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s is not the manager of %s", manager, fundAddr)
	}
	if vault.IsZero() {
		return ledger.Reject(ledger.CodeInvalidAccount, "vault is empty")
	}
	f.Vault = &vault
	return tx.Save(fundAddr, f)
}

// OpenRedemption moves the fund from Running to Liquidating. There is no way
// back.
func (e *Engine) OpenRedemption(tx *ledger.Tx, fundAddr, caller solana.PublicKey) error {
	f, err := e.Load(tx, fundAddr)
	if err != nil {
		return err
	}
	if f.Status != StatusRunning {
		return ledger.Reject(ledger.CodeInvalidStatus, "fund %s is %s", fundAddr, f.Status)
	}
	if !f.RiskOracle.Equals(caller) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s is not the risk oracle of %s", caller, fundAddr)
	}
	f.Status = StatusLiquidating
	return tx.Save(fundAddr, f)
}

// Disburse sends amount from the fund treasury to the asset recipient while
// the fund is Running. Only the manager may disburse.
func (e *Engine) Disburse(tx *ledger.Tx, fundAddr, manager solana.PublicKey, amount uint64) error {
	f, err := e.Load(tx, fundAddr)
	if err != nil {
		return err
	}
	if !f.Manager.Equals(manager) {
		return ledger.Reject(ledger.CodeUnauthorized, "%s is not the manager of %s", manager, fundAddr)
	}
	if f.Status != StatusRunning {
		return ledger.Reject(ledger.CodeInvalidStatus, "fund %s is %s", fundAddr, f.Status)
	}
	if amount == 0 {
		return ledger.Reject(ledger.CodeInvalidAmount, "amount must be positive")
	}
	return e.custody.Transfer(tx, f.AssetTreasury, f.AssetRecipient, fundAddr, amount)
}

// RecordSubscription adds amount to the subscription total. Subscriptions are
// accepted only while the fund is Running and only from its bound vault.
func (e *Engine) RecordSubscription(tx *ledger.Tx, fundAddr, vault solana.PublicKey, amount uint64) (*Fund, error) {
	return e.record(tx, fundAddr, vault, StatusRunning, func(f *Fund) (err error) {
		f.TotalSubscription, err = ledger.CheckedAdd(f.TotalSubscription, amount)
		return err
	})
}

// RecordRedemption adds amount to the redemption total. Redemptions are
// accepted only while the fund is Liquidating and only from its bound vault.
func (e *Engine) RecordRedemption(tx *ledger.Tx, fundAddr, vault solana.PublicKey, amount uint64) (*Fund, error) {
	return e.record(tx, fundAddr, vault, StatusLiquidating, func(f *Fund) (err error) {
		f.TotalRedemption, err = ledger.CheckedAdd(f.TotalRedemption, amount)
		return err
	})
}

func (e *Engine) record(tx *ledger.Tx, fundAddr, vault solana.PublicKey, want Status, apply func(*Fund) error) (*Fund, error) {
	f, err := e.Load(tx, fundAddr)
	if err != nil {
		return nil, err
	}
	if f.Status != want {
		return nil, ledger.Reject(ledger.CodeInvalidStatus, "fund %s is %s, want %s", fundAddr, f.Status, want)
	}
	if !f.HasVault(vault) {
		return nil, ledger.Reject(ledger.CodeVaultNotBound, "%s is not the vault of %s", vault, fundAddr)
	}
	if err := apply(f); err != nil {
		return nil, err
	}
	if err := tx.Save(fundAddr, f); err != nil {
		return nil, err
	}
	return f, nil
}

func asConstraint(err error, format string, args ...interface{}) error {
	if ledger.CodeOf(err) == ledger.CodeAccountNotFound {
		return ledger.Reject(ledger.CodeInvalidAccount, format+" does not exist", args...)
	}
	return err
}
