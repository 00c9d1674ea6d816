// Package router is the single entry point for ledger operations. Each call
// runs as one atomic unit and is journaled once it commits.
package router

import (
	"context"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fundLedger/internal/delegation"
	"fundLedger/internal/fund"
	"fundLedger/internal/ledger"
	"fundLedger/internal/model"
	"fundLedger/internal/registry"
	"fundLedger/internal/storage"
	"fundLedger/internal/token"
	"fundLedger/internal/vault"
)

// Programs are the owner identities records are derived under.
type Programs struct {
	Fund  solana.PublicKey
	Vault solana.PublicKey
}

// Router wires the engines to a store and a journal.
type Router struct {
	store    *ledger.Store
	journal  storage.Journal
	logger   *zap.Logger
	programs Programs

	registry  *registry.Service
	fundAuth  *delegation.Ledger
	vaultAuth *delegation.Ledger
	funds     *fund.Engine
	vaults    *vault.Engine
	custody   token.Custody
}

func New(store *ledger.Store, programs Programs, journal storage.Journal, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = storage.Discard{}
	}
	custody := token.Ledger{}
	reg := registry.New(programs.Fund)
	fundAuth := delegation.NewFundLedger(programs.Fund, reg)
	vaultAuth := delegation.NewVaultLedger(programs.Vault, reg)
	funds := fund.NewEngine(programs.Fund, reg, fundAuth, custody)
	return &Router{
		store:     store,
		journal:   journal,
		logger:    logger,
		programs:  programs,
		registry:  reg,
		fundAuth:  fundAuth,
		vaultAuth: vaultAuth,
		funds:     funds,
		vaults:    vault.NewEngine(programs.Vault, funds, vaultAuth, custody),
		custody:   custody,
	}
}

// exec runs fn as one atomic unit and journals it on commit. fn may add to
// detail; detail is only recorded when the unit commits.
func (r *Router) exec(ctx context.Context, op string, caller solana.PublicKey, detail map[string]string, fn func(tx *ledger.Tx) error) error {
	receipt, err := r.store.Update(ctx, fn)
	if err != nil {
		if kind := ledger.KindOf(err); kind != "" {
			r.logger.Warn("operation rejected",
				zap.String("op", op),
				zap.String("caller", caller.String()),
				zap.String("kind", string(kind)),
				zap.String("code", string(ledger.CodeOf(err))),
				zap.Error(err),
			)
		} else {
			r.logger.Error("operation failed", zap.String("op", op), zap.String("caller", caller.String()), zap.Error(err))
		}
		return err
	}

	entry := newEntry(op, caller, detail, receipt)
	r.logger.Info("operation committed",
		zap.String("op", op),
		zap.String("id", entry.ID),
		zap.String("caller", entry.Caller),
		zap.Strings("written", entry.Written),
	)
	if err := r.journal.AppendEntries(ctx, []model.JournalEntry{entry}); err != nil {
		r.logger.Error("journal append failed", zap.String("id", entry.ID), zap.String("op", op), zap.Error(err))
	}
	return nil
}

func newEntry(op string, caller solana.PublicKey, detail map[string]string, receipt ledger.Receipt) model.JournalEntry {
	entry := model.JournalEntry{
		ID:          uuid.NewString(),
		Op:          op,
		Caller:      caller.String(),
		Accounts:    keyStrings(receipt.Touched),
		Written:     keyStrings(receipt.Written),
		CommittedAt: receipt.At.UTC().Format(time.RFC3339Nano),
	}
	if len(detail) > 0 {
		entry.Detail = detail
	}
	for _, refund := range receipt.Refunds {
		entry.Refunds = append(entry.Refunds, model.RefundRecord{
			From:     refund.From.String(),
			To:       refund.To.String(),
			Lamports: refund.Lamports,
		})
	}
	return entry
}

func keyStrings(keys []solana.PublicKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

func amountDetail(amount uint64) map[string]string {
	return map[string]string{"amount": strconv.FormatUint(amount, 10)}
}

// Initialize creates the registry with admin as its administrator.
func (r *Router) Initialize(ctx context.Context, admin solana.PublicKey) (solana.PublicKey, error) {
	addr := r.registry.Address()
	err := r.exec(ctx, "initialize", admin, map[string]string{"registry": addr.String()}, func(tx *ledger.Tx) error {
		_, err := r.registry.Initialize(tx, admin)
		return err
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

func (r *Router) grant(ctx context.Context, op string, l *delegation.Ledger, admin, creator solana.PublicKey) (solana.PublicKey, error) {
	var addr solana.PublicKey
	detail := map[string]string{"creator": creator.String()}
	err := r.exec(ctx, op, admin, detail, func(tx *ledger.Tx) error {
		if _, err := l.Grant(tx, admin, creator); err != nil {
			return err
		}
		derived, err := l.Address(creator)
		if err != nil {
			return err
		}
		addr = derived.Address
		detail["record"] = addr.String()
		return nil
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

func (r *Router) revoke(ctx context.Context, op string, l *delegation.Ledger, admin, creator solana.PublicKey) (ledger.Refund, error) {
	var refund ledger.Refund
	err := r.exec(ctx, op, admin, map[string]string{"creator": creator.String()}, func(tx *ledger.Tx) (err error) {
		refund, err = l.Revoke(tx, admin, creator)
		return err
	})
	return refund, err
}

// GrantFundCreator lets creator create funds.
func (r *Router) GrantFundCreator(ctx context.Context, admin, creator solana.PublicKey) (solana.PublicKey, error) {
	return r.grant(ctx, "grant-fund", r.fundAuth, admin, creator)
}

// RevokeFundCreator withdraws creator's fund permission and refunds the
// record's deposit to admin.
func (r *Router) RevokeFundCreator(ctx context.Context, admin, creator solana.PublicKey) (ledger.Refund, error) {
	return r.revoke(ctx, "revoke-fund", r.fundAuth, admin, creator)
}

// GrantVaultCreator lets creator deploy vaults.
func (r *Router) GrantVaultCreator(ctx context.Context, admin, creator solana.PublicKey) (solana.PublicKey, error) {
	return r.grant(ctx, "grant-vault", r.vaultAuth, admin, creator)
}

// RevokeVaultCreator withdraws creator's vault permission.
func (r *Router) RevokeVaultCreator(ctx context.Context, admin, creator solana.PublicKey) (ledger.Refund, error) {
	return r.revoke(ctx, "revoke-vault", r.vaultAuth, admin, creator)
}

// CreateFund allocates the next nonce and creates a fund.
func (r *Router) CreateFund(ctx context.Context, creator solana.PublicKey, params fund.Params) (solana.PublicKey, error) {
	var addr solana.PublicKey
	detail := map[string]string{
		"manager":     params.Manager.String(),
		"risk_oracle": params.RiskOracle.String(),
		"asset_mint":  params.AssetMint.String(),
		"slippage":    strconv.FormatUint(params.LiquidationSlippage, 10),
	}
	err := r.exec(ctx, "create-fund", creator, detail, func(tx *ledger.Tx) error {
		a, f, err := r.funds.CreateFund(tx, creator, params)
		if err != nil {
			return err
		}
		addr = a
		detail["fund"] = a.String()
		detail["nonce"] = strconv.FormatUint(f.Nonce, 10)
		return nil
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

// BindVault binds vaultAddr to fundAddr. Only the fund manager may bind, once.
func (r *Router) BindVault(ctx context.Context, manager, fundAddr, vaultAddr solana.PublicKey) error {
	detail := map[string]string{"fund": fundAddr.String(), "vault": vaultAddr.String()}
	return r.exec(ctx, "bind-vault", manager, detail, func(tx *ledger.Tx) error {
		return r.funds.BindVault(tx, fundAddr, manager, vaultAddr)
	})
}

// OpenRedemption moves the fund to Liquidating on the risk oracle's word.
func (r *Router) OpenRedemption(ctx context.Context, oracle, fundAddr solana.PublicKey) error {
	return r.exec(ctx, "open-redemption", oracle, map[string]string{"fund": fundAddr.String()}, func(tx *ledger.Tx) error {
		return r.funds.OpenRedemption(tx, fundAddr, oracle)
	})
}

// Disburse pays amount from the fund treasury to the asset recipient.
func (r *Router) Disburse(ctx context.Context, manager, fundAddr solana.PublicKey, amount uint64) error {
	detail := amountDetail(amount)
	detail["fund"] = fundAddr.String()
	return r.exec(ctx, "disburse", manager, detail, func(tx *ledger.Tx) error {
		return r.funds.Disburse(tx, fundAddr, manager, amount)
	})
}

// CreateVault creates the vault for params.LinkedFund without binding it.
func (r *Router) CreateVault(ctx context.Context, creator solana.PublicKey, params vault.Params) (solana.PublicKey, error) {
	return r.createVault(ctx, "create-vault", creator, params, false)
}

// DeployVault creates the vault and binds it to its fund in one unit.
func (r *Router) DeployVault(ctx context.Context, creator solana.PublicKey, params vault.Params) (solana.PublicKey, error) {
	return r.createVault(ctx, "deploy-vault", creator, params, true)
}

func (r *Router) createVault(ctx context.Context, op string, creator solana.PublicKey, params vault.Params, bind bool) (solana.PublicKey, error) {
	var addr solana.PublicKey
	detail := map[string]string{
		"fund":        params.LinkedFund.String(),
		"manager":     params.Manager.String(),
		"trading_bot": params.TradingBot.String(),
		"start":       params.Schedule.Start.UTC().Format(time.RFC3339),
		"end":         params.Schedule.End.UTC().Format(time.RFC3339),
		"min_deposit": strconv.FormatUint(params.MinDepositAmount, 10),
	}
	err := r.exec(ctx, op, creator, detail, func(tx *ledger.Tx) error {
		a, _, err := r.vaults.CreateVault(tx, creator, params)
		if err != nil {
			return err
		}
		if bind {
			if err := r.funds.BindVault(tx, params.LinkedFund, creator, a); err != nil {
				return err
			}
		}
		addr = a
		detail["vault"] = a.String()
		return nil
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

func (r *Router) vaultOp(ctx context.Context, op string, caller, vaultAddr solana.PublicKey, amount uint64, fn func(tx *ledger.Tx) error) error {
	detail := amountDetail(amount)
	detail["vault"] = vaultAddr.String()
	return r.exec(ctx, op, caller, detail, fn)
}

// Deposit moves depositor's assets into the vault for vault shares.
func (r *Router) Deposit(ctx context.Context, depositor, vaultAddr solana.PublicKey, amount uint64) error {
	return r.vaultOp(ctx, "deposit", depositor, vaultAddr, amount, func(tx *ledger.Tx) error {
		return r.vaults.Deposit(tx, vaultAddr, depositor, amount)
	})
}

// Withdraw pays idle assets to the vault manager.
func (r *Router) Withdraw(ctx context.Context, manager, vaultAddr solana.PublicKey, amount uint64) error {
	return r.vaultOp(ctx, "withdraw", manager, vaultAddr, amount, func(tx *ledger.Tx) error {
		return r.vaults.Withdraw(tx, vaultAddr, manager, amount)
	})
}

// AddLiquidity moves idle assets to the trading bot.
func (r *Router) AddLiquidity(ctx context.Context, bot, vaultAddr solana.PublicKey, amount uint64) error {
	return r.vaultOp(ctx, "add-liquidity", bot, vaultAddr, amount, func(tx *ledger.Tx) error {
		return r.vaults.AddLiquidity(tx, vaultAddr, bot, amount)
	})
}

// RemoveLiquidity returns assets from the trading bot.
func (r *Router) RemoveLiquidity(ctx context.Context, bot, vaultAddr solana.PublicKey, amount uint64) error {
	return r.vaultOp(ctx, "remove-liquidity", bot, vaultAddr, amount, func(tx *ledger.Tx) error {
		return r.vaults.RemoveLiquidity(tx, vaultAddr, bot, amount)
	})
}

// Subscribe deploys idle vault assets into the linked fund.
func (r *Router) Subscribe(ctx context.Context, manager, vaultAddr solana.PublicKey, amount uint64) error {
	return r.vaultOp(ctx, "subscribe", manager, vaultAddr, amount, func(tx *ledger.Tx) error {
		return r.vaults.Subscribe(tx, vaultAddr, manager, amount)
	})
}

// Liquidate redeems fund shares held by the vault and reports what the fund
// treasury returned.
func (r *Router) Liquidate(ctx context.Context, caller, vaultAddr solana.PublicKey, amount uint64) (uint64, error) {
	var returned uint64
	detail := amountDetail(amount)
	detail["vault"] = vaultAddr.String()
	err := r.exec(ctx, "liquidate", caller, detail, func(tx *ledger.Tx) (err error) {
		if returned, err = r.vaults.Liquidate(tx, vaultAddr, caller, amount); err != nil {
			return err
		}
		detail["returned"] = strconv.FormatUint(returned, 10)
		return nil
	})
	return returned, err
}

// Redeem burns holder's vault shares and reports the payout.
func (r *Router) Redeem(ctx context.Context, holder, vaultAddr solana.PublicKey, shares uint64) (uint64, error) {
	var payout uint64
	detail := map[string]string{"vault": vaultAddr.String(), "shares": strconv.FormatUint(shares, 10)}
	err := r.exec(ctx, "redeem", holder, detail, func(tx *ledger.Tx) (err error) {
		if payout, err = r.vaults.Redeem(tx, vaultAddr, holder, shares); err != nil {
			return err
		}
		detail["payout"] = strconv.FormatUint(payout, 10)
		return nil
	})
	return payout, err
}

// RedeemFund burns holder's fund shares and reports the treasury payout.
func (r *Router) RedeemFund(ctx context.Context, holder, fundAddr solana.PublicKey, shares uint64) (uint64, error) {
	var payout uint64
	detail := map[string]string{"fund": fundAddr.String(), "shares": strconv.FormatUint(shares, 10)}
	err := r.exec(ctx, "redeem-fund", holder, detail, func(tx *ledger.Tx) (err error) {
		if payout, err = r.funds.Redeem(tx, fundAddr, holder, shares); err != nil {
			return err
		}
		detail["payout"] = strconv.FormatUint(payout, 10)
		return nil
	})
	return payout, err
}

// CreateMint creates a token mint controlled by authority.
func (r *Router) CreateMint(ctx context.Context, authority, mint solana.PublicKey, decimals uint8) error {
	detail := map[string]string{"mint": mint.String(), "decimals": strconv.Itoa(int(decimals))}
	return r.exec(ctx, "create-mint", authority, detail, func(tx *ledger.Tx) error {
		return r.custody.CreateMint(tx, mint, authority, decimals)
	})
}

// CreateTokenAccount creates owner's associated account for mint if needed.
func (r *Router) CreateTokenAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	var addr solana.PublicKey
	detail := map[string]string{"mint": mint.String()}
	err := r.exec(ctx, "create-token-account", owner, detail, func(tx *ledger.Tx) (err error) {
		if addr, err = r.custody.EnsureAccount(tx, owner, mint); err != nil {
			return err
		}
		detail["account"] = addr.String()
		return nil
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

// MintTo issues amount of mint into account to.
func (r *Router) MintTo(ctx context.Context, authority, mint, to solana.PublicKey, amount uint64) error {
	detail := amountDetail(amount)
	detail["mint"] = mint.String()
	detail["to"] = to.String()
	return r.exec(ctx, "mint-to", authority, detail, func(tx *ledger.Tx) error {
		return r.custody.MintTo(tx, mint, to, authority, amount)
	})
}
