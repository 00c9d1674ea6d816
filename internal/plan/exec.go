package plan

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"fundLedger/internal/fund"
	"fundLedger/internal/router"
	"fundLedger/internal/vault"
)

// Result is what one operation produced.
type Result struct {
	Step    int
	Op      string
	Caller  solana.PublicKey
	Address solana.PublicKey
	Values  []router.Field
	Err     error
}

type operation func(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error)

var operations = map[string]operation{
	"initialize":           opInitialize,
	"create-mint":          opCreateMint,
	"create-token-account": opCreateTokenAccount,
	"mint-to":              opMintTo,
	"grant-fund":           opGrant(false),
	"revoke-fund":          opRevoke(false),
	"grant-vault":          opGrant(true),
	"revoke-vault":         opRevoke(true),
	"create-fund":          opCreateFund,
	"bind-vault":           opBindVault,
	"open-redemption":      opOpenRedemption,
	"disburse":             opDisburse,
	"create-vault":         opCreateVault(false),
	"deploy-vault":         opCreateVault(true),
	"deposit":              opVaultAmount((*router.Router).Deposit),
	"withdraw":             opVaultAmount((*router.Router).Withdraw),
	"add-liquidity":        opVaultAmount((*router.Router).AddLiquidity),
	"remove-liquidity":     opVaultAmount((*router.Router).RemoveLiquidity),
	"subscribe":            opVaultAmount((*router.Router).Subscribe),
	"liquidate":            opLiquidate,
	"redeem":               opRedeem,
	"redeem-fund":          opRedeemFund,
}

// Ops lists the supported operation names.
func Ops() []string {
	out := make([]string, 0, len(operations))
	for name := range operations {
		out = append(out, name)
	}
	return out
}

// Executor resolves names and dispatches operations to a router.
type Executor struct {
	router   *router.Router
	decimals uint8
	names    map[string]solana.PublicKey
	logger   *zap.Logger
}

// NewExecutor builds an executor. decimals scales amount arguments.
func NewExecutor(r *router.Router, decimals uint8, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{router: r, decimals: decimals, names: make(map[string]solana.PublicKey), logger: logger}
}

// Name binds label to key for later resolution.
func (e *Executor) Name(label string, key solana.PublicKey) {
	e.names[label] = key
}

// Resolve turns a name or base58 string into a key.
func (e *Executor) Resolve(v string) (solana.PublicKey, error) {
	return resolve(e.names, v)
}

// Exec runs a single operation as caller.
func (e *Executor) Exec(ctx context.Context, op string, caller solana.PublicKey, values map[string]string) (Result, error) {
	fn, ok := operations[op]
	if !ok {
		return Result{Op: op, Caller: caller}, fmt.Errorf("unknown op %q", op)
	}
	res, err := fn(ctx, e, caller, Args{values: values, names: e.names, decimals: e.decimals})
	res.Op = op
	res.Caller = caller
	res.Err = err
	return res, err
}

// Run executes every step of p in order. Without continueOnError the first
// failure stops the run; otherwise all failures are joined.
func (e *Executor) Run(ctx context.Context, p *Plan, defaultCaller solana.PublicKey, continueOnError bool) ([]Result, error) {
	for label, value := range p.Names {
		if value == "" {
			wallet := solana.NewWallet()
			e.names[label] = wallet.PublicKey()
			continue
		}
		key, err := solana.PublicKeyFromBase58(value)
		if err != nil {
			return nil, fmt.Errorf("name %q: %w", label, err)
		}
		e.names[label] = key
	}

	results := make([]Result, 0, len(p.Steps))
	var errs []error
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		caller := defaultCaller
		if step.As != "" {
			k, err := e.Resolve(step.As)
			if err != nil {
				return results, fmt.Errorf("step %d (%s): caller: %w", i+1, step.Op, err)
			}
			caller = k
		}
		if caller.IsZero() {
			return results, fmt.Errorf("step %d (%s): no caller", i+1, step.Op)
		}

		res, err := e.Exec(ctx, step.Op, caller, step.Args)
		res.Step = i + 1
		results = append(results, res)
		if err != nil {
			e.logger.Warn("plan step failed", zap.Int("step", i+1), zap.String("op", step.Op), zap.Error(err))
			err = fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			if !continueOnError {
				return results, err
			}
			errs = append(errs, err)
			continue
		}
		if step.Save != "" && !res.Address.IsZero() {
			e.names[step.Save] = res.Address
		}
	}
	return results, errors.Join(errs...)
}

func opInitialize(ctx context.Context, e *Executor, caller solana.PublicKey, _ Args) (Result, error) {
	addr, err := e.router.Initialize(ctx, caller)
	return Result{Address: addr}, err
}

func opCreateMint(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	mint, err := args.Key("mint")
	if err != nil {
		return Result{}, err
	}
	decimals, err := args.UintOr("decimals", uint64(e.decimals))
	if err != nil {
		return Result{}, err
	}
	if decimals > 18 {
		return Result{}, fmt.Errorf("decimals %d out of range", decimals)
	}
	err = e.router.CreateMint(ctx, caller, mint, uint8(decimals))
	return Result{Address: mint}, err
}

func opCreateTokenAccount(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	mint, err := args.Key("mint")
	if err != nil {
		return Result{}, err
	}
	owner, err := args.KeyOr("owner", caller)
	if err != nil {
		return Result{}, err
	}
	addr, err := e.router.CreateTokenAccount(ctx, owner, mint)
	return Result{Address: addr}, err
}

func opMintTo(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	mint, err := args.Key("mint")
	if err != nil {
		return Result{}, err
	}
	to, err := args.Account("to", mint)
	if err != nil {
		return Result{}, err
	}
	amount, err := args.Amount("amount")
	if err != nil {
		return Result{}, err
	}
	return Result{Address: to}, e.router.MintTo(ctx, caller, mint, to, amount)
}

func opGrant(vaultCreator bool) operation {
	return func(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
		creator, err := args.Key("creator")
		if err != nil {
			return Result{}, err
		}
		grant := e.router.GrantFundCreator
		if vaultCreator {
			grant = e.router.GrantVaultCreator
		}
		addr, err := grant(ctx, caller, creator)
		return Result{Address: addr}, err
	}
}

func opRevoke(vaultCreator bool) operation {
	return func(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
		creator, err := args.Key("creator")
		if err != nil {
			return Result{}, err
		}
		revoke := e.router.RevokeFundCreator
		if vaultCreator {
			revoke = e.router.RevokeVaultCreator
		}
		refund, err := revoke(ctx, caller, creator)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Address: refund.From,
			Values: []router.Field{
				{Name: "refund_to", Value: refund.To.String()},
				{Name: "lamports", Value: strconv.FormatUint(refund.Lamports, 10)},
			},
		}, nil
	}
}

func opCreateFund(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	var params fund.Params
	var err error
	if params.Manager, err = args.KeyOr("manager", caller); err != nil {
		return Result{}, err
	}
	if params.RiskOracle, err = args.Key("oracle"); err != nil {
		return Result{}, err
	}
	if params.AssetMint, err = args.Key("asset-mint"); err != nil {
		return Result{}, err
	}
	if params.AssetRecipient, err = args.Account("recipient", params.AssetMint); err != nil {
		return Result{}, err
	}
	if params.LiquidationSlippage, err = args.UintOr("slippage", 0); err != nil {
		return Result{}, err
	}
	addr, err := e.router.CreateFund(ctx, caller, params)
	return Result{Address: addr}, err
}

func opBindVault(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	fundAddr, err := args.Key("fund")
	if err != nil {
		return Result{}, err
	}
	vaultAddr, err := args.Key("vault")
	if err != nil {
		return Result{}, err
	}
	return Result{Address: fundAddr}, e.router.BindVault(ctx, caller, fundAddr, vaultAddr)
}

func opOpenRedemption(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	fundAddr, err := args.Key("fund")
	if err != nil {
		return Result{}, err
	}
	return Result{Address: fundAddr}, e.router.OpenRedemption(ctx, caller, fundAddr)
}

func opDisburse(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	fundAddr, err := args.Key("fund")
	if err != nil {
		return Result{}, err
	}
	amount, err := args.Amount("amount")
	if err != nil {
		return Result{}, err
	}
	return Result{Address: fundAddr}, e.router.Disburse(ctx, caller, fundAddr, amount)
}

func opCreateVault(bind bool) operation {
	return func(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
		var params vault.Params
		var err error
		if params.LinkedFund, err = args.Key("fund"); err != nil {
			return Result{}, err
		}
		if params.Manager, err = args.KeyOr("manager", caller); err != nil {
			return Result{}, err
		}
		if params.TradingBot, err = args.Key("bot"); err != nil {
			return Result{}, err
		}
		if params.Schedule.Start, err = args.Time("start"); err != nil {
			return Result{}, err
		}
		if params.Schedule.End, err = args.Time("end"); err != nil {
			return Result{}, err
		}
		if args.has("min-deposit") {
			if params.MinDepositAmount, err = args.Amount("min-deposit"); err != nil {
				return Result{}, err
			}
		}
		create := e.router.CreateVault
		if bind {
			create = e.router.DeployVault
		}
		addr, err := create(ctx, caller, params)
		return Result{Address: addr}, err
	}
}

type vaultAmountFunc func(r *router.Router, ctx context.Context, caller, vaultAddr solana.PublicKey, amount uint64) error

func opVaultAmount(fn vaultAmountFunc) operation {
	return func(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
		vaultAddr, amount, err := vaultAmount(args, "amount")
		if err != nil {
			return Result{}, err
		}
		return Result{Address: vaultAddr}, fn(e.router, ctx, caller, vaultAddr, amount)
	}
}

func opLiquidate(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	vaultAddr, amount, err := vaultAmount(args, "amount")
	if err != nil {
		return Result{}, err
	}
	returned, err := e.router.Liquidate(ctx, caller, vaultAddr, amount)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Address: vaultAddr,
		Values:  []router.Field{{Name: "returned", Value: router.FormatAmount(returned, e.decimals)}},
	}, nil
}

func opRedeem(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	vaultAddr, shares, err := vaultAmount(args, "shares")
	if err != nil {
		return Result{}, err
	}
	payout, err := e.router.Redeem(ctx, caller, vaultAddr, shares)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Address: vaultAddr,
		Values:  []router.Field{{Name: "payout", Value: router.FormatAmount(payout, e.decimals)}},
	}, nil
}

func opRedeemFund(ctx context.Context, e *Executor, caller solana.PublicKey, args Args) (Result, error) {
	fundAddr, err := args.Key("fund")
	if err != nil {
		return Result{}, err
	}
	shares, err := args.Amount("shares")
	if err != nil {
		return Result{}, err
	}
	payout, err := e.router.RedeemFund(ctx, caller, fundAddr, shares)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Address: fundAddr,
		Values:  []router.Field{{Name: "payout", Value: router.FormatAmount(payout, e.decimals)}},
	}, nil
}

func vaultAmount(args Args, amountArg string) (solana.PublicKey, uint64, error) {
	vaultAddr, err := args.Key("vault")
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	amount, err := args.Amount(amountArg)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return vaultAddr, amount, nil
}
