package vault

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/delegation"
	"fundLedger/internal/fund"
	"fundLedger/internal/ledger"
	"fundLedger/internal/registry"
	"fundLedger/internal/token"
)

func key(b byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32))
}

var (
	program   = key(100)
	admin     = key(1)
	creator   = key(2)
	manager   = key(3)
	oracle    = key(4)
	assetMint = key(83)
	recipient = key(6)
	bot       = key(7)
	alice     = key(8)
	bob       = key(9)

	windowStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = windowStart.Add(30 * 24 * time.Hour)
)

type fixture struct {
	t       *testing.T
	store   *ledger.Store
	now     time.Time
	funds   *fund.Engine
	vaults  *Engine
	custody token.Ledger
	fund    solana.PublicKey
	vault   solana.PublicKey
}

// newFixture builds a fund with 100 bps slippage and a bound vault, and
// gives alice and bob 1000 asset units each.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New(program)
	fundAuth := delegation.NewFundLedger(program, reg)
	vaultAuth := delegation.NewVaultLedger(program, reg)
	f := &fixture{
		t:     t,
		store: ledger.NewStore(ledger.NewMemoryBackend()),
		now:   windowStart.Add(time.Hour),
	}
	f.store.SetClock(func() time.Time { return f.now })
	f.funds = fund.NewEngine(program, reg, fundAuth, f.custody)
	f.vaults = NewEngine(program, f.funds, vaultAuth, f.custody)

	f.update(func(tx *ledger.Tx) error {
		if _, err := reg.Initialize(tx, admin); err != nil {
			return err
		}
		if _, err := fundAuth.Grant(tx, admin, creator); err != nil {
			return err
		}
		if _, err := vaultAuth.Grant(tx, admin, manager); err != nil {
			return err
		}
		if err := f.custody.CreateMint(tx, assetMint, admin, 6); err != nil {
			return err
		}
		recipientAc, err := f.custody.EnsureAccount(tx, recipient, assetMint)
		if err != nil {
			return err
		}
		for _, holder := range []solana.PublicKey{alice, bob} {
			ac, err := f.custody.EnsureAccount(tx, holder, assetMint)
			if err != nil {
				return err
			}
			if err := f.custody.MintTo(tx, assetMint, ac, admin, 1000); err != nil {
				return err
			}
		}
		f.fund, _, err = f.funds.CreateFund(tx, creator, fund.Params{
			Manager:             manager,
			RiskOracle:          oracle,
			AssetMint:           assetMint,
			AssetRecipient:      recipientAc,
			LiquidationSlippage: 100,
		})
		return err
	})
	f.update(func(tx *ledger.Tx) error {
		var err error
		f.vault, _, err = f.vaults.CreateVault(tx, manager, f.params())
		if err != nil {
			return err
		}
		return f.funds.BindVault(tx, f.fund, manager, f.vault)
	})
	return f
}

func (f *fixture) params() Params {
	return Params{
		Manager:          manager,
		TradingBot:       bot,
		LinkedFund:       f.fund,
		Schedule:         Schedule{Start: windowStart, End: windowEnd},
		MinDepositAmount: 10,
	}
}

func (f *fixture) update(fn func(tx *ledger.Tx) error) {
	f.t.Helper()
	if _, err := f.store.Update(context.Background(), fn); err != nil {
		f.t.Fatalf("update: %v", err)
	}
}

func (f *fixture) try(fn func(tx *ledger.Tx) error) error {
	_, err := f.store.Update(context.Background(), fn)
	return err
}

func (f *fixture) state() (*Vault, *fund.Fund) {
	f.t.Helper()
	var (
		v  *Vault
		fd *fund.Fund
	)
	err := f.store.View(context.Background(), func(tx *ledger.Tx) error {
		var err error
		if v, err = f.vaults.Load(tx, f.vault); err != nil {
			return err
		}
		fd, err = f.funds.Load(tx, f.fund)
		return err
	})
	if err != nil {
		f.t.Fatalf("load state: %v", err)
	}
	return v, fd
}

func (f *fixture) balance(account solana.PublicKey) uint64 {
	f.t.Helper()
	var n uint64
	err := f.store.View(context.Background(), func(tx *ledger.Tx) error {
		var err error
		n, err = f.custody.Balance(tx, account)
		return err
	})
	if err != nil {
		f.t.Fatalf("balance of %s: %v", account, err)
	}
	return n
}

func (f *fixture) ata(owner, mint solana.PublicKey) solana.PublicKey {
	f.t.Helper()
	addr, err := ledger.AssociatedAccount(owner, mint)
	if err != nil {
		f.t.Fatalf("associated account: %v", err)
	}
	return addr
}

func (f *fixture) deposit(holder solana.PublicKey, amount uint64) error {
	return f.try(func(tx *ledger.Tx) error { return f.vaults.Deposit(tx, f.vault, holder, amount) })
}

func (f *fixture) subscribe(amount uint64) error {
	return f.try(func(tx *ledger.Tx) error { return f.vaults.Subscribe(tx, f.vault, manager, amount) })
}

func (f *fixture) liquidate(caller solana.PublicKey, amount uint64) (uint64, error) {
	var returned uint64
	err := f.try(func(tx *ledger.Tx) error {
		var err error
		returned, err = f.vaults.Liquidate(tx, f.vault, caller, amount)
		return err
	})
	return returned, err
}

func (f *fixture) redeem(holder solana.PublicKey, shares uint64) (uint64, error) {
	var out uint64
	err := f.try(func(tx *ledger.Tx) error {
		var err error
		out, err = f.vaults.Redeem(tx, f.vault, holder, shares)
		return err
	})
	return out, err
}

func (f *fixture) openRedemption() {
	f.update(func(tx *ledger.Tx) error { return f.funds.OpenRedemption(tx, f.fund, oracle) })
}

// checkConservation asserts the vault's accounting matches the token
// balances it stands for.
func (f *fixture) checkConservation() {
	f.t.Helper()
	v, _ := f.state()
	if got := f.balance(v.AssetTreasury); got != v.Idle() {
		f.t.Fatalf("idle %d but asset treasury holds %d", v.Idle(), got)
	}
	if got := f.balance(v.VaultTreasury); got != v.DeployedToFund {
		f.t.Fatalf("deployed to fund %d but vault holds %d fund shares", v.DeployedToFund, got)
	}
	if v.Idle()+v.DeployedToFund+v.DeployedToTrading != v.FundAmount {
		f.t.Fatalf("balances do not add up: %+v", v)
	}
}

func TestCreateVaultPairing(t *testing.T) {
	f := newFixture(t)

	v, fd := f.state()
	if fd.Vault == nil || !fd.Vault.Equals(f.vault) {
		t.Fatalf("fund vault = %v, want %s", fd.Vault, f.vault)
	}
	if !v.LinkedFund.Equals(f.fund) {
		t.Fatalf("linked fund = %s, want %s", v.LinkedFund, f.fund)
	}
	want, err := f.vaults.Address(f.fund)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !want.Address.Equals(f.vault) {
		t.Fatalf("vault %s does not re-derive (%s)", f.vault, want.Address)
	}

	err = f.try(func(tx *ledger.Tx) error {
		_, _, err := f.vaults.CreateVault(tx, manager, f.params())
		return err
	})
	if !errors.Is(err, ledger.ErrVaultAlreadySet) {
		t.Fatalf("expected VaultAlreadySet for a second vault, got %v", err)
	}
}

func TestCreateVaultRejects(t *testing.T) {
	f := newFixture(t)

	var second solana.PublicKey
	f.update(func(tx *ledger.Tx) error {
		var err error
		second, _, err = f.funds.CreateFund(tx, creator, fund.Params{
			Manager:        manager,
			RiskOracle:     oracle,
			AssetMint:      assetMint,
			AssetRecipient: f.ata(recipient, assetMint),
		})
		return err
	})

	tests := []struct {
		name    string
		creator solana.PublicKey
		mutate  func(p *Params)
		want    error
	}{
		{"no delegation", creator, func(p *Params) {}, ledger.ErrUnauthorized},
		{"empty bot", manager, func(p *Params) { p.TradingBot = solana.PublicKey{} }, ledger.ErrInvalidAccount},
		{"inverted schedule", manager, func(p *Params) { p.Schedule.Start, p.Schedule.End = windowEnd, windowStart }, ledger.ErrInvalidSchedule},
		{"empty schedule", manager, func(p *Params) { p.Schedule.End = p.Schedule.Start }, ledger.ErrInvalidSchedule},
		{"unknown fund", manager, func(p *Params) { p.LinkedFund = key(90) }, ledger.ErrAccountNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.try(func(tx *ledger.Tx) error {
				p := f.params()
				p.LinkedFund = second
				tc.mutate(&p)
				_, _, err := f.vaults.CreateVault(tx, tc.creator, p)
				return err
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	p := f.params()
	p.LinkedFund = second
	f.update(func(tx *ledger.Tx) error {
		_, _, err := f.vaults.CreateVault(tx, manager, p)
		return err
	})
	err := f.try(func(tx *ledger.Tx) error {
		_, _, err := f.vaults.CreateVault(tx, manager, p)
		return err
	})
	if !errors.Is(err, ledger.ErrAlreadyInitialized) {
		t.Fatalf("expected AlreadyInitialized for an unbound duplicate, got %v", err)
	}
}

func TestOperationsRequireBinding(t *testing.T) {
	f := newFixture(t)

	var second, unbound solana.PublicKey
	f.update(func(tx *ledger.Tx) error {
		var err error
		second, _, err = f.funds.CreateFund(tx, creator, fund.Params{
			Manager:        manager,
			RiskOracle:     oracle,
			AssetMint:      assetMint,
			AssetRecipient: f.ata(recipient, assetMint),
		})
		if err != nil {
			return err
		}
		p := f.params()
		p.LinkedFund = second
		unbound, _, err = f.vaults.CreateVault(tx, manager, p)
		return err
	})

	err := f.try(func(tx *ledger.Tx) error { return f.vaults.Deposit(tx, unbound, alice, 100) })
	if !errors.Is(err, ledger.ErrVaultNotBound) {
		t.Fatalf("expected VaultNotBound, got %v", err)
	}
}

func TestDepositWindowAndMinimum(t *testing.T) {
	f := newFixture(t)

	if err := f.deposit(alice, 9); !errors.Is(err, ledger.ErrBelowMinimumDeposit) {
		t.Fatalf("expected BelowMinimumDeposit, got %v", err)
	}
	if err := f.deposit(alice, 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected InvalidAmount, got %v", err)
	}
	if err := f.deposit(alice, 10); err != nil {
		t.Fatalf("deposit at minimum: %v", err)
	}

	f.now = windowEnd
	if err := f.deposit(alice, 10); err != nil {
		t.Fatalf("deposit at window end: %v", err)
	}
	f.now = windowEnd.Add(time.Second)
	if err := f.deposit(alice, 10); !errors.Is(err, ledger.ErrOutsideFundingWindow) {
		t.Fatalf("expected OutsideFundingWindow after end, got %v", err)
	}
	f.now = windowStart.Add(-time.Second)
	if err := f.deposit(alice, 10); !errors.Is(err, ledger.ErrOutsideFundingWindow) {
		t.Fatalf("expected OutsideFundingWindow before start, got %v", err)
	}
	if err := f.deposit(alice, 5000); !errors.Is(err, ledger.ErrOutsideFundingWindow) {
		t.Fatalf("window check should come before balance, got %v", err)
	}

	v, _ := f.state()
	if v.FundAmount != 20 {
		t.Fatalf("fund amount = %d, want 20", v.FundAmount)
	}
	if got := f.balance(f.ata(alice, v.VaultMint)); got != 20 {
		t.Fatalf("alice shares = %d, want 20", got)
	}
	if got := f.balance(f.ata(alice, assetMint)); got != 980 {
		t.Fatalf("alice assets = %d, want 980", got)
	}
	f.checkConservation()
}

func TestDepositWithoutFundsRollsBack(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 1001); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	v, _ := f.state()
	if v.FundAmount != 0 {
		t.Fatalf("fund amount = %d after rejected deposit", v.FundAmount)
	}
}

func TestSubscriptionScenario(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 300); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := f.try(func(tx *ledger.Tx) error { return f.vaults.Subscribe(tx, f.vault, bot, 100) }); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized for bot, got %v", err)
	}
	if err := f.subscribe(100); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	v, fd := f.state()
	if fd.TotalSubscription != 100 {
		t.Fatalf("total subscription = %d, want 100", fd.TotalSubscription)
	}
	if v.DeployedToFund != 100 || v.Idle() != 200 {
		t.Fatalf("deployed/idle = %d/%d, want 100/200", v.DeployedToFund, v.Idle())
	}
	if got := f.balance(fd.AssetTreasury); got != 100 {
		t.Fatalf("fund treasury = %d, want 100", got)
	}
	f.checkConservation()

	if err := f.subscribe(201); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds beyond idle, got %v", err)
	}

	f.openRedemption()
	err := f.subscribe(100)
	if ledger.KindOf(err) != ledger.KindState {
		t.Fatalf("expected state error while Liquidating, got %v", err)
	}
	v, fd = f.state()
	if fd.TotalSubscription != 100 || v.DeployedToFund != 100 || v.Idle() != 200 {
		t.Fatalf("rejected subscription changed state: fund %+v vault %+v", fd, v)
	}
}

func TestLiquidity(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	add := func(caller solana.PublicKey, amount uint64) error {
		return f.try(func(tx *ledger.Tx) error { return f.vaults.AddLiquidity(tx, f.vault, caller, amount) })
	}
	remove := func(caller solana.PublicKey, amount uint64) error {
		return f.try(func(tx *ledger.Tx) error { return f.vaults.RemoveLiquidity(tx, f.vault, caller, amount) })
	}

	if err := add(manager, 100); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized for manager, got %v", err)
	}
	if err := add(bot, 501); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds beyond idle, got %v", err)
	}
	if err := add(bot, 300); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if got := f.balance(f.ata(bot, assetMint)); got != 300 {
		t.Fatalf("bot holds %d, want 300", got)
	}
	if err := remove(bot, 301); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds beyond trading balance, got %v", err)
	}
	if err := remove(bot, 120); err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}

	v, _ := f.state()
	if v.DeployedToTrading != 180 || v.Idle() != 320 || v.FundAmount != 500 {
		t.Fatalf("vault = %+v", v)
	}
	f.checkConservation()
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 200); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.subscribe(150); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	withdraw := func(caller solana.PublicKey, amount uint64) error {
		return f.try(func(tx *ledger.Tx) error { return f.vaults.Withdraw(tx, f.vault, caller, amount) })
	}
	if err := withdraw(alice, 10); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if err := withdraw(manager, 51); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds beyond idle, got %v", err)
	}
	if err := withdraw(manager, 50); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	v, _ := f.state()
	if v.FundAmount != 150 || v.Idle() != 0 {
		t.Fatalf("vault = %+v", v)
	}
	if got := f.balance(f.ata(manager, assetMint)); got != 50 {
		t.Fatalf("manager holds %d, want 50", got)
	}
	f.checkConservation()
}

func TestLiquidation(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 400); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.subscribe(400); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := f.liquidate(manager, 100); !errors.Is(err, ledger.ErrInvalidStatus) {
		t.Fatalf("expected InvalidStatus while Running, got %v", err)
	}

	// The fund pays 2 out to its recipient, so 400 shares stand for 398.
	f.update(func(tx *ledger.Tx) error { return f.funds.Disburse(tx, f.fund, manager, 2) })
	f.openRedemption()

	if _, err := f.liquidate(bot, 100); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized for bot, got %v", err)
	}
	if _, err := f.liquidate(manager, 401); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds beyond deployed, got %v", err)
	}

	got, err := f.liquidate(oracle, 200)
	if err != nil {
		t.Fatalf("liquidate half: %v", err)
	}
	if got != 199 {
		t.Fatalf("returned %d, want floor(200*398/400) = 199", got)
	}
	if got, err := f.liquidate(manager, 200); err != nil || got != 199 {
		t.Fatalf("liquidate rest = %d, %v, want the remaining 199", got, err)
	}

	v, fd := f.state()
	if fd.TotalRedemption != 400 || fd.TotalSubscription != 400 {
		t.Fatalf("totals = %d/%d, want 400/400", fd.TotalSubscription, fd.TotalRedemption)
	}
	if v.DeployedToFund != 0 || v.Idle() != 398 || v.FundAmount != 398 {
		t.Fatalf("vault = %+v", v)
	}
	if got := f.balance(fd.AssetTreasury); got != 0 {
		t.Fatalf("fund treasury keeps %d after full liquidation", got)
	}
	f.checkConservation()
}

func TestLiquidationSlippageExceeded(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 400); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.subscribe(400); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	f.update(func(tx *ledger.Tx) error { return f.funds.Disburse(tx, f.fund, manager, 150) })
	f.openRedemption()

	// 200 shares against 250 left for 400 is 125, far outside 100 bps.
	if _, err := f.liquidate(manager, 200); !errors.Is(err, ledger.ErrSlippageExceeded) {
		t.Fatalf("expected SlippageExceeded, got %v", err)
	}
	v, fd := f.state()
	if fd.TotalRedemption != 0 || v.DeployedToFund != 400 {
		t.Fatalf("rejected liquidation left redemption %d, deployed %d", fd.TotalRedemption, v.DeployedToFund)
	}
	if got := f.balance(fd.AssetTreasury); got != 250 {
		t.Fatalf("fund treasury = %d, want 250", got)
	}
	f.checkConservation()
}

func TestLiquidationAbovePar(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 300); err != nil {
		t.Fatalf("deposit alice: %v", err)
	}
	if err := f.deposit(bob, 100); err != nil {
		t.Fatalf("deposit bob: %v", err)
	}
	if err := f.subscribe(400); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, fd := f.state()
	// The fund's position comes back with a 40 gain.
	f.update(func(tx *ledger.Tx) error { return f.custody.MintTo(tx, assetMint, fd.AssetTreasury, admin, 40) })
	f.openRedemption()

	if got, err := f.liquidate(manager, 100); err != nil || got != 110 {
		t.Fatalf("liquidate 100 = %d, %v, want 110", got, err)
	}
	if got, err := f.liquidate(manager, 300); err != nil || got != 330 {
		t.Fatalf("liquidate 300 = %d, %v, want 330", got, err)
	}
	v, fd := f.state()
	if v.FundAmount != 440 || v.Idle() != 440 {
		t.Fatalf("vault = %+v", v)
	}
	if fd.TotalRedemption != 400 {
		t.Fatalf("total redemption = %d, want 400", fd.TotalRedemption)
	}
	f.checkConservation()

	if got, err := f.redeem(bob, 100); err != nil || got != 110 {
		t.Fatalf("redeem bob = %d, %v, want 110", got, err)
	}
	if got, err := f.redeem(alice, 300); err != nil || got != 330 {
		t.Fatalf("redeem alice = %d, %v, want 330", got, err)
	}
	if got := f.balance(f.ata(alice, assetMint)); got != 700+330 {
		t.Fatalf("alice assets = %d", got)
	}
	f.checkConservation()
}

func TestLiquidationWithinTolerance(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.subscribe(1000); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	f.update(func(tx *ledger.Tx) error { return f.funds.Disburse(tx, f.fund, manager, 10) })
	f.openRedemption()

	got, err := f.liquidate(manager, 1000)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if got != 990 {
		t.Fatalf("returned %d, want 990", got)
	}
	v, _ := f.state()
	if v.FundAmount != 990 || v.DeployedToFund != 0 || v.Idle() != 990 {
		t.Fatalf("vault = %+v", v)
	}
	f.checkConservation()
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	if err := f.deposit(alice, 300); err != nil {
		t.Fatalf("deposit alice: %v", err)
	}
	if err := f.deposit(bob, 100); err != nil {
		t.Fatalf("deposit bob: %v", err)
	}
	if err := f.subscribe(400); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := f.redeem(alice, 10); !errors.Is(err, ledger.ErrInvalidStatus) {
		t.Fatalf("expected InvalidStatus while Running, got %v", err)
	}
	f.update(func(tx *ledger.Tx) error { return f.funds.Disburse(tx, f.fund, manager, 2) })
	f.openRedemption()
	if _, err := f.redeem(alice, 10); !errors.Is(err, ledger.ErrNotSettled) {
		t.Fatalf("expected NotSettled with assets still in the fund, got %v", err)
	}
	if _, err := f.liquidate(manager, 400); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// 398 assets back against 400 shares.
	got, err := f.redeem(bob, 100)
	if err != nil {
		t.Fatalf("redeem bob: %v", err)
	}
	if got != 99 {
		t.Fatalf("bob paid %d, want floor(100*398/400) = 99", got)
	}
	if _, err := f.redeem(bob, 1); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds for spent shares, got %v", err)
	}
	got, err = f.redeem(alice, 300)
	if err != nil {
		t.Fatalf("redeem alice: %v", err)
	}
	if got != 299 {
		t.Fatalf("alice paid %d, want the remaining 299", got)
	}

	v, _ := f.state()
	if v.FundAmount != 0 {
		t.Fatalf("fund amount = %d after full redemption", v.FundAmount)
	}
	if got := f.balance(f.ata(alice, assetMint)); got != 700+299 {
		t.Fatalf("alice assets = %d", got)
	}
	f.checkConservation()
}

func TestSlippageFloor(t *testing.T) {
	tests := []struct {
		amount, bps, want uint64
	}{
		{1000, 100, 990},
		{200, 100, 198},
		{1, 100, 1},
		{999, 1, 999},
		{1000, 0, 1000},
		{1000, fund.MaxSlippageBps, 0},
	}
	for _, tc := range tests {
		if got := SlippageFloor(tc.amount, tc.bps); got != tc.want {
			t.Fatalf("SlippageFloor(%d, %d) = %d, want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}
