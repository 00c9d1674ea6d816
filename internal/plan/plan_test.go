package plan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/ledger"
	"fundLedger/internal/router"
)

const lifecyclePlan = `
names:
  admin: ""
  creator: ""
  manager: ""
  oracle: ""
  bot: ""
  alice: ""
  usdc: ""
  payee: ""
steps:
  - op: initialize
    as: admin
  - op: grant-fund
    as: admin
    args: {creator: creator}
  - op: grant-vault
    as: admin
    args: {creator: manager}
  - op: create-mint
    as: admin
    args: {mint: usdc, decimals: "6"}
  - op: create-token-account
    as: payee
    args: {mint: usdc}
  - op: create-token-account
    as: alice
    args: {mint: usdc}
  - op: mint-to
    as: admin
    args: {mint: usdc, to-owner: alice, amount: "1000"}
  - op: create-fund
    as: creator
    args: {manager: manager, oracle: oracle, asset-mint: usdc, recipient-owner: payee, slippage: "100"}
    save: fund
  - op: deploy-vault
    as: manager
    args: {fund: fund, bot: bot, start: "2026-01-01T00:00:00Z", end: "2026-02-01T00:00:00Z", min-deposit: "10"}
    save: vault
  - op: deposit
    as: alice
    args: {vault: vault, amount: "250.5"}
  - op: subscribe
    as: manager
    args: {vault: vault, amount: "200"}
  - op: open-redemption
    as: oracle
    args: {fund: fund}
  - op: liquidate
    as: manager
    args: {vault: vault, amount: "200"}
  - op: redeem
    as: alice
    args: {vault: vault, shares: "250.5"}
`

func newExecutor(t *testing.T) (*Executor, *router.Router) {
	t.Helper()
	store := ledger.NewStore(ledger.NewMemoryBackend())
	store.SetClock(func() time.Time { return time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC) })
	program := solana.MustPublicKeyFromBase58("8pRSLehr1aSzXY38S9RLnmNHmniVWcNjgNfRhEYpL7VF")
	r := router.New(store, router.Programs{Fund: program, Vault: program}, nil, nil)
	return NewExecutor(r, 6, nil), r
}

func TestRunLifecyclePlan(t *testing.T) {
	p, err := Parse([]byte(lifecyclePlan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	exec, r := newExecutor(t)
	ctx := context.Background()

	results, err := exec.Run(ctx, p, solana.PublicKey{}, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != len(p.Steps) {
		t.Fatalf("expected %d results, got %d", len(p.Steps), len(results))
	}

	last := results[len(results)-1]
	if len(last.Values) != 1 || last.Values[0].Name != "payout" || last.Values[0].Value != "250.500000" {
		t.Fatalf("unexpected redeem result: %+v", last.Values)
	}
	liquidated := results[len(results)-2]
	if liquidated.Values[0].Value != "200.000000" {
		t.Fatalf("unexpected liquidation result: %+v", liquidated.Values)
	}

	fundAddr, err := exec.Resolve("fund")
	if err != nil {
		t.Fatalf("resolve fund: %v", err)
	}
	f, err := r.Fund(ctx, fundAddr)
	if err != nil {
		t.Fatalf("load fund: %v", err)
	}
	if f.TotalSubscription != 200_000_000 || f.TotalRedemption != 200_000_000 {
		t.Fatalf("unexpected fund totals: %+v", f)
	}

	alice, _ := exec.Resolve("alice")
	usdc, _ := exec.Resolve("usdc")
	account, err := ledger.AssociatedAccount(alice, usdc)
	if err != nil {
		t.Fatalf("derive account: %v", err)
	}
	balance, err := r.Balance(ctx, account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1_000_000_000 {
		t.Fatalf("expected alice made whole, got %d", balance)
	}
}

func TestRedeemFundStep(t *testing.T) {
	p, err := Parse([]byte(lifecyclePlan + `  - op: redeem-fund
    as: alice
    args: {fund: fund, shares: "1"}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	exec, _ := newExecutor(t)

	// The vault has liquidated every fund share, so none are left to redeem.
	results, err := exec.Run(context.Background(), p, solana.PublicKey{}, false)
	if err == nil || !strings.Contains(err.Error(), "(redeem-fund)") {
		t.Fatalf("expected redeem-fund failure, got %v", err)
	}
	if ledger.CodeOf(err) != ledger.CodeInsufficientFunds {
		t.Fatalf("expected InsufficientFunds, got %s", ledger.CodeOf(err))
	}
	if len(results) != len(p.Steps) {
		t.Fatalf("expected %d results, got %d", len(p.Steps), len(results))
	}
}

func TestRunStopsOnFirstFailure(t *testing.T) {
	p, err := Parse([]byte(`
names:
  admin: ""
  mallory: ""
steps:
  - op: initialize
    as: admin
  - op: grant-fund
    as: mallory
    args: {creator: mallory}
  - op: grant-fund
    as: admin
    args: {creator: mallory}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	exec, r := newExecutor(t)

	results, err := exec.Run(context.Background(), p, solana.PublicKey{}, false)
	if err == nil || !strings.Contains(err.Error(), "step 2 (grant-fund)") {
		t.Fatalf("expected step 2 failure, got %v", err)
	}
	if ledger.CodeOf(err) != ledger.CodeUnauthorized {
		t.Fatalf("expected Unauthorized, got %s", ledger.CodeOf(err))
	}
	if len(results) != 2 {
		t.Fatalf("expected run to stop after 2 steps, got %d", len(results))
	}
	mallory, _ := exec.Resolve("mallory")
	if ok, _ := r.HasFundCreator(context.Background(), mallory); ok {
		t.Fatalf("grant should not have run")
	}
}

func TestRunContinueOnError(t *testing.T) {
	p, err := Parse([]byte(`
names:
  admin: ""
  creator: ""
steps:
  - op: initialize
    as: admin
  - op: initialize
    as: admin
  - op: grant-fund
    as: admin
    args: {creator: creator}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	exec, r := newExecutor(t)

	results, err := exec.Run(context.Background(), p, solana.PublicKey{}, true)
	if ledger.CodeOf(err) != ledger.CodeAlreadyInitialized {
		t.Fatalf("expected AlreadyInitialized in joined error, got %v", err)
	}
	if len(results) != 3 || results[1].Err == nil || results[2].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
	creator, _ := exec.Resolve("creator")
	if ok, _ := r.HasFundCreator(context.Background(), creator); !ok {
		t.Fatalf("grant after failed step should have run")
	}
}

func TestParseRejectsUnknownOps(t *testing.T) {
	if _, err := Parse([]byte("steps:\n  - op: teleport\n")); err == nil {
		t.Fatalf("expected unknown op error")
	}
	if _, err := Parse([]byte("steps: []\n")); err == nil {
		t.Fatalf("expected empty plan error")
	}
}

func TestArgs(t *testing.T) {
	values, err := ParseArgs([]string{"amount=1.25", "slippage=50", "start=2026-01-01T00:00:00Z", "vault=v"})
	if err != nil {
		t.Fatalf("parse args: %v", err)
	}
	v := solana.MustPublicKeyFromBase58("8pRSLehr1aSzXY38S9RLnmNHmniVWcNjgNfRhEYpL7VF")
	args := Args{values: values, names: map[string]solana.PublicKey{"v": v}, decimals: 6}

	if amount, err := args.Amount("amount"); err != nil || amount != 1_250_000 {
		t.Fatalf("amount = %d, %v", amount, err)
	}
	if bps, err := args.Uint("slippage"); err != nil || bps != 50 {
		t.Fatalf("slippage = %d, %v", bps, err)
	}
	if tm, err := args.Time("start"); err != nil || tm.Unix() != 1767225600 {
		t.Fatalf("start = %s, %v", tm, err)
	}
	if k, err := args.Key("vault"); err != nil || !k.Equals(v) {
		t.Fatalf("vault = %s, %v", k, err)
	}
	if _, err := args.Key("fund"); err == nil {
		t.Fatalf("expected missing argument error")
	}
	if _, err := ParseArgs([]string{"novalue"}); err == nil {
		t.Fatalf("expected malformed pair error")
	}
}
