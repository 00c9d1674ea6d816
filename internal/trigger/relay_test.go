package trigger

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/fund"
	"fundLedger/internal/ledger"
	"fundLedger/internal/router"
)

func key(b byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32))
}

var (
	riskContract = common.HexToAddress("0x9999999999999999999999999999999999999999")
	reporter     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	oracle       = key(4)
)

type fakeSource struct {
	head  uint64
	logs  []types.Log
	calls int
	fail  error
}

func (s *fakeSource) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(56), nil }

func (s *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return s.head, nil }

func (s *fakeSource) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	var out []types.Log
	for _, log := range s.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(addresses) > 0 && log.Address != addresses[0] {
			continue
		}
		if len(topic0) > 0 && log.Topics[0] != topic0[0] {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (s *fakeSource) emit(t *testing.T, block uint64, index uint, fundAddr solana.PublicKey) {
	t.Helper()
	log, err := EncodeLog(riskContract, fundAddr, reporter, 1767225600, "drawdown")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	log.BlockNumber = block
	log.Index = index
	log.TxHash = common.BigToHash(new(big.Int).SetUint64(block))
	s.logs = append(s.logs, log)
}

func newLedger(t *testing.T) (*router.Router, solana.PublicKey) {
	t.Helper()
	ctx := context.Background()
	admin, creator, manager, asset, payee := key(1), key(2), key(3), key(83), key(6)

	r := router.New(ledger.NewStore(ledger.NewMemoryBackend()), router.Programs{Fund: key(100), Vault: key(101)}, nil, nil)
	if _, err := r.Initialize(ctx, admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := r.GrantFundCreator(ctx, admin, creator); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := r.CreateMint(ctx, admin, asset, 6); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	payeeAc, err := r.CreateTokenAccount(ctx, payee, asset)
	if err != nil {
		t.Fatalf("payee account: %v", err)
	}
	fundAddr, err := r.CreateFund(ctx, creator, fund.Params{
		Manager:        manager,
		RiskOracle:     oracle,
		AssetMint:      asset,
		AssetRecipient: payeeAc,
	})
	if err != nil {
		t.Fatalf("create fund: %v", err)
	}
	return r, fundAddr
}

func TestRelayOpensRedemption(t *testing.T) {
	ctx := context.Background()
	r, fundAddr := newLedger(t)

	source := &fakeSource{head: 10}
	source.emit(t, 5, 0, fundAddr)
	source.emit(t, 5, 0, fundAddr)
	source.emit(t, 7, 1, key(99))
	source.emit(t, 9, 0, fundAddr)

	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "relay.json"), true)
	relay := NewRelay(Config{
		Contract:  riskContract,
		Oracle:    oracle,
		FromBlock: 1,
		BatchSize: 4,
	}, source, r, checkpoint, nil)

	summary, err := relay.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if summary.Events != 3 || summary.Submitted != 1 || summary.Skipped != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if source.calls != 3 {
		t.Fatalf("filter calls = %d, want 3", source.calls)
	}

	f, err := r.Fund(ctx, fundAddr)
	if err != nil {
		t.Fatalf("load fund: %v", err)
	}
	if f.Status != fund.StatusLiquidating {
		t.Fatalf("status = %s, want Liquidating", f.Status)
	}

	last, ok, err := checkpoint.Load(ctx)
	if err != nil || !ok || last != 10 {
		t.Fatalf("checkpoint = %d, %v, %v", last, ok, err)
	}

	summary, err = relay.Poll(ctx)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if summary.Events != 0 || summary.From != 11 {
		t.Fatalf("second summary = %+v", summary)
	}
}

func TestRelayIgnoresOtherOracles(t *testing.T) {
	ctx := context.Background()
	r, fundAddr := newLedger(t)

	source := &fakeSource{head: 3}
	source.emit(t, 2, 0, fundAddr)
	relay := NewRelay(Config{Contract: riskContract, Oracle: key(44), BatchSize: 10}, source, r, nil, nil)

	summary, err := relay.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if summary.Submitted != 0 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	f, err := r.Fund(ctx, fundAddr)
	if err != nil {
		t.Fatalf("load fund: %v", err)
	}
	if f.Status != fund.StatusRunning {
		t.Fatalf("status = %s, want Running", f.Status)
	}
}

type failingSubmitter struct{}

func (failingSubmitter) OpenRedemption(context.Context, solana.PublicKey, solana.PublicKey) error {
	return errors.New("connection reset")
}

func TestRelayStopsOnInfrastructureErrors(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{head: 20}
	source.emit(t, 15, 0, key(50))

	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "relay.json"), true)
	relay := NewRelay(Config{Contract: riskContract, Oracle: oracle, BatchSize: 10}, source, failingSubmitter{}, checkpoint, nil)
	if _, err := relay.Poll(ctx); err == nil {
		t.Fatalf("expected poll to fail")
	}
	last, ok, err := checkpoint.Load(ctx)
	if err != nil || !ok || last != 9 {
		t.Fatalf("checkpoint = %d, %v, %v; want the batch before the failure", last, ok, err)
	}

	source.fail = errors.New("rpc down")
	relay = NewRelay(Config{Contract: riskContract, Oracle: oracle, BatchSize: 10, MaxRetries: 2, RetryBackoff: time.Millisecond}, source, failingSubmitter{}, nil, nil)
	calls := source.calls
	if _, err := relay.Poll(ctx); err == nil {
		t.Fatalf("expected filter failure")
	}
	if got := source.calls - calls; got != 3 {
		t.Fatalf("filter attempts = %d, want 3", got)
	}
}

// flakySubmitter fails the first failures calls, then forwards to next.
type flakySubmitter struct {
	next     Submitter
	failures int
	calls    int
}

func (s *flakySubmitter) OpenRedemption(ctx context.Context, oracle, fundAddr solana.PublicKey) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("database is locked")
	}
	return s.next.OpenRedemption(ctx, oracle, fundAddr)
}

func TestRelayRetriesFailedTriggerOnNextPoll(t *testing.T) {
	ctx := context.Background()
	r, fundAddr := newLedger(t)

	source := &fakeSource{head: 10}
	source.emit(t, 6, 0, fundAddr)
	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "relay.json"), true)
	submitter := &flakySubmitter{next: r, failures: 1}
	relay := NewRelay(Config{Contract: riskContract, Oracle: oracle, BatchSize: 20}, source, submitter, checkpoint, nil)

	if _, err := relay.Poll(ctx); err == nil {
		t.Fatalf("expected first poll to fail")
	}
	if _, ok, _ := checkpoint.Load(ctx); ok {
		t.Fatalf("checkpoint should not advance past a failed trigger")
	}

	summary, err := relay.Poll(ctx)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if summary.Events != 1 || summary.Submitted != 1 {
		t.Fatalf("summary = %+v, want the trigger submitted", summary)
	}
	f, err := r.Fund(ctx, fundAddr)
	if err != nil {
		t.Fatalf("load fund: %v", err)
	}
	if f.Status != fund.StatusLiquidating {
		t.Fatalf("status = %s, want Liquidating", f.Status)
	}
}

func TestRelayRetriesSubmissionWithinPoll(t *testing.T) {
	ctx := context.Background()
	r, fundAddr := newLedger(t)

	source := &fakeSource{head: 10}
	source.emit(t, 6, 0, fundAddr)
	submitter := &flakySubmitter{next: r, failures: 2}
	relay := NewRelay(Config{Contract: riskContract, Oracle: oracle, BatchSize: 20, MaxRetries: 2, RetryBackoff: time.Millisecond}, source, submitter, nil, nil)

	summary, err := relay.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if summary.Submitted != 1 || submitter.calls != 3 {
		t.Fatalf("summary = %+v after %d calls", summary, submitter.calls)
	}
}

func TestRelayDoesNotRetryRejections(t *testing.T) {
	ctx := context.Background()
	r, fundAddr := newLedger(t)

	source := &fakeSource{head: 10}
	source.emit(t, 6, 0, fundAddr)
	submitter := &flakySubmitter{next: r}
	relay := NewRelay(Config{Contract: riskContract, Oracle: key(44), BatchSize: 20, MaxRetries: 3, RetryBackoff: time.Millisecond}, source, submitter, nil, nil)

	summary, err := relay.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if summary.Skipped != 1 || submitter.calls != 1 {
		t.Fatalf("summary = %+v after %d calls, want one rejected call", summary, submitter.calls)
	}
}
