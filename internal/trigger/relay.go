// Package trigger relays risk-contract RedemptionTriggered events from an EVM
// chain into OpenRedemption calls on the ledger.
package trigger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"fundLedger/internal/ledger"
	"fundLedger/internal/model"
)

// LogSource is the part of chain.Client the relay reads from.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Submitter opens redemption on a fund; the router implements it.
type Submitter interface {
	OpenRedemption(ctx context.Context, oracle, fundAddr solana.PublicKey) error
}

// Config holds runtime settings for the relay.
type Config struct {
	Contract     common.Address
	Oracle       solana.PublicKey
	FromBlock    uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Summary reports one poll.
type Summary struct {
	From      uint64
	To        uint64
	Events    int
	Submitted int
	Skipped   int
}

// Relay polls the risk contract and submits OpenRedemption for each event.
type Relay struct {
	cfg        Config
	source     LogSource
	submitter  Submitter
	checkpoint Checkpointer
	logger     *zap.Logger
}

// NewRelay builds a Relay. A nil checkpoint starts every poll at FromBlock.
func NewRelay(cfg Config, source LogSource, submitter Submitter, checkpoint Checkpointer, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkpoint == nil {
		checkpoint = NewFileCheckpoint("", false)
	}
	return &Relay{
		cfg:        cfg,
		source:     source,
		submitter:  submitter,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// Poll processes every block from the checkpoint up to the chain head.
// Ledger rejections are logged and skipped; any other error stops the poll
// with the checkpoint left at the last completed batch.
func (r *Relay) Poll(ctx context.Context) (Summary, error) {
	if r.source == nil {
		return Summary{}, fmt.Errorf("log source is nil")
	}
	if r.submitter == nil {
		return Summary{}, fmt.Errorf("submitter is nil")
	}
	if r.cfg.BatchSize == 0 {
		return Summary{}, fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Oracle.IsZero() {
		return Summary{}, fmt.Errorf("oracle identity is required")
	}
	topic0, err := Topic0()
	if err != nil {
		return Summary{}, err
	}

	chainID, err := r.source.GetChainID(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return Summary{}, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	from := r.cfg.FromBlock
	last, ok, err := r.checkpoint.Load(ctx)
	if err != nil {
		return Summary{}, err
	}
	if ok && last >= from {
		from = last + 1
		r.logger.Debug("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
	}

	var to uint64
	err = r.retry(ctx, "latest block", func(ctx context.Context) error {
		var err error
		to, err = r.source.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return Summary{}, fmt.Errorf("get latest block: %w", err)
	}

	summary := Summary{From: from, To: to}
	if from > to {
		r.logger.Debug("nothing to relay", zap.Uint64("from", from), zap.Uint64("to", to))
		return summary, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}
	// A log is only marked once it has been handled, so a failed submission
	// is retried by the next poll from the unchanged checkpoint.
	handled := make(map[string]struct{})
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		logs, err := r.filterLogsWithRetry(ctx, blockRange, topic0)
		if err != nil {
			return summary, fmt.Errorf("filter logs: %w", err)
		}
		for _, log := range logs {
			id := logID(log)
			if _, ok := handled[id]; ok {
				continue
			}
			event, err := DecodeLog(chainID.Uint64(), log)
			if err != nil {
				r.logger.Warn("skip undecodable log", zap.Error(err), zap.Uint64("block_number", log.BlockNumber), zap.String("tx_hash", log.TxHash.Hex()))
				handled[id] = struct{}{}
				summary.Skipped++
				continue
			}
			summary.Events++
			submitted, err := r.submit(ctx, event)
			if err != nil {
				return summary, err
			}
			handled[id] = struct{}{}
			if submitted {
				summary.Submitted++
			} else {
				summary.Skipped++
			}
		}

		if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
			return summary, err
		}
		r.logger.Info("relay batch complete", zap.Int("logs", len(logs)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}
	return summary, nil
}

func (r *Relay) submit(ctx context.Context, event model.RedemptionTrigger) (bool, error) {
	fields := []zap.Field{
		zap.String("fund", event.Fund),
		zap.String("reporter", event.Reporter),
		zap.String("reason", event.Reason),
		zap.Uint64("block_number", event.BlockNumber),
	}
	fundAddr, err := solana.PublicKeyFromBase58(event.Fund)
	if err != nil {
		return false, fmt.Errorf("fund key: %w", err)
	}
	err = r.retry(ctx, "open redemption", func(ctx context.Context) error {
		return r.submitter.OpenRedemption(ctx, r.cfg.Oracle, fundAddr)
	})
	switch {
	case err == nil:
		r.logger.Info("redemption opened", fields...)
		return true, nil
	case ledger.CodeOf(err) == ledger.CodeInvalidStatus:
		r.logger.Info("fund already liquidating", fields...)
		return false, nil
	case ledger.KindOf(err) != "":
		r.logger.Warn("trigger rejected", append(fields, zap.Error(err))...)
		return false, nil
	default:
		return false, fmt.Errorf("open redemption for %s: %w", event.Fund, err)
	}
}

func (r *Relay) filterLogsWithRetry(ctx context.Context, blockRange BlockRange, topic0 common.Hash) ([]types.Log, error) {
	var logs []types.Log
	op := fmt.Sprintf("filter logs %d-%d", blockRange.From, blockRange.To)
	err := r.retry(ctx, op, func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{r.cfg.Contract}, []common.Hash{topic0})
		return err
	})
	return logs, err
}

func logID(log types.Log) string {
	return fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
}
