package trigger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"

	"fundLedger/internal/model"
)

func triggerEvent() (abi.Event, error) {
	parsed, err := RiskContractABI()
	if err != nil {
		return abi.Event{}, fmt.Errorf("parse risk abi: %w", err)
	}
	event, ok := parsed.Events[EventName]
	if !ok {
		return abi.Event{}, fmt.Errorf("event %s missing from abi", EventName)
	}
	return event, nil
}

// Topic0 is the RedemptionTriggered event signature hash.
func Topic0() (common.Hash, error) {
	event, err := triggerEvent()
	if err != nil {
		return common.Hash{}, err
	}
	return event.ID, nil
}

// DecodeLog decodes a RedemptionTriggered log. The indexed fund topic carries
// the 32-byte ledger address of the fund.
func DecodeLog(chainID uint64, log types.Log) (model.RedemptionTrigger, error) {
	event, err := triggerEvent()
	if err != nil {
		return model.RedemptionTrigger{}, err
	}
	if len(log.Topics) != 3 {
		return model.RedemptionTrigger{}, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return model.RedemptionTrigger{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.RedemptionTrigger{}, fmt.Errorf("unpack data: %w", err)
	}
	if len(values) != 2 {
		return model.RedemptionTrigger{}, fmt.Errorf("expected 2 data values, got %d", len(values))
	}
	observedAt, ok := values[0].(*big.Int)
	if !ok || !observedAt.IsUint64() {
		return model.RedemptionTrigger{}, fmt.Errorf("invalid observedAt %v", values[0])
	}
	reason, ok := values[1].(string)
	if !ok {
		return model.RedemptionTrigger{}, fmt.Errorf("invalid reason %v", values[1])
	}

	fund := solana.PublicKeyFromBytes(log.Topics[1].Bytes())
	return model.RedemptionTrigger{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Contract:    log.Address.Hex(),
		Fund:        fund.String(),
		Reporter:    common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		ObservedAt:  observedAt.Uint64(),
		Reason:      reason,
	}, nil
}

// EncodeLog builds the log a risk contract emits for fund.
func EncodeLog(contract common.Address, fund solana.PublicKey, reporter common.Address, observedAt uint64, reason string) (types.Log, error) {
	event, err := triggerEvent()
	if err != nil {
		return types.Log{}, err
	}
	data, err := event.Inputs.NonIndexed().Pack(new(big.Int).SetUint64(observedAt), reason)
	if err != nil {
		return types.Log{}, fmt.Errorf("pack data: %w", err)
	}
	return types.Log{
		Address: contract,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(fund[:]),
			common.BytesToHash(reporter.Bytes()),
		},
		Data: data,
	}, nil
}
