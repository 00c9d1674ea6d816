package model

// RedemptionTrigger is a decoded RedemptionTriggered log from the risk
// contract.
type RedemptionTrigger struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Contract    string `json:"contract"`
	Fund        string `json:"fund"`
	Reporter    string `json:"reporter"`
	ObservedAt  uint64 `json:"observed_at"`
	Reason      string `json:"reason"`
}
