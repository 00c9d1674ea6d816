package trigger

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const riskContractABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "fund", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "reporter", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "observedAt", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "reason", "type": "string"}
    ],
    "name": "RedemptionTriggered",
    "type": "event"
  }
]`

// EventName is the risk contract event the relay acts on.
const EventName = "RedemptionTriggered"

var (
	riskContractABI     abi.ABI
	riskContractABIOnce sync.Once
	riskContractABIErr  error
)

// RiskContractABI returns the parsed risk contract ABI.
func RiskContractABI() (abi.ABI, error) {
	riskContractABIOnce.Do(func() {
		riskContractABI, riskContractABIErr = abi.JSON(strings.NewReader(riskContractABIJSON))
	})
	return riskContractABI, riskContractABIErr
}
