package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Options tune how the relay reads the chain.
type Options struct {
	// Confirmations is how many blocks behind the head a log must be before
	// the relay acts on it.
	Confirmations uint64
	// CallTimeout bounds each RPC call; zero leaves the caller's context alone.
	CallTimeout time.Duration
}

// Client reads risk-contract logs over JSON-RPC.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	opts      Options

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return newClient(rpcClient, opts), nil
}

func newClient(rpcClient *rpc.Client, opts Options) *Client {
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		opts:      opts,
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

// GetChainID returns the chain ID. It is fetched once per client.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// LatestBlockNumber returns the newest block with enough confirmations,
// or zero while the chain is shorter than the confirmation depth.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	head, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if head < c.opts.Confirmations {
		return 0, nil
	}
	return head - c.opts.Confirmations, nil
}

// FilterLogs returns logs emitted by addresses in [fromBlock, toBlock] whose
// first topic is one of topic0.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid log range %d-%d", fromBlock, toBlock)
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}
	// Logs from a block that was reorged out are delivered with Removed set.
	kept := logs[:0]
	for _, log := range logs {
		if !log.Removed {
			kept = append(kept, log)
		}
	}
	return kept, nil
}
