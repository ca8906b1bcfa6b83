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
	"golang.org/x/time/rate"
)

const (
	defaultCallTimeout = 15 * time.Second
	maxTimestampCache  = 100_000
)

// Options tunes how the client talks to the node.
type Options struct {
	// CallTimeout bounds every RPC call. Zero uses the default.
	CallTimeout time.Duration
	// RequestsPerSecond caps outgoing calls. Zero disables rate limiting.
	RequestsPerSecond float64
	Burst             int
}

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   *rate.Limiter
	timeout   time.Duration

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return newClient(rpcClient, opts), nil
}

func newClient(rpcClient *rpc.Client, opts Options) *Client {
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		limiter:   limiter,
		timeout:   timeout,
		tsCache:   make(map[uint64]uint64),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// call waits for the rate limiter and derives a context bounded by the call timeout.
func (c *Client) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	return callCtx, cancel, nil
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	return c.ethClient.BlockNumber(ctx)
}

// BlockByNumber returns the block with full transaction objects.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	block, err := c.ethClient.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}
	c.cacheTimestamp(block.NumberU64(), block.Time())
	return block, nil
}

// TransactionReceipt returns the settled receipt of a transaction.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.TransactionReceipt(ctx, hash)
}

// TransactionSender recovers the sender of a transaction included in a block.
func (c *Client) TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return common.Address{}, err
	}
	defer cancel()
	return c.ethClient.TransactionSender(ctx, tx, block, index)
}

// BalanceAt returns the wei balance of an address at a block height.
func (c *Client) BalanceAt(ctx context.Context, address common.Address, blockNumber uint64) (*big.Int, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.BalanceAt(ctx, address, new(big.Int).SetUint64(blockNumber))
}

// CodeAt returns the runtime bytecode at an address. A nil blockNumber means latest.
func (c *Client) CodeAt(ctx context.Context, address common.Address, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.CodeAt(ctx, address, blockNumber)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	header, err := c.ethClient.HeaderByNumber(callCtx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	c.cacheTimestamp(number, header.Time)
	return header.Time, nil
}

func (c *Client) cacheTimestamp(number, ts uint64) {
	c.mu.Lock()
	if len(c.tsCache) >= maxTimestampCache {
		c.tsCache = make(map[uint64]uint64)
	}
	c.tsCache[number] = ts
	c.mu.Unlock()
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}

	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.FilterLogs(ctx, query)
}

// CallContract performs an eth_call for a contract method. A nil blockNumber means latest.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
