package tokens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"chainScope/internal/model"
)

// revertError is what a node returns for a reverted eth_call.
type revertError struct{}

func (revertError) Error() string { return "execution reverted" }
func (revertError) ErrorCode() int { return 3 }

var errTransport = errors.New("dial tcp 127.0.0.1:8545: connection refused")

// fakeContract answers calls by method name. Methods without a response revert.
type fakeContract struct {
	responses map[string][]byte
}

func packOutputs(t *testing.T, method string, values ...interface{}) []byte {
	t.Helper()
	parsed, err := tokenABIInstance()
	require.NoError(t, err)
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

func packBytes32(t *testing.T, method, value string) []byte {
	t.Helper()
	parsed, err := tokenABIBytes32Instance()
	require.NoError(t, err)
	var word [32]byte
	copy(word[:], value)
	out, err := parsed.Methods[method].Outputs.Pack(word)
	require.NoError(t, err)
	return out
}

func erc20Contract(t *testing.T, name, symbol string, decimals uint8, supply int64) *fakeContract {
	return &fakeContract{responses: map[string][]byte{
		"name":        packOutputs(t, "name", name),
		"symbol":      packOutputs(t, "symbol", symbol),
		"decimals":    packOutputs(t, "decimals", decimals),
		"totalSupply": packOutputs(t, "totalSupply", big.NewInt(supply)),
	}}
}

func erc721Contract(t *testing.T, name string) *fakeContract {
	return &fakeContract{responses: map[string][]byte{
		"name":              packOutputs(t, "name", name),
		"supportsInterface": packOutputs(t, "supportsInterface", true),
	}}
}

type fakeCaller struct {
	mu        sync.Mutex
	contracts map[common.Address]*fakeContract
	failing   map[common.Address]bool
	calls     map[common.Address]int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		contracts: make(map[common.Address]*fakeContract),
		failing:   make(map[common.Address]bool),
		calls:     make(map[common.Address]int),
	}
}

func (c *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("bad call")
	}
	c.calls[*msg.To]++
	if c.failing[*msg.To] {
		return nil, errTransport
	}
	contract, ok := c.contracts[*msg.To]
	if !ok {
		// Accounts without code answer every call with empty data.
		return []byte{}, nil
	}
	parsed, err := tokenABIInstance()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, revertError{}
	}
	resp, ok := contract.responses[method.Name]
	if !ok {
		return nil, revertError{}
	}
	return resp, nil
}

func (c *fakeCaller) callCount(address common.Address) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[address]
}

// fakeChain serves blocks, receipts, logs and code for scanner and indexer tests.
type fakeChain struct {
	*fakeCaller

	mu         sync.Mutex
	head       uint64
	blocks     map[uint64]*types.Block
	receipts   map[common.Hash]*types.Receipt
	failBlocks map[uint64]bool
	logs       []types.Log
	code       map[common.Address][]byte
	logQueries [][2]uint64

	// timestampFailures is how many BlockTimestamp calls fail before one succeeds.
	timestampFailures int
}

func newFakeChain(head uint64) *fakeChain {
	c := &fakeChain{
		fakeCaller: newFakeCaller(),
		head:       head,
		blocks:     make(map[uint64]*types.Block),
		receipts:   make(map[common.Hash]*types.Receipt),
		failBlocks: make(map[uint64]bool),
		code:       make(map[common.Address][]byte),
	}
	for n := uint64(0); n <= head; n++ {
		c.setBlock(n)
	}
	return c
}

var testCreator = common.HexToAddress("0x00000000000000000000000000000000000000c1")

func (c *fakeChain) setBlock(number uint64, created ...common.Address) {
	txs := make([]*types.Transaction, 0, len(created)+1)
	for i, address := range created {
		tx := types.NewContractCreation(uint64(i), big.NewInt(0), 500_000, big.NewInt(1), []byte{0x60, byte(number), byte(i)})
		txs = append(txs, tx)
		c.receipts[tx.Hash()] = &types.Receipt{
			Status:          types.ReceiptStatusSuccessful,
			TxHash:          tx.Hash(),
			ContractAddress: address,
			BlockNumber:     new(big.Int).SetUint64(number),
		}
	}
	// A plain transfer that must not be treated as a creation.
	to := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	txs = append(txs, types.NewTransaction(99, to, big.NewInt(1), 21_000, big.NewInt(1), nil))

	header := &types.Header{Number: new(big.Int).SetUint64(number), Time: 1_000 + number*12, Difficulty: big.NewInt(1)}
	c.blocks[number] = types.NewBlockWithHeader(header).WithBody(txs, nil)
}

func (c *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *fakeChain) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failBlocks[number] {
		return nil, errTransport
	}
	block, ok := c.blocks[number]
	if !ok {
		return nil, ethereum.NotFound
	}
	return block, nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *fakeChain) TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error) {
	return testCreator, nil
}

func (c *fakeChain) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logQueries = append(c.logQueries, [2]uint64{fromBlock, toBlock})
	var out []types.Log
	for _, lg := range c.logs {
		if lg.BlockNumber < fromBlock || lg.BlockNumber > toBlock {
			continue
		}
		if len(addresses) > 0 && lg.Address != addresses[0] {
			continue
		}
		if len(topic0) > 0 && (len(lg.Topics) == 0 || lg.Topics[0] != topic0[0]) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (c *fakeChain) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timestampFailures > 0 {
		c.timestampFailures--
		return 0, errTransport
	}
	return 1_000 + number*12, nil
}

func (c *fakeChain) CodeAt(ctx context.Context, address common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[address], nil
}

// fakeStore keeps contracts, transfers, holders and progress in memory.
type fakeStore struct {
	mu        sync.Mutex
	contracts map[string]model.Contract
	transfers map[string][]model.TokenTransfer
	holders   map[string][]model.TokenHolder
	progress  map[string]uint64
	saves     []uint64
	deletes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contracts: make(map[string]model.Contract),
		transfers: make(map[string][]model.TokenTransfer),
		holders:   make(map[string][]model.TokenHolder),
		progress:  make(map[string]uint64),
	}
}

func (s *fakeStore) LoadProgress(ctx context.Context, scanType string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.progress[scanType]
	return last, ok, nil
}

func (s *fakeStore) SaveProgress(ctx context.Context, scanType string, last uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.progress[scanType]; ok && current > last {
		return nil
	}
	s.progress[scanType] = last
	s.saves = append(s.saves, last)
	return nil
}

func (s *fakeStore) ContractsExist(ctx context.Context, addresses []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, address := range addresses {
		if _, ok := s.contracts[address]; ok {
			out[address] = true
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertContracts(ctx context.Context, contracts []model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, contract := range contracts {
		if existing, ok := s.contracts[contract.Address]; ok {
			contract.ERCClass = existing.ERCClass
			contract.Verified = existing.Verified
		}
		s.contracts[contract.Address] = contract
	}
	return nil
}

func (s *fakeStore) ContractsByClass(ctx context.Context, class model.ERCClass) ([]model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Contract
	for _, contract := range s.contracts {
		if contract.ERCClass == class {
			out = append(out, contract)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *fakeStore) GetContract(ctx context.Context, address string) (model.Contract, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contract, ok := s.contracts[address]
	return contract, ok, nil
}

func (s *fakeStore) MarkContractVerified(ctx context.Context, address, sourceCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contract, ok := s.contracts[address]
	if !ok || contract.Verified {
		return false, nil
	}
	contract.Verified = true
	if sourceCode != "" {
		contract.SourceCode = sourceCode
	}
	s.contracts[address] = contract
	return true, nil
}

func (s *fakeStore) InsertTokenTransfers(ctx context.Context, transfers []model.TokenTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, transfer := range transfers {
		existing := s.transfers[transfer.TokenAddress]
		duplicate := false
		for _, e := range existing {
			if e.TxHash == transfer.TxHash && e.LogIndex == transfer.LogIndex {
				duplicate = true
				break
			}
		}
		if !duplicate {
			s.transfers[transfer.TokenAddress] = append(existing, transfer)
		}
	}
	return nil
}

func (s *fakeStore) DeleteTokenTransfers(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.transfers, token)
	return nil
}

func (s *fakeStore) TokenTransfers(ctx context.Context, token string) ([]model.TokenTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.TokenTransfer(nil), s.transfers[token]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

func (s *fakeStore) ReplaceTokenHolders(ctx context.Context, token string, holders []model.TokenHolder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[token] = holders
	return nil
}
