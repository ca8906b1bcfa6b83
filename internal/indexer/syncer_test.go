package indexer

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

var (
	testMiner  = common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	testSender = common.HexToAddress("0xDEADBEEF00000000000000000000000000000002")
	testTarget = common.HexToAddress("0xC0FFEE0000000000000000000000000000000003")
	testDeploy = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakeChain struct {
	mu       sync.Mutex
	head     uint64
	headErr  error
	blocks   map[uint64]*types.Block
	receipts map[common.Hash]*types.Receipt
	failing  map[uint64]bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		blocks:   make(map[uint64]*types.Block),
		receipts: make(map[common.Hash]*types.Receipt),
		failing:  make(map[uint64]bool),
	}
}

// addBlock appends a block with one transfer, or a contract creation when create is set.
func (c *fakeChain) addBlock(number uint64, create bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var to *common.Address
	if !create {
		target := testTarget
		to = &target
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    number,
		GasPrice: big.NewInt(2_000_000_000),
		Gas:      21_000,
		To:       to,
		Value:    big.NewInt(int64(number) + 1),
	})
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 21_000, TxHash: tx.Hash()}
	if create {
		receipt.ContractAddress = testDeploy
	}

	header := &types.Header{
		Number:     new(big.Int).SetUint64(number),
		Time:       1_000 + number*13,
		Difficulty: big.NewInt(131_072),
		Coinbase:   testMiner,
		GasLimit:   8_000_000,
		GasUsed:    21_000,
	}
	c.blocks[number] = types.NewBlockWithHeader(header).WithBody([]*types.Transaction{tx}, nil)
	c.receipts[tx.Hash()] = receipt
	if number > c.head {
		c.head = number
	}
}

func (c *fakeChain) setFailing(number uint64, failing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[number] = failing
}

func (c *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headErr != nil {
		return 0, c.headErr
	}
	return c.head, nil
}

func (c *fakeChain) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing[number] {
		return nil, errors.New("connection reset by peer")
	}
	block, ok := c.blocks[number]
	if !ok {
		return nil, errors.New("not found")
	}
	return block, nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}

func (c *fakeChain) TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error) {
	return testSender, nil
}

type fakeBlockStore struct {
	mu             sync.Mutex
	blocks         map[uint64]model.Block
	txs            map[string]model.Transaction
	calls          int
	err            error
	orderViolation bool
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{
		blocks: make(map[uint64]model.Block),
		txs:    make(map[string]model.Transaction),
	}
}

func (s *fakeBlockStore) LatestBlockNumber(ctx context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest uint64
	found := false
	for number := range s.blocks {
		if !found || number > latest {
			latest = number
			found = true
		}
	}
	return latest, found, nil
}

func (s *fakeBlockStore) InsertBlockBatch(ctx context.Context, blocks []model.Block, txs []model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls++

	pending := make(map[string]bool, len(txs))
	for _, tx := range txs {
		pending[tx.Hash] = true
	}
	for _, block := range blocks {
		for _, hash := range block.TxHashes {
			if _, stored := s.txs[hash]; !stored && !pending[hash] {
				s.orderViolation = true
			}
		}
	}

	for _, tx := range txs {
		if _, ok := s.txs[tx.Hash]; !ok {
			s.txs[tx.Hash] = tx
		}
	}
	for _, block := range blocks {
		if _, ok := s.blocks[block.Number]; !ok {
			s.blocks[block.Number] = block
		}
	}
	return nil
}

func newTestSyncer(chainClient ChainReader, store BlockStore, bulkSize int) *Syncer {
	return NewSyncer(SyncConfig{
		BulkSize:       bulkSize,
		PollInterval:   5 * time.Millisecond,
		ReceiptWorkers: 2,
		MaxRetries:     1,
		RetryBackoff:   time.Millisecond,
	}, chainClient, store, nil)
}

func seedChain(blocks uint64) *fakeChain {
	chain := newFakeChain()
	for number := uint64(0); number < blocks; number++ {
		chain.addBlock(number, number == 2)
	}
	return chain
}

func TestSyncFromEmptyStore(t *testing.T) {
	chain := seedChain(5)
	store := newFakeBlockStore()
	syncer := newTestSyncer(chain, store, 2)

	if err := syncer.Sync(context.Background(), nil, nil); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if len(store.blocks) != 5 || len(store.txs) != 5 {
		t.Fatalf("stored %d blocks and %d txs", len(store.blocks), len(store.txs))
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 flushes, got %d", store.calls)
	}
	if store.orderViolation {
		t.Fatalf("a block was written before its transactions")
	}

	block := store.blocks[1]
	if block.Miner != strings.ToLower(testMiner.Hex()) {
		t.Fatalf("miner not normalized: %s", block.Miner)
	}
	if block.Timestamp != 1_013 || block.TxCount != 1 {
		t.Fatalf("unexpected block: %+v", block)
	}

	for _, tx := range store.txs {
		if tx.From != strings.ToLower(testSender.Hex()) {
			t.Fatalf("sender not normalized: %s", tx.From)
		}
		if tx.Status != model.TxStatusSuccess || tx.GasUsed != 21_000 {
			t.Fatalf("receipt not applied: %+v", tx)
		}
		if tx.BlockNumber == 2 {
			if !tx.IsContractCreation() || tx.ContractAddress != strings.ToLower(testDeploy.Hex()) {
				t.Fatalf("creation not resolved: %+v", tx)
			}
		} else if tx.To != strings.ToLower(testTarget.Hex()) {
			t.Fatalf("recipient not normalized: %s", tx.To)
		}
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	chain := seedChain(5)
	store := newFakeBlockStore()
	syncer := newTestSyncer(chain, store, 10)

	from, to := uint64(0), uint64(4)
	if err := syncer.Sync(context.Background(), &from, &to); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	before := store.blocks[3]

	if err := syncer.Sync(context.Background(), &from, &to); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(store.blocks) != 5 || len(store.txs) != 5 {
		t.Fatalf("duplicates after resync: %d blocks, %d txs", len(store.blocks), len(store.txs))
	}
	if after := store.blocks[3]; after.Hash != before.Hash || after.Timestamp != before.Timestamp {
		t.Fatalf("stored block changed on resync")
	}
}

func TestSyncBadBlockEndsPassWithoutGap(t *testing.T) {
	chain := seedChain(5)
	chain.setFailing(3, true)
	store := newFakeBlockStore()
	syncer := newTestSyncer(chain, store, 10)

	if err := syncer.Sync(context.Background(), nil, nil); err != nil {
		t.Fatalf("a bad block must not be fatal: %v", err)
	}
	if len(store.blocks) != 3 {
		t.Fatalf("expected prefix of 3 blocks, got %d", len(store.blocks))
	}
	if _, ok := store.blocks[4]; ok {
		t.Fatalf("block after the bad block was stored")
	}

	chain.setFailing(3, false)
	if err := syncer.Sync(context.Background(), nil, nil); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(store.blocks) != 5 {
		t.Fatalf("expected resume to fill the range, got %d", len(store.blocks))
	}
}

func TestSyncStoreFailureIsFatal(t *testing.T) {
	chain := seedChain(3)
	store := newFakeBlockStore()
	store.err = errors.New("disk full")
	syncer := newTestSyncer(chain, store, 1)

	err := syncer.Sync(context.Background(), nil, nil)
	if err == nil {
		t.Fatalf("expected store failure")
	}
	if !scan.IsFatal(err) {
		t.Fatalf("store failure should be fatal: %v", err)
	}
}

func TestRunHeadFailureIsFatal(t *testing.T) {
	chain := seedChain(1)
	chain.headErr = errors.New("dial tcp: connection refused")
	syncer := newTestSyncer(chain, newFakeBlockStore(), 10)

	err := syncer.Run(context.Background())
	if !scan.IsFatal(err) {
		t.Fatalf("head failure should be fatal: %v", err)
	}
}

func TestPollFlushesEachBlock(t *testing.T) {
	chain := seedChain(5)
	store := newFakeBlockStore()
	syncer := newTestSyncer(chain, store, 100)

	if err := syncer.Sync(context.Background(), nil, nil); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	calls := store.calls

	for number := uint64(5); number < 8; number++ {
		chain.addBlock(number, false)
	}
	if err := syncer.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := store.calls - calls; got != 3 {
		t.Fatalf("expected one flush per new block, got %d", got)
	}
	if len(store.blocks) != 8 {
		t.Fatalf("expected 8 blocks, got %d", len(store.blocks))
	}
}

func TestRunFollowsHeadUntilCancelled(t *testing.T) {
	chain := seedChain(3)
	store := newFakeBlockStore()
	syncer := newTestSyncer(chain, store, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- syncer.Run(ctx)
	}()

	chain.addBlock(3, false)
	deadline := time.After(2 * time.Second)
	for {
		if latest, ok, _ := store.LatestBlockNumber(context.Background()); ok && latest == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("new block was not ingested")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
