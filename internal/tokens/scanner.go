package tokens

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

// ChainReader is the node access the scanner needs.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractStore is the contract persistence the scanner needs.
type ContractStore interface {
	ContractsExist(ctx context.Context, addresses []string) (map[string]bool, error)
	UpsertContracts(ctx context.Context, contracts []model.Contract) error
}

// ScannerConfig holds settings for the token scanner.
type ScannerConfig struct {
	StartBlock   uint64
	BatchSize    uint64
	Workers      int
	ChunkDelay   time.Duration
	ProbeWorkers int
	MaxRetries   int
	RetryBackoff time.Duration
	Interval     time.Duration
	SkipCapacity int
}

// ScanResult summarizes one ScanForTokens pass.
type ScanResult struct {
	Range        scan.BlockRange
	Batches      int
	Discovered   int
	Classified   int
	Unclassified int
	Pending      int
	Idle         bool
}

// candidate is a contract created in a scanned block.
type candidate struct {
	address    common.Address
	creator    string
	creationTx string
	block      uint64
}

// Scanner discovers contract creations and classifies them by token interface.
type Scanner struct {
	cfg     ScannerConfig
	chain   ChainReader
	store   ContractStore
	tracker *scan.Tracker
	prober  *Prober
	guard   *scan.MemoryGuard
	logger  *zap.Logger

	mu      sync.Mutex
	skip    map[string]struct{}
	pending map[string]candidate
}

// NewScanner builds a Scanner. tracker holds the last fully scanned block. guard may be nil.
func NewScanner(
	cfg ScannerConfig,
	chainClient ChainReader,
	store ContractStore,
	tracker *scan.Tracker,
	guard *scan.MemoryGuard,
	logger *zap.Logger,
) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1_000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.ProbeWorkers <= 0 {
		cfg.ProbeWorkers = 5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.SkipCapacity <= 0 {
		cfg.SkipCapacity = 100_000
	}
	return &Scanner{
		cfg:     cfg,
		chain:   chainClient,
		store:   store,
		tracker: tracker,
		prober:  NewProber(chainClient, logger),
		guard:   guard,
		logger:  logger,
		skip:    make(map[string]struct{}),
		pending: make(map[string]candidate),
	}
}

// Run scans until ctx is done. Pass failures are logged and retried next interval.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		result, err := s.ScanForTokens(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if scan.IsFatal(err) {
				return err
			}
			s.logger.Warn("token scan failed", zap.Error(err))
		} else if !result.Idle {
			s.logger.Info("token scan finished",
				zap.Uint64("from", result.Range.From),
				zap.Uint64("to", result.Range.To),
				zap.Int("discovered", result.Discovered),
				zap.Int("classified", result.Classified),
				zap.Int("unclassified", result.Unclassified),
				zap.Int("pending", result.Pending),
			)
		}
		if err := scan.Sleep(ctx, s.cfg.Interval); err != nil {
			return err
		}
	}
}

// Pending returns the number of addresses waiting for a probe retry.
func (s *Scanner) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ScanForTokens scans (checkpoint, head] batch by batch. The checkpoint advances after
// each batch is persisted, so a failed batch is rescanned on the next pass.
func (s *Scanner) ScanForTokens(ctx context.Context) (ScanResult, error) {
	if s.chain == nil || s.store == nil || s.tracker == nil {
		return ScanResult{}, fmt.Errorf("token scanner is not wired")
	}

	var result ScanResult
	if err := s.retryPending(ctx, &result); err != nil {
		return result, err
	}

	var head uint64
	err := scan.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = s.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("get latest block: %w", err)
	}

	from := s.cfg.StartBlock
	last, ok, err := s.tracker.Load(ctx)
	if err != nil {
		return result, err
	}
	if ok && last+1 > from {
		from = last + 1
	}
	if from > head {
		result.Idle = true
		return result, nil
	}

	batches, err := scan.SplitRange(from, head, s.cfg.BatchSize)
	if err != nil {
		return result, err
	}
	result.Range = scan.BlockRange{From: from}

	for _, batch := range batches {
		candidates, err := s.collect(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("scan blocks %d-%d: %w", batch.From, batch.To, err)
		}
		fresh, err := s.filterKnown(ctx, candidates)
		if err != nil {
			return result, err
		}
		result.Discovered += len(fresh)

		if err := s.classify(ctx, fresh, &result); err != nil {
			return result, err
		}
		if err := s.tracker.Advance(ctx, batch.To); err != nil {
			return result, err
		}
		result.Range.To = batch.To
		result.Batches++

		s.logger.Debug("token batch scanned",
			zap.Uint64("from", batch.From),
			zap.Uint64("to", batch.To),
			zap.Int("contracts", len(fresh)),
		)

		if s.guard != nil {
			if _, err := s.guard.Check(ctx); err != nil {
				return result, err
			}
		}
	}

	result.Pending = s.Pending()
	return result, nil
}

// collect fetches the blocks of r in chunks of Workers and returns contract creations.
func (s *Scanner) collect(ctx context.Context, r scan.BlockRange) ([]candidate, error) {
	var out []candidate
	chunk := uint64(s.cfg.Workers)
	for start := r.From; start <= r.To; start += chunk {
		end := start + chunk - 1
		if end > r.To || end < start {
			end = r.To
		}

		perBlock := make([][]candidate, end-start+1)
		g, gctx := errgroup.WithContext(ctx)
		for number := start; number <= end; number++ {
			number := number
			g.Go(func() error {
				found, err := s.blockCreations(gctx, number)
				if err != nil {
					return err
				}
				perBlock[number-start] = found
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, found := range perBlock {
			out = append(out, found...)
		}

		if end == r.To {
			break
		}
		if err := scan.Sleep(ctx, s.cfg.ChunkDelay); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Scanner) blockCreations(ctx context.Context, number uint64) ([]candidate, error) {
	var block *types.Block
	err := scan.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		block, err = s.chain.BlockByNumber(ctx, number)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", number, err)
	}

	var found []candidate
	for i, tx := range block.Transactions() {
		if tx.To() != nil {
			continue
		}

		var receipt *types.Receipt
		err := scan.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			receipt, err = s.chain.TransactionReceipt(ctx, tx.Hash())
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("get receipt %s: %w", tx.Hash().Hex(), err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful || receipt.ContractAddress == (common.Address{}) {
			continue
		}

		var creator string
		if sender, err := s.chain.TransactionSender(ctx, tx, block.Hash(), uint(i)); err == nil {
			creator = scan.NormalizeAddress(sender)
		} else {
			s.logger.Debug("resolve contract creator failed", zap.String("tx", tx.Hash().Hex()), zap.Error(err))
		}

		found = append(found, candidate{
			address:    receipt.ContractAddress,
			creator:    creator,
			creationTx: scan.NormalizeHash(tx.Hash()),
			block:      number,
		})
	}
	return found, nil
}

// filterKnown drops addresses that were already classified or are waiting for a retry.
func (s *Scanner) filterKnown(ctx context.Context, candidates []candidate) ([]candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	unknown := make([]candidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		key := scan.NormalizeAddress(c.address)
		if _, ok := s.skip[key]; ok {
			continue
		}
		if _, ok := s.pending[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unknown = append(unknown, c)
	}
	s.mu.Unlock()
	if len(unknown) == 0 {
		return nil, nil
	}

	addresses := make([]string, 0, len(unknown))
	for _, c := range unknown {
		addresses = append(addresses, scan.NormalizeAddress(c.address))
	}
	stored, err := s.store.ContractsExist(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("check stored contracts: %w", err)
	}

	fresh := unknown[:0]
	for _, c := range unknown {
		key := scan.NormalizeAddress(c.address)
		if stored[key] {
			s.remember(key)
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// retryPending probes again the addresses whose last probe hit a transport failure.
func (s *Scanner) retryPending(ctx context.Context, result *ScanResult) error {
	s.mu.Lock()
	retry := make([]candidate, 0, len(s.pending))
	for _, c := range s.pending {
		retry = append(retry, c)
	}
	s.mu.Unlock()
	if len(retry) == 0 {
		return nil
	}

	sort.Slice(retry, func(i, j int) bool {
		return scan.NormalizeAddress(retry[i].address) < scan.NormalizeAddress(retry[j].address)
	})
	s.logger.Info("retrying pending token probes", zap.Int("count", len(retry)))
	return s.classify(ctx, retry, result)
}

// classify probes candidates with ProbeWorkers concurrency and stores every
// Classified and Unclassified result. ProbeError results stay pending.
func (s *Scanner) classify(ctx context.Context, candidates []candidate, result *ScanResult) error {
	if len(candidates) == 0 {
		return nil
	}

	results := make([]ProbeResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ProbeWorkers)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			results[i] = s.prober.Probe(gctx, c.address)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	contracts := make([]model.Contract, 0, len(candidates))
	var failed []candidate
	for i, c := range candidates {
		res := results[i]
		if res.Outcome == OutcomeProbeError {
			s.logger.Warn("token probe failed, will retry",
				zap.String("address", c.address.Hex()),
				zap.Error(res.Err),
			)
			failed = append(failed, c)
			continue
		}
		if res.Outcome == OutcomeClassified {
			result.Classified++
		} else {
			result.Unclassified++
		}
		contracts = append(contracts, model.Contract{
			Address:     scan.NormalizeAddress(c.address),
			ERCClass:    res.Kind,
			Name:        res.Meta.Name,
			Symbol:      res.Meta.Symbol,
			Decimals:    res.Meta.Decimals,
			TotalSupply: res.Meta.TotalSupply,
			Creator:     c.creator,
			CreationTx:  c.creationTx,
			BlockNumber: c.block,
		})
	}

	if len(contracts) > 0 {
		if err := s.store.UpsertContracts(ctx, contracts); err != nil {
			return fmt.Errorf("store contracts: %w", err)
		}
	}

	s.mu.Lock()
	for _, contract := range contracts {
		delete(s.pending, contract.Address)
	}
	for _, c := range failed {
		s.pending[scan.NormalizeAddress(c.address)] = c
	}
	s.mu.Unlock()
	for _, contract := range contracts {
		s.remember(contract.Address)
	}
	return nil
}

// remember adds an address to the skip set. The set is reset once it reaches capacity;
// the store lookup still filters known contracts after a reset.
func (s *Scanner) remember(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.skip) >= s.cfg.SkipCapacity {
		s.skip = make(map[string]struct{})
	}
	s.skip[address] = struct{}{}
}
