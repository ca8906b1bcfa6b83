package richlist

import (
	"context"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

// ChainReader is the node access the builder needs.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, address common.Address, blockNumber uint64) (*big.Int, error)
	CodeAt(ctx context.Context, address common.Address, blockNumber *big.Int) ([]byte, error)
}

// Store is the account persistence the builder needs.
type Store interface {
	LatestBlockNumber(ctx context.Context) (uint64, bool, error)
	WindowAddresses(ctx context.Context, from, to uint64) ([]string, error)
	UpsertAccounts(ctx context.Context, accounts []model.Account) error
	TotalBalance(ctx context.Context) (*big.Int, error)
	AccountAddressesAfter(ctx context.Context, cursor string, limit int) ([]string, error)
	UpdatePercentages(ctx context.Context, addresses []string, total *big.Int) error
}

// Config holds settings for the builder. StartBlock is the low end of every sweep.
type Config struct {
	StartBlock      uint64
	Range           uint64
	Workers         int
	PercentageBatch int
	Interval        time.Duration
	Policy          Policy
}

// PassResult summarizes one builder pass.
type PassResult struct {
	SweepID    string
	Window     scan.BlockRange
	Discovered int
	Refreshed  int
	Failed     int
	SweepDone  bool
	Idle       bool
}

// sweep walks from head down to floor one window at a time.
type sweep struct {
	id     string
	head   uint64
	floor  uint64
	cursor uint64
}

// Builder maintains the account balance projection. Each sweep runs backward from the
// highest block both the chain and the store have, down to StartBlock.
type Builder struct {
	cfg     Config
	chain   ChainReader
	store   Store
	tracker *scan.Tracker
	logger  *zap.Logger

	visits *visitCache
	sweep  *sweep
	roll   func() float64
}

// NewBuilder builds a Builder. tracker holds the head of the last completed sweep.
func NewBuilder(cfg Config, chainClient ChainReader, store Store, tracker *scan.Tracker, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Range == 0 {
		cfg.Range = 1_000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.PercentageBatch <= 0 {
		cfg.PercentageBatch = 1_000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	return &Builder{
		cfg:     cfg,
		chain:   chainClient,
		store:   store,
		tracker: tracker,
		logger:  logger,
		visits:  newVisitCache(),
		roll:    rand.Float64,
	}
}

// Run performs passes until ctx is done. Pass failures are logged and retried next interval.
func (b *Builder) Run(ctx context.Context) error {
	for {
		result, err := b.Pass(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if scan.IsFatal(err) {
				return err
			}
			b.logger.Warn("richlist pass failed", zap.Error(err))
		}

		wait := b.cfg.Interval
		if err == nil && !result.Idle && !result.SweepDone {
			wait = 0
		}
		if err := scan.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Pass processes one window of the current sweep, starting a new sweep when none is active.
func (b *Builder) Pass(ctx context.Context) (PassResult, error) {
	if b.chain == nil || b.store == nil || b.tracker == nil {
		return PassResult{}, fmt.Errorf("richlist builder is not wired")
	}

	if b.sweep == nil {
		started, err := b.startSweep(ctx)
		if err != nil {
			return PassResult{}, err
		}
		if !started {
			return PassResult{Idle: true}, nil
		}
	}
	current := b.sweep
	logger := b.logger.With(zap.String("sweep_id", current.id))

	window, err := scan.WindowBelow(current.cursor, b.cfg.Range, current.floor)
	if err != nil {
		return PassResult{}, err
	}
	result := PassResult{SweepID: current.id, Window: window}

	addresses, err := b.store.WindowAddresses(ctx, window.From, window.To)
	if err != nil {
		return result, fmt.Errorf("discover addresses %d-%d: %w", window.From, window.To, err)
	}
	result.Discovered = len(addresses)

	selected := b.sample(addresses)

	height, err := b.chain.LatestBlockNumber(ctx)
	if err != nil {
		return result, fmt.Errorf("balance height: %w", err)
	}
	accounts, failed := b.fetchAccounts(ctx, selected, height, logger)
	result.Refreshed = len(accounts)
	result.Failed = failed

	if err := b.store.UpsertAccounts(ctx, accounts); err != nil {
		return result, fmt.Errorf("upsert accounts: %w", err)
	}

	if removed := b.visits.evict(b.cfg.Policy.Capacity, b.cfg.Policy.retainCount()); removed > 0 {
		logger.Debug("visit cache evicted", zap.Int("removed", removed), zap.Int("kept", b.visits.len()))
	}

	logger.Info("richlist window done",
		zap.Uint64("from", window.From),
		zap.Uint64("to", window.To),
		zap.Int("discovered", result.Discovered),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("failed", result.Failed),
	)

	if window.From > current.floor {
		current.cursor = window.From - 1
		return result, nil
	}

	if err := b.RecomputePercentages(ctx); err != nil {
		return result, err
	}
	if err := b.tracker.Advance(ctx, current.head); err != nil {
		return result, err
	}
	logger.Info("richlist sweep complete", zap.Uint64("head", current.head), zap.Uint64("floor", current.floor))
	b.sweep = nil
	result.SweepDone = true
	return result, nil
}

// startSweep opens a sweep from the sweep head down to StartBlock. It reports false
// while the store is empty or holds no block past the last completed sweep head.
func (b *Builder) startSweep(ctx context.Context) (bool, error) {
	head, ok, err := b.sweepHead(ctx)
	if err != nil || !ok {
		return false, err
	}
	floor := b.cfg.StartBlock
	if head < floor {
		return false, nil
	}
	last, ok, err := b.tracker.Load(ctx)
	if err != nil {
		return false, err
	}
	if ok && last >= head {
		return false, nil
	}

	b.sweep = &sweep{
		id:     uuid.New().String(),
		head:   head,
		floor:  floor,
		cursor: head,
	}
	b.logger.Info("richlist sweep started",
		zap.String("sweep_id", b.sweep.id),
		zap.Uint64("head", head),
		zap.Uint64("floor", floor),
	)
	return true, nil
}

// sweepHead is the lower of the chain head and the highest stored block, so a sweep
// never claims blocks the syncer has not written yet.
func (b *Builder) sweepHead(ctx context.Context) (uint64, bool, error) {
	head, err := b.chain.LatestBlockNumber(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("chain head: %w", err)
	}
	stored, ok, err := b.store.LatestBlockNumber(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("stored head: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	return min(head, stored), true, nil
}

// sample records a visit for every address and returns the ones due for a refresh.
func (b *Builder) sample(addresses []string) []string {
	selected := make([]string, 0, len(addresses))
	for _, address := range addresses {
		prior := b.visits.visit(address)
		if b.cfg.Policy.ShouldRefresh(prior, b.visits.len(), b.roll) {
			selected = append(selected, address)
		}
	}
	return selected
}

// fetchAccounts reads balance and code for each address with bounded concurrency.
// Addresses whose fetch fails are left out and counted.
func (b *Builder) fetchAccounts(ctx context.Context, addresses []string, height uint64, logger *zap.Logger) ([]model.Account, int) {
	var (
		mu       sync.Mutex
		accounts = make([]model.Account, 0, len(addresses))
		failed   int
	)
	blockNumber := new(big.Int).SetUint64(height)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.cfg.Workers)
	for _, address := range addresses {
		group.Go(func() error {
			account, err := b.fetchAccount(groupCtx, address, height, blockNumber)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Warn("balance fetch failed", zap.String("address", address), zap.Error(err))
				return nil
			}
			accounts = append(accounts, account)
			return nil
		})
	}
	_ = group.Wait()
	return accounts, failed
}

func (b *Builder) fetchAccount(ctx context.Context, address string, height uint64, blockNumber *big.Int) (model.Account, error) {
	if !common.IsHexAddress(address) {
		return model.Account{}, fmt.Errorf("invalid address %q", address)
	}
	addr := common.HexToAddress(address)

	balance, err := b.chain.BalanceAt(ctx, addr, height)
	if err != nil {
		return model.Account{}, fmt.Errorf("balance: %w", err)
	}
	code, err := b.chain.CodeAt(ctx, addr, blockNumber)
	if err != nil {
		return model.Account{}, fmt.Errorf("code: %w", err)
	}

	accountType := model.AccountWallet
	if len(code) > 0 {
		accountType = model.AccountContract
	}
	return model.Account{
		Address:     scan.NormalizeAddress(addr),
		Balance:     balance.String(),
		Type:        accountType,
		BlockNumber: height,
	}, nil
}

// RecomputePercentages rewrites every account's share of the summed balance in pages.
func (b *Builder) RecomputePercentages(ctx context.Context) error {
	total, err := b.store.TotalBalance(ctx)
	if err != nil {
		return fmt.Errorf("total balance: %w", err)
	}

	cursor := ""
	updated := 0
	for {
		addresses, err := b.store.AccountAddressesAfter(ctx, cursor, b.cfg.PercentageBatch)
		if err != nil {
			return fmt.Errorf("page accounts after %q: %w", cursor, err)
		}
		if len(addresses) == 0 {
			break
		}
		if err := b.store.UpdatePercentages(ctx, addresses, total); err != nil {
			return fmt.Errorf("update percentages: %w", err)
		}
		updated += len(addresses)
		cursor = addresses[len(addresses)-1]
		if len(addresses) < b.cfg.PercentageBatch {
			break
		}
	}

	b.logger.Info("percentages recomputed", zap.Int("accounts", updated), zap.String("total", total.String()))
	return nil
}
