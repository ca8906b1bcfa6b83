package tokens

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

// LogReader is the node access the holder indexer needs.
type LogReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// HolderStore is the persistence the holder indexer needs.
type HolderStore interface {
	scan.ProgressStore
	ContractsByClass(ctx context.Context, class model.ERCClass) ([]model.Contract, error)
	GetContract(ctx context.Context, address string) (model.Contract, bool, error)
	InsertTokenTransfers(ctx context.Context, transfers []model.TokenTransfer) error
	DeleteTokenTransfers(ctx context.Context, token string) error
	TokenTransfers(ctx context.Context, token string) ([]model.TokenTransfer, error)
	ReplaceTokenHolders(ctx context.Context, token string, holders []model.TokenHolder) error
}

// HolderConfig holds settings for the holder indexer.
type HolderConfig struct {
	LogRange     uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Interval     time.Duration
}

// IndexResult summarizes one IndexContract call.
type IndexResult struct {
	Token     string
	Range     scan.BlockRange
	Transfers int
	Holders   int
	Idle      bool
}

// HolderIndexer indexes Transfer logs of NFT contracts and derives their holder ledger.
type HolderIndexer struct {
	cfg    HolderConfig
	chain  LogReader
	store  HolderStore
	logger *zap.Logger
}

// NewHolderIndexer builds a HolderIndexer, filling zero config values with defaults.
func NewHolderIndexer(cfg HolderConfig, chainClient LogReader, store HolderStore, logger *zap.Logger) *HolderIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LogRange == 0 {
		cfg.LogRange = 2_000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &HolderIndexer{cfg: cfg, chain: chainClient, store: store, logger: logger}
}

// Run indexes every NFT contract until ctx is done.
func (h *HolderIndexer) Run(ctx context.Context) error {
	for {
		if _, err := h.IndexAll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if scan.IsFatal(err) {
				return err
			}
			h.logger.Warn("nft index pass failed", zap.Error(err))
		}
		if err := scan.Sleep(ctx, h.cfg.Interval); err != nil {
			return err
		}
	}
}

// IndexAll indexes every stored ERC721 contract. A failing contract is logged and skipped.
func (h *HolderIndexer) IndexAll(ctx context.Context) (int, error) {
	if h.store == nil {
		return 0, fmt.Errorf("holder indexer is not wired")
	}
	contracts, err := h.store.ContractsByClass(ctx, model.ERC721)
	if err != nil {
		return 0, fmt.Errorf("list nft contracts: %w", err)
	}

	indexed := 0
	for _, contract := range contracts {
		if !common.IsHexAddress(contract.Address) {
			continue
		}
		if _, err := h.IndexContract(ctx, common.HexToAddress(contract.Address), false); err != nil {
			if ctx.Err() != nil || scan.IsFatal(err) {
				return indexed, err
			}
			h.logger.Warn("index nft contract failed", zap.String("token", contract.Address), zap.Error(err))
			continue
		}
		indexed++
	}
	return indexed, nil
}

// IndexContract fetches new Transfer logs of token and rebuilds its holders.
// With full, stored transfers are dropped and the token is indexed from its creation block.
func (h *HolderIndexer) IndexContract(ctx context.Context, token common.Address, full bool) (IndexResult, error) {
	if h.chain == nil || h.store == nil {
		return IndexResult{}, fmt.Errorf("holder indexer is not wired")
	}

	key := scan.NormalizeAddress(token)
	result := IndexResult{Token: key}
	tracker := scan.NewTracker(h.store, scan.NFTScanType(key))

	var head uint64
	err := scan.Retry(ctx, h.cfg.MaxRetries, h.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = h.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("get latest block: %w", err)
	}

	contract, found, err := h.store.GetContract(ctx, key)
	if err != nil {
		return result, fmt.Errorf("get contract %s: %w", key, err)
	}
	var from uint64
	if found {
		from = contract.BlockNumber
	}

	if !full {
		last, ok, err := tracker.Load(ctx)
		if err != nil {
			return result, err
		}
		if ok && last+1 > from {
			from = last + 1
		}
	}

	result.Range = scan.BlockRange{From: from}
	if from <= head {
		ranges, err := scan.SplitRange(from, head, h.cfg.LogRange)
		if err != nil {
			return result, err
		}
		// A full rebuild replaces stored transfers only after every range was fetched.
		var rebuilt []model.TokenTransfer
		for _, r := range ranges {
			transfers, err := h.fetchTransfers(ctx, token, r)
			if err != nil {
				return result, err
			}
			result.Transfers += len(transfers)
			result.Range.To = r.To
			if full {
				rebuilt = append(rebuilt, transfers...)
				continue
			}
			if err := h.storeTransfers(ctx, transfers); err != nil {
				return result, err
			}
			if err := tracker.Advance(ctx, r.To); err != nil {
				return result, err
			}
		}
		if full {
			if err := h.store.DeleteTokenTransfers(ctx, key); err != nil {
				return result, fmt.Errorf("delete transfers %s: %w", key, err)
			}
			if err := h.storeTransfers(ctx, rebuilt); err != nil {
				return result, err
			}
			if err := tracker.Advance(ctx, head); err != nil {
				return result, err
			}
		}
	}

	if result.Transfers == 0 && !full {
		result.Idle = true
		return result, nil
	}

	transfers, err := h.store.TokenTransfers(ctx, key)
	if err != nil {
		return result, fmt.Errorf("load transfers %s: %w", key, err)
	}
	holders := FoldHolders(key, transfers)
	if err := h.store.ReplaceTokenHolders(ctx, key, holders); err != nil {
		return result, fmt.Errorf("store holders %s: %w", key, err)
	}
	result.Holders = len(holders)

	h.logger.Info("nft holders updated",
		zap.String("token", key),
		zap.Int("transfers", result.Transfers),
		zap.Int("holders", result.Holders),
	)
	return result, nil
}

func (h *HolderIndexer) fetchTransfers(ctx context.Context, token common.Address, r scan.BlockRange) ([]model.TokenTransfer, error) {
	var logs []types.Log
	err := scan.Retry(ctx, h.cfg.MaxRetries, h.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = h.chain.FilterLogs(ctx, r.From, r.To, []common.Address{token}, []common.Hash{transferTopic})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", r.From, r.To, err)
	}

	transfers := make([]model.TokenTransfer, 0, len(logs))
	for _, lg := range logs {
		transfer, ok := decodeTransfer(lg)
		if !ok {
			continue
		}
		transfers = append(transfers, transfer)
	}
	if len(transfers) == 0 {
		return nil, nil
	}

	timestamps := make(map[uint64]uint64)
	for i := range transfers {
		number := transfers[i].BlockNumber
		ts, ok := timestamps[number]
		if !ok {
			err = scan.Retry(ctx, h.cfg.MaxRetries, h.cfg.RetryBackoff, func(ctx context.Context) error {
				var err error
				ts, err = h.chain.BlockTimestamp(ctx, number)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("timestamp of block %d: %w", number, err)
			}
			timestamps[number] = ts
		}
		transfers[i].Timestamp = ts
	}
	return transfers, nil
}

func (h *HolderIndexer) storeTransfers(ctx context.Context, transfers []model.TokenTransfer) error {
	if len(transfers) == 0 {
		return nil
	}
	if err := h.store.InsertTokenTransfers(ctx, transfers); err != nil {
		return fmt.Errorf("store transfers: %w", err)
	}
	return nil
}

// decodeTransfer decodes an ERC-721 Transfer log. ERC-20 Transfer logs carry the value
// in data and have only three topics, so they are rejected here.
func decodeTransfer(lg types.Log) (model.TokenTransfer, bool) {
	if lg.Removed || len(lg.Topics) != 4 || lg.Topics[0] != transferTopic {
		return model.TokenTransfer{}, false
	}
	from := common.BytesToAddress(lg.Topics[1].Bytes())
	to := common.BytesToAddress(lg.Topics[2].Bytes())
	tokenID := new(big.Int).SetBytes(lg.Topics[3].Bytes())

	return model.TokenTransfer{
		TokenAddress: scan.NormalizeAddress(lg.Address),
		TxHash:       scan.NormalizeHash(lg.TxHash),
		LogIndex:     lg.Index,
		TokenID:      tokenID.String(),
		From:         scan.NormalizeAddress(from),
		To:           scan.NormalizeAddress(to),
		BlockNumber:  lg.BlockNumber,
	}, true
}

// FoldHolders replays transfers into current balances. Mints only credit the receiver
// and burns only debit the sender. Holders are ranked by balance, ties by address.
func FoldHolders(token string, transfers []model.TokenTransfer) []model.TokenHolder {
	balances := make(map[string]int64)
	for _, t := range transfers {
		if t.From != scan.ZeroAddress {
			balances[t.From]--
		}
		if t.To != scan.ZeroAddress {
			balances[t.To]++
		}
	}

	holders := make([]model.TokenHolder, 0, len(balances))
	var total int64
	for address, balance := range balances {
		if balance <= 0 {
			continue
		}
		total += balance
		holders = append(holders, model.TokenHolder{
			TokenAddress:  token,
			HolderAddress: address,
			Balance:       balance,
		})
	}

	sort.Slice(holders, func(i, j int) bool {
		if holders[i].Balance != holders[j].Balance {
			return holders[i].Balance > holders[j].Balance
		}
		return holders[i].HolderAddress < holders[j].HolderAddress
	})
	for i := range holders {
		holders[i].Rank = i + 1
		holders[i].Percentage = float64(holders[i].Balance) * 100 / float64(total)
	}
	return holders
}
