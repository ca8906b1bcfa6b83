package tokens

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

var (
	holderA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	holderB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	holderC = common.HexToAddress("0x000000000000000000000000000000000000cccc")
)

func transferLog(token, from, to common.Address, tokenID int64, block uint64, index uint) types.Log {
	return types.Log{
		Address: token,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(big.NewInt(tokenID)),
		},
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*1_000) + int64(index))),
		Index:       index,
	}
}

func transfer(from, to common.Address, tokenID string) model.TokenTransfer {
	return model.TokenTransfer{From: scan.NormalizeAddress(from), To: scan.NormalizeAddress(to), TokenID: tokenID}
}

func TestFoldHoldersMintThenTransfer(t *testing.T) {
	token := scan.NormalizeAddress(tokenA)
	holders := FoldHolders(token, []model.TokenTransfer{
		transfer(common.Address{}, holderA, "1"),
		transfer(holderA, holderB, "1"),
	})

	require.Len(t, holders, 1)
	assert.Equal(t, model.TokenHolder{
		TokenAddress:  token,
		HolderAddress: scan.NormalizeAddress(holderB),
		Balance:       1,
		Rank:          1,
		Percentage:    100,
	}, holders[0])
}

func TestFoldHoldersRanksAndBurns(t *testing.T) {
	zero := common.Address{}
	holders := FoldHolders("token", []model.TokenTransfer{
		transfer(zero, holderC, "1"),
		transfer(zero, holderC, "2"),
		transfer(zero, holderB, "3"),
		transfer(zero, holderA, "4"),
		transfer(zero, holderA, "5"),
		transfer(holderA, zero, "5"),
	})

	require.Len(t, holders, 3)
	assert.Equal(t, scan.NormalizeAddress(holderC), holders[0].HolderAddress)
	assert.Equal(t, int64(2), holders[0].Balance)
	assert.InDelta(t, 50.0, holders[0].Percentage, 1e-9)
	// Equal balances are ordered by address.
	assert.Equal(t, scan.NormalizeAddress(holderA), holders[1].HolderAddress)
	assert.Equal(t, scan.NormalizeAddress(holderB), holders[2].HolderAddress)
	assert.Equal(t, []int{1, 2, 3}, []int{holders[0].Rank, holders[1].Rank, holders[2].Rank})
}

func TestFoldHoldersEmpty(t *testing.T) {
	assert.Empty(t, FoldHolders("token", nil))
}

func TestDecodeTransfer(t *testing.T) {
	lg := transferLog(tokenA, holderA, holderB, 42, 7, 3)
	decoded, ok := decodeTransfer(lg)
	require.True(t, ok)
	assert.Equal(t, "42", decoded.TokenID)
	assert.Equal(t, scan.NormalizeAddress(holderA), decoded.From)
	assert.Equal(t, scan.NormalizeAddress(holderB), decoded.To)
	assert.Equal(t, uint64(7), decoded.BlockNumber)
	assert.Equal(t, uint(3), decoded.LogIndex)

	fungible := lg
	fungible.Topics = lg.Topics[:3]
	_, ok = decodeTransfer(fungible)
	assert.False(t, ok)

	removed := lg
	removed.Removed = true
	_, ok = decodeTransfer(removed)
	assert.False(t, ok)
}

func TestIndexContractIncremental(t *testing.T) {
	chain := newFakeChain(0)
	chain.head = 20
	zero := common.Address{}
	chain.logs = []types.Log{
		transferLog(tokenB, zero, holderA, 1, 5, 0),
		transferLog(tokenB, holderA, holderB, 1, 9, 0),
		transferLog(tokenA, zero, holderC, 1, 9, 1),
	}
	store := newFakeStore()
	key := scan.NormalizeAddress(tokenB)
	store.contracts[key] = model.Contract{Address: key, ERCClass: model.ERC721, BlockNumber: 4}

	indexer := NewHolderIndexer(HolderConfig{LogRange: 10}, chain, store, nil)
	result, err := indexer.IndexContract(context.Background(), tokenB, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Transfers)
	assert.Equal(t, 1, result.Holders)
	assert.Equal(t, [][2]uint64{{4, 13}, {14, 20}}, chain.logQueries)
	assert.Equal(t, uint64(20), store.progress[scan.NFTScanType(key)])
	assert.Equal(t, uint64(1_000+9*12), store.transfers[key][1].Timestamp)

	chain.logs = append(chain.logs, transferLog(tokenB, holderB, holderC, 1, 22, 0))
	chain.head = 25
	result, err = indexer.IndexContract(context.Background(), tokenB, false)
	require.NoError(t, err)
	assert.Equal(t, scan.BlockRange{From: 21, To: 25}, result.Range)
	assert.Equal(t, 1, result.Transfers)

	holders := store.holders[key]
	require.Len(t, holders, 1)
	assert.Equal(t, scan.NormalizeAddress(holderC), holders[0].HolderAddress)

	result, err = indexer.IndexContract(context.Background(), tokenB, false)
	require.NoError(t, err)
	assert.True(t, result.Idle)
}

func TestIndexContractFullRebuild(t *testing.T) {
	chain := newFakeChain(0)
	chain.head = 10
	chain.logs = []types.Log{transferLog(tokenB, common.Address{}, holderA, 1, 2, 0)}
	store := newFakeStore()
	key := scan.NormalizeAddress(tokenB)
	store.contracts[key] = model.Contract{Address: key, ERCClass: model.ERC721}
	store.progress[scan.NFTScanType(key)] = 10
	store.transfers[key] = []model.TokenTransfer{{TokenAddress: key, TxHash: "0xstale", From: scan.ZeroAddress, To: scan.NormalizeAddress(holderC)}}

	indexer := NewHolderIndexer(HolderConfig{}, chain, store, nil)
	result, err := indexer.IndexContract(context.Background(), tokenB, true)
	require.NoError(t, err)
	assert.Equal(t, 1, store.deletes)
	assert.Equal(t, 1, result.Transfers)
	require.Len(t, store.holders[key], 1)
	assert.Equal(t, scan.NormalizeAddress(holderA), store.holders[key][0].HolderAddress)
}

func TestIndexContractTimestampFailureKeepsCheckpoint(t *testing.T) {
	chain := newFakeChain(0)
	chain.head = 20
	chain.logs = []types.Log{transferLog(tokenB, common.Address{}, holderA, 1, 5, 0)}
	chain.timestampFailures = 1_000
	store := newFakeStore()
	key := scan.NormalizeAddress(tokenB)
	store.contracts[key] = model.Contract{Address: key, ERCClass: model.ERC721}

	indexer := NewHolderIndexer(HolderConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}, chain, store, nil)
	_, err := indexer.IndexContract(context.Background(), tokenB, false)
	require.ErrorIs(t, err, errTransport)
	assert.Empty(t, store.transfers[key])
	assert.NotContains(t, store.progress, scan.NFTScanType(key))

	chain.timestampFailures = 2
	result, err := indexer.IndexContract(context.Background(), tokenB, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Transfers)
	require.Len(t, store.transfers[key], 1)
	assert.Equal(t, uint64(1_000+5*12), store.transfers[key][0].Timestamp)
	assert.Equal(t, uint64(20), store.progress[scan.NFTScanType(key)])
}

func TestIndexAllOnlyNFTContracts(t *testing.T) {
	chain := newFakeChain(0)
	chain.head = 5
	chain.logs = []types.Log{transferLog(tokenB, common.Address{}, holderA, 1, 2, 0)}
	store := newFakeStore()
	store.contracts[scan.NormalizeAddress(tokenA)] = model.Contract{Address: scan.NormalizeAddress(tokenA), ERCClass: model.ERC20}
	store.contracts[scan.NormalizeAddress(tokenB)] = model.Contract{Address: scan.NormalizeAddress(tokenB), ERCClass: model.ERC721}

	indexer := NewHolderIndexer(HolderConfig{}, chain, store, nil)
	indexed, err := indexer.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)
	assert.Contains(t, store.holders, scan.NormalizeAddress(tokenB))
	assert.NotContains(t, store.holders, scan.NormalizeAddress(tokenA))
}
