package stats

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"chainScope/internal/model"
)

// Params bounds the block time derivation.
type Params struct {
	// MaxBlockDelta is the largest timestamp delta in seconds accepted as a real block interval.
	MaxBlockDelta uint64
	// DefaultBlockTime is reported when the window holds no usable delta.
	DefaultBlockTime float64
}

var humanUnits = []string{"", "K", "M", "G", "T", "P", "E"}

// AverageBlockTime averages the timestamp deltas of consecutive blocks, skipping deltas
// outside [0, maxDelta]. It returns fallback when fewer than two blocks or no delta qualifies.
// The second result is the number of deltas used.
func AverageBlockTime(blocks []model.Block, maxDelta uint64, fallback float64) (float64, int) {
	if len(blocks) < 2 {
		return fallback, 0
	}
	ordered := sortedByNumber(blocks)

	var (
		total uint64
		count int
	)
	for i := 1; i < len(ordered); i++ {
		prev, next := ordered[i-1].Timestamp, ordered[i].Timestamp
		if next < prev {
			continue
		}
		delta := next - prev
		if delta > maxDelta {
			continue
		}
		total += delta
		count++
	}
	if count == 0 || total == 0 {
		return fallback, count
	}
	return float64(total) / float64(count), count
}

// ComputeSnapshot derives network stats from stored blocks and recent gas prices.
// It performs no I/O.
func ComputeSnapshot(blocks []model.Block, gasPrices []string, totalTxs int64, params Params, now time.Time) model.NetworkStats {
	snapshot := model.NetworkStats{
		BlocksAnalyzed:    len(blocks),
		TotalTransactions: totalTxs,
		Difficulty:        "0",
		DifficultyHuman:   HumanUnits(0, ""),
		AvgGasPrice:       "0",
		ComputedAt:        now.UTC(),
	}

	avg, _ := AverageBlockTime(blocks, params.MaxBlockDelta, params.DefaultBlockTime)
	snapshot.AvgBlockTime = avg

	miners := make(map[string]struct{}, len(blocks))
	var latest *model.Block
	for i := range blocks {
		block := &blocks[i]
		if block.Miner != "" {
			miners[block.Miner] = struct{}{}
		}
		if latest == nil || block.Number > latest.Number {
			latest = block
		}
	}
	snapshot.ActiveMiners = len(miners)

	if latest != nil {
		snapshot.LatestBlock = latest.Number
		if difficulty, ok := new(big.Float).SetString(latest.Difficulty); ok {
			snapshot.Difficulty = latest.Difficulty
			value, _ := difficulty.Float64()
			snapshot.DifficultyHuman = HumanUnits(value, "")
			if avg > 0 {
				snapshot.Hashrate = value / avg
			}
		}
	}
	snapshot.HashrateHuman = HumanUnits(snapshot.Hashrate, "H/s")

	if avgPrice := averageGasPrice(gasPrices); avgPrice != nil {
		snapshot.AvgGasPrice = avgPrice.String()
		snapshot.AvgGasPriceGwei = weiToGweiFloat(avgPrice)
	}
	return snapshot
}

// HumanUnits scales value by powers of 1000 and appends the matching unit prefix.
func HumanUnits(value float64, suffix string) string {
	unit := 0
	for value >= 1000 && unit < len(humanUnits)-1 {
		value /= 1000
		unit++
	}
	label := strings.TrimSpace(humanUnits[unit] + suffix)
	if label == "" {
		return fmt.Sprintf("%.2f", value)
	}
	return fmt.Sprintf("%.2f %s", value, label)
}

// averageGasPrice returns the integer mean of the positive prices, or nil when there are none.
func averageGasPrice(prices []string) *big.Int {
	sum := new(big.Int)
	count := 0
	for _, price := range prices {
		value, ok := new(big.Int).SetString(price, 10)
		if !ok || value.Sign() <= 0 {
			continue
		}
		sum.Add(sum, value)
		count++
	}
	if count == 0 {
		return nil
	}
	return sum.Quo(sum, big.NewInt(int64(count)))
}

func weiToGweiFloat(wei *big.Int) float64 {
	if wei == nil || wei.Sign() == 0 {
		return 0
	}
	gwei := new(big.Float).SetInt(wei)
	gwei.Quo(gwei, big.NewFloat(1e9))
	result, _ := gwei.Float64()
	return result
}

func sortedByNumber(blocks []model.Block) []model.Block {
	ordered := make([]model.Block, len(blocks))
	copy(ordered, blocks)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Number < ordered[j].Number
	})
	return ordered
}
