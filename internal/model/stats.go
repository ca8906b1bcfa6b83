package model

import "time"

// NetworkStats is a read-only snapshot of chain health metrics.
type NetworkStats struct {
	LatestBlock       uint64    `json:"latest_block"`
	AvgBlockTime      float64   `json:"avg_block_time"`
	BlocksAnalyzed    int       `json:"blocks_analyzed"`
	Difficulty        string    `json:"difficulty"`
	DifficultyHuman   string    `json:"difficulty_human"`
	Hashrate          float64   `json:"hashrate"`
	HashrateHuman     string    `json:"hashrate_human"`
	AvgGasPrice       string    `json:"avg_gas_price"`
	AvgGasPriceGwei   float64   `json:"avg_gas_price_gwei"`
	ActiveMiners      int       `json:"active_miners"`
	TotalTransactions int64     `json:"total_transactions"`
	ComputedAt        time.Time `json:"computed_at"`
}
