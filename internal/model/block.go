package model

// Block is the normalized representation of a chain block for storage.
type Block struct {
	Number          uint64   `json:"number"`
	Hash            string   `json:"hash"`
	ParentHash      string   `json:"parent_hash"`
	Miner           string   `json:"miner"`
	Difficulty      string   `json:"difficulty"`
	TotalDifficulty string   `json:"total_difficulty,omitempty"`
	GasUsed         uint64   `json:"gas_used"`
	GasLimit        uint64   `json:"gas_limit"`
	BaseFee         string   `json:"base_fee,omitempty"`
	Size            uint64   `json:"size"`
	Nonce           uint64   `json:"nonce"`
	ExtraData       string   `json:"extra_data"`
	Timestamp       uint64   `json:"timestamp"`
	TxCount         int      `json:"tx_count"`
	UncleCount      int      `json:"uncle_count"`
	TxHashes        []string `json:"tx_hashes"`
}

// BlockStat is a derived per-block analytics row.
type BlockStat struct {
	Number     uint64 `json:"number"`
	BlockTime  uint64 `json:"block_time"`
	TxCount    int    `json:"tx_count"`
	GasUsed    uint64 `json:"gas_used"`
	UncleCount int    `json:"uncle_count"`
	Difficulty string `json:"difficulty"`
}
