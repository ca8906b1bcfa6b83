package model

// TokenTransfer is one Transfer log of a tracked token.
type TokenTransfer struct {
	TokenAddress string `json:"token_address"`
	TxHash       string `json:"tx_hash"`
	LogIndex     uint   `json:"log_index"`
	TokenID      string `json:"token_id"`
	From         string `json:"from"`
	To           string `json:"to"`
	BlockNumber  uint64 `json:"block_number"`
	Timestamp    uint64 `json:"timestamp"`
}

// TokenHolder is a current ownership ledger row derived from transfers.
type TokenHolder struct {
	TokenAddress  string  `json:"token_address"`
	HolderAddress string  `json:"holder_address"`
	Balance       int64   `json:"balance"`
	Rank          int     `json:"rank"`
	Percentage    float64 `json:"percentage"`
}
