package model

// Receipt status values.
const (
	TxStatusFailed  uint64 = 0
	TxStatusSuccess uint64 = 1
)

// Transaction is the normalized representation of a settled transaction.
// Hashes and addresses are lowercase hex.
type Transaction struct {
	Hash            string `json:"hash"`
	BlockNumber     uint64 `json:"block_number"`
	BlockHash       string `json:"block_hash"`
	TxIndex         uint   `json:"tx_index"`
	From            string `json:"from"`
	To              string `json:"to,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	Value           string `json:"value"`
	Gas             uint64 `json:"gas"`
	GasUsed         uint64 `json:"gas_used"`
	GasPrice        string `json:"gas_price"`
	Nonce           uint64 `json:"nonce"`
	Input           string `json:"input"`
	Status          uint64 `json:"status"`
	Timestamp       uint64 `json:"timestamp"`
}

// IsContractCreation reports whether the transaction deployed a contract.
func (t Transaction) IsContractCreation() bool {
	return t.To == ""
}
