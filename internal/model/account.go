package model

import "time"

// AccountType distinguishes externally owned accounts from contracts.
type AccountType string

const (
	AccountWallet   AccountType = "wallet"
	AccountContract AccountType = "contract"
)

// Account is the latest sampled balance snapshot of an address.
// Balance is a base-10 integer string in wei.
type Account struct {
	Address     string      `json:"address"`
	Balance     string      `json:"balance"`
	Type        AccountType `json:"type"`
	BlockNumber uint64      `json:"block_number"`
	Percentage  float64     `json:"percentage"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
