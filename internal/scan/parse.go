package scan

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the lowercase zero/burn address.
var ZeroAddress = NormalizeAddress(common.Address{})

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// NormalizeAddress returns the canonical lowercase hex form of an address.
func NormalizeAddress(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// NormalizeHash returns the canonical lowercase hex form of a hash.
func NormalizeHash(hash common.Hash) string {
	return strings.ToLower(hash.Hex())
}

// NormalizeHex lowercases a hex string address or hash, adding the 0x prefix if missing.
func NormalizeHex(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}
	if !strings.HasPrefix(input, "0x") {
		input = "0x" + input
	}
	return input
}
