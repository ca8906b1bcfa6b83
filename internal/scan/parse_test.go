package scan

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNormalize(t *testing.T) {
	addr := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	if got := NormalizeAddress(addr); got != "0xabcdef0000000000000000000000000000000001" {
		t.Fatalf("address not lowercased: %s", got)
	}
	if got := NormalizeHex("ABCD"); got != "0xabcd" {
		t.Fatalf("hex not normalized: %s", got)
	}
	if ZeroAddress != "0x0000000000000000000000000000000000000000" {
		t.Fatalf("zero address mismatch: %s", ZeroAddress)
	}
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x1111111111111111111111111111111111111111 ", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one address, got %d", len(got))
	}
	if _, err := ParseAddresses([]string{"nope"}); err == nil {
		t.Fatalf("expected error for invalid address")
	}
}
