package indexer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestBuildTransactionPrefersEffectiveGasPrice(t *testing.T) {
	to := testTarget
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(10), Gas: 21_000, To: &to, Value: big.NewInt(1)})
	block := types.NewBlockWithHeader(&types.Header{Number: big.NewInt(7), Time: 99, Difficulty: big.NewInt(1)})
	receipt := &types.Receipt{Status: types.ReceiptStatusFailed, GasUsed: 20_000, EffectiveGasPrice: big.NewInt(7)}

	record := buildTransaction(block, 3, tx, testSender, receipt)
	if record.GasPrice != "7" {
		t.Fatalf("gas price mismatch: %s", record.GasPrice)
	}
	if record.Status != 0 || record.GasUsed != 20_000 {
		t.Fatalf("receipt fields mismatch: %+v", record)
	}
	if record.TxIndex != 3 || record.BlockNumber != 7 || record.Timestamp != 99 {
		t.Fatalf("position mismatch: %+v", record)
	}
	if record.ContractAddress != "" {
		t.Fatalf("transfer has no contract address")
	}
	if record.Input != "0x" {
		t.Fatalf("empty input should encode as 0x, got %q", record.Input)
	}
}

func TestBuildBlockOptionalFields(t *testing.T) {
	header := &types.Header{
		Number:     big.NewInt(12),
		Difficulty: big.NewInt(500),
		Coinbase:   common.HexToAddress("0xAAAA000000000000000000000000000000000000"),
		Extra:      []byte{0x01, 0x02},
	}
	block := buildBlock(types.NewBlockWithHeader(header))
	if block.BaseFee != "" {
		t.Fatalf("pre-london block has no base fee, got %q", block.BaseFee)
	}
	if block.Difficulty != "500" || block.ExtraData != "0x0102" {
		t.Fatalf("unexpected block: %+v", block)
	}
	if block.Miner != "0xaaaa000000000000000000000000000000000000" {
		t.Fatalf("miner mismatch: %s", block.Miner)
	}

	header.BaseFee = big.NewInt(1_000)
	if got := buildBlock(types.NewBlockWithHeader(header)).BaseFee; got != "1000" {
		t.Fatalf("base fee mismatch: %s", got)
	}
}
