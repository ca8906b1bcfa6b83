package indexer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

func buildBlock(block *types.Block) model.Block {
	txs := block.Transactions()
	txHashes := make([]string, 0, len(txs))
	for _, tx := range txs {
		txHashes = append(txHashes, scan.NormalizeHash(tx.Hash()))
	}

	return model.Block{
		Number:     block.NumberU64(),
		Hash:       scan.NormalizeHash(block.Hash()),
		ParentHash: scan.NormalizeHash(block.ParentHash()),
		Miner:      scan.NormalizeAddress(block.Coinbase()),
		Difficulty: bigString(block.Difficulty()),
		GasUsed:    block.GasUsed(),
		GasLimit:   block.GasLimit(),
		BaseFee:    optionalBigString(block.BaseFee()),
		Size:       block.Size(),
		Nonce:      block.Nonce(),
		ExtraData:  hexutil.Encode(block.Extra()),
		Timestamp:  block.Time(),
		TxCount:    len(txs),
		UncleCount: len(block.Uncles()),
		TxHashes:   txHashes,
	}
}

func buildTransaction(block *types.Block, index int, tx *types.Transaction, from common.Address, receipt *types.Receipt) model.Transaction {
	record := model.Transaction{
		Hash:        scan.NormalizeHash(tx.Hash()),
		BlockNumber: block.NumberU64(),
		BlockHash:   scan.NormalizeHash(block.Hash()),
		TxIndex:     uint(index),
		From:        scan.NormalizeAddress(from),
		Value:       bigString(tx.Value()),
		Gas:         tx.Gas(),
		GasPrice:    bigString(tx.GasPrice()),
		Nonce:       tx.Nonce(),
		Input:       hexutil.Encode(tx.Data()),
		Timestamp:   block.Time(),
	}
	if to := tx.To(); to != nil {
		record.To = scan.NormalizeAddress(*to)
	}
	if receipt != nil {
		record.Status = receipt.Status
		record.GasUsed = receipt.GasUsed
		if receipt.EffectiveGasPrice != nil && receipt.EffectiveGasPrice.Sign() > 0 {
			record.GasPrice = receipt.EffectiveGasPrice.String()
		}
		if tx.To() == nil && receipt.ContractAddress != (common.Address{}) {
			record.ContractAddress = scan.NormalizeAddress(receipt.ContractAddress)
		}
	}
	return record
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func optionalBigString(value *big.Int) string {
	if value == nil {
		return ""
	}
	return value.String()
}
