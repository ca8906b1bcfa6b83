package tokens

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

// CodeReader reads deployed bytecode.
type CodeReader interface {
	CodeAt(ctx context.Context, address common.Address, blockNumber *big.Int) ([]byte, error)
}

// VerifyStore is the contract persistence the verifier needs.
type VerifyStore interface {
	GetContract(ctx context.Context, address string) (model.Contract, bool, error)
	MarkContractVerified(ctx context.Context, address, sourceCode string) (bool, error)
}

// Verifier marks a stored contract verified when compiled runtime bytecode matches
// the deployed code.
type Verifier struct {
	chain        CodeReader
	store        VerifyStore
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewVerifier builds a Verifier. Code reads are retried up to maxRetries times.
func NewVerifier(chainClient CodeReader, store VerifyStore, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		chain:        chainClient,
		store:        store,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		logger:       logger,
	}
}

// Verify compares compiledHex with the code deployed at address. A match sets the
// verified flag and stores source when given. A mismatch never clears the flag.
func (v *Verifier) Verify(ctx context.Context, address common.Address, compiledHex, source string) (bool, error) {
	if v.chain == nil || v.store == nil {
		return false, fmt.Errorf("verifier is not wired")
	}
	key := scan.NormalizeAddress(address)

	contract, found, err := v.store.GetContract(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get contract %s: %w", key, err)
	}
	if !found {
		return false, fmt.Errorf("contract %s is not indexed", key)
	}
	if contract.Verified {
		return true, nil
	}

	compiled, err := hexutil.Decode(scan.NormalizeHex(compiledHex))
	if err != nil {
		return false, fmt.Errorf("decode compiled bytecode: %w", err)
	}

	var deployed []byte
	err = scan.Retry(ctx, v.maxRetries, v.retryBackoff, func(ctx context.Context) error {
		var err error
		deployed, err = v.chain.CodeAt(ctx, address, nil)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("get code %s: %w", key, err)
	}
	if len(deployed) == 0 {
		return false, fmt.Errorf("no code deployed at %s", key)
	}

	if !compareBytecode(deployed, compiled) {
		v.logger.Info("bytecode mismatch", zap.String("address", key))
		return false, nil
	}
	if _, err := v.store.MarkContractVerified(ctx, key, source); err != nil {
		return false, fmt.Errorf("mark verified %s: %w", key, err)
	}
	v.logger.Info("contract verified", zap.String("address", key))
	return true, nil
}

// compareBytecode reports whether both codes are equal once their metadata is stripped.
func compareBytecode(onChain, compiled []byte) bool {
	if len(onChain) == 0 || len(compiled) == 0 {
		return false
	}
	return bytes.Equal(stripMetadata(onChain), stripMetadata(compiled))
}

// stripMetadata removes the trailing CBOR metadata. Its length is stored big-endian in
// the last two bytes of the code.
func stripMetadata(code []byte) []byte {
	if len(code) < 2 {
		return code
	}
	metaLen := int(code[len(code)-2])<<8 | int(code[len(code)-1])
	if metaLen == 0 || metaLen+2 > len(code) {
		return code
	}
	return code[:len(code)-metaLen-2]
}
