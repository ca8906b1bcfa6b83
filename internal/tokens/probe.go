package tokens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"chainScope/internal/model"
)

// Caller performs read-only contract calls at the latest block.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Outcome is the branch a probe ended in.
type Outcome int

const (
	OutcomeClassified Outcome = iota + 1
	OutcomeUnclassified
	OutcomeProbeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClassified:
		return "classified"
	case OutcomeUnclassified:
		return "unclassified"
	case OutcomeProbeError:
		return "probe_error"
	default:
		return "unknown"
	}
}

// TokenMeta is the metadata read while probing.
type TokenMeta struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply string
}

// ProbeResult is Classified(kind), Unclassified or ProbeError.
type ProbeResult struct {
	Outcome Outcome
	Kind    model.ERCClass
	Meta    TokenMeta
	Err     error
}

// Classified reports a contract that answered every call of an interface.
func Classified(kind model.ERCClass, meta TokenMeta) ProbeResult {
	return ProbeResult{Outcome: OutcomeClassified, Kind: kind, Meta: meta}
}

// Unclassified reports a contract that rejected every interface probe.
func Unclassified() ProbeResult {
	return ProbeResult{Outcome: OutcomeUnclassified, Kind: model.ERCGeneric}
}

// ProbeError reports a probe that could not reach a verdict and should be retried.
func ProbeError(err error) ProbeResult {
	return ProbeResult{Outcome: OutcomeProbeError, Err: err}
}

// errRejected marks a call the contract answered but refused or answered with
// data that does not decode: the interface is not implemented.
var errRejected = errors.New("call rejected")

// executionRevertedCode is the JSON-RPC error code geth uses for reverts.
const executionRevertedCode = 3

var executionErrorMarkers = []string{"revert", "invalid opcode", "out of gas", "execution", "stack underflow"}

func isRejected(err error) bool {
	return errors.Is(err, errRejected)
}

// Prober classifies a contract by calling the interfaces it might implement.
type Prober struct {
	caller Caller
	logger *zap.Logger
}

// NewProber builds a Prober over caller. logger may be nil.
func NewProber(caller Caller, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{caller: caller, logger: logger}
}

// Probe tries the fungible interface first, then the NFT interface.
// A transport failure on any call yields ProbeError so the address can be retried.
func (p *Prober) Probe(ctx context.Context, address common.Address) ProbeResult {
	meta, err := p.probeFungible(ctx, address)
	if err == nil {
		return Classified(model.ERC20, meta)
	}
	if !isRejected(err) {
		return ProbeError(err)
	}

	isNFT, err := p.probeNFT(ctx, address)
	if err != nil {
		if isRejected(err) {
			return Unclassified()
		}
		return ProbeError(err)
	}
	if !isNFT {
		return Unclassified()
	}
	return Classified(model.ERC721, p.nftMeta(ctx, address))
}

func (p *Prober) probeFungible(ctx context.Context, address common.Address) (TokenMeta, error) {
	var meta TokenMeta

	name, err := p.callString(ctx, address, "name")
	if err != nil {
		return meta, err
	}
	symbol, err := p.callString(ctx, address, "symbol")
	if err != nil {
		return meta, err
	}

	values, err := p.callUnpack(ctx, address, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, fmt.Errorf("%w: decimals: %w", errRejected, err)
	}

	values, err = p.callUnpack(ctx, address, "totalSupply")
	if err != nil {
		return meta, err
	}
	supply, err := asBigInt(values[0])
	if err != nil {
		return meta, fmt.Errorf("%w: totalSupply: %w", errRejected, err)
	}

	meta.Name = name
	meta.Symbol = symbol
	meta.Decimals = decimals
	meta.TotalSupply = supply.String()
	return meta, nil
}

// probeNFT asks for ERC-165 support of ERC-721 and falls back to tokenURI(0)
// when the contract does not answer introspection.
func (p *Prober) probeNFT(ctx context.Context, address common.Address) (bool, error) {
	values, err := p.callUnpack(ctx, address, "supportsInterface", erc721InterfaceID)
	if err == nil {
		if supported, ok := values[0].(bool); ok {
			return supported, nil
		}
	} else if !isRejected(err) {
		return false, err
	}

	if _, err := p.callUnpack(ctx, address, "tokenURI", big.NewInt(0)); err != nil {
		return false, err
	}
	return true, nil
}

// nftMeta reads the optional ERC-721 metadata extension.
func (p *Prober) nftMeta(ctx context.Context, address common.Address) TokenMeta {
	var meta TokenMeta
	if name, err := p.callString(ctx, address, "name"); err == nil {
		meta.Name = name
	} else {
		p.logger.Debug("nft name call failed", zap.String("token", address.Hex()), zap.Error(err))
	}
	if symbol, err := p.callString(ctx, address, "symbol"); err == nil {
		meta.Symbol = symbol
	}
	if values, err := p.callUnpack(ctx, address, "totalSupply"); err == nil {
		if supply, err := asBigInt(values[0]); err == nil {
			meta.TotalSupply = supply.String()
		}
	}
	return meta
}

// callString decodes a string return value, falling back to bytes32.
func (p *Prober) callString(ctx context.Context, address common.Address, method string) (string, error) {
	resp, err := p.call(ctx, address, method)
	if err != nil {
		return "", err
	}

	stringABI, err := tokenABIInstance()
	if err != nil {
		return "", fmt.Errorf("parse token abi: %w", err)
	}
	if values, err := stringABI.Unpack(method, resp); err == nil && len(values) > 0 {
		if value, ok := values[0].(string); ok {
			return sanitizeText(value), nil
		}
	}

	bytes32ABI, err := tokenABIBytes32Instance()
	if err != nil {
		return "", fmt.Errorf("parse token bytes32 abi: %w", err)
	}
	values, err := bytes32ABI.Unpack(method, resp)
	if err != nil || len(values) == 0 {
		return "", fmt.Errorf("%w: unpack %s: %v", errRejected, method, err)
	}
	value, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("%w: unpack %s: unexpected %T", errRejected, method, values[0])
	}
	return sanitizeText(value), nil
}

func (p *Prober) callUnpack(ctx context.Context, address common.Address, method string, args ...interface{}) ([]interface{}, error) {
	resp, err := p.call(ctx, address, method, args...)
	if err != nil {
		return nil, err
	}
	parsed, err := tokenABIInstance()
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	return unpack(parsed, method, resp)
}

func (p *Prober) call(ctx context.Context, address common.Address, method string, args ...interface{}) ([]byte, error) {
	if p.caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	parsed, err := tokenABIInstance()
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &address, Data: data}
	resp, err := p.caller.CallContract(ctx, msg, nil)
	if err != nil {
		if isExecutionError(err) {
			return nil, fmt.Errorf("%w: call %s: %w", errRejected, method, err)
		}
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return resp, nil
}

// isExecutionError reports whether the node ran the call and the EVM failed it.
// Other JSON-RPC errors, such as rate limits, are transport failures.
func isExecutionError(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.ErrorCode() == executionRevertedCode {
		return true
	}
	msg := strings.ToLower(rpcErr.Error())
	for _, marker := range executionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func unpack(parsed abi.ABI, method string, resp []byte) ([]interface{}, error) {
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %w", errRejected, method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: unpack %s: no values", errRejected, method)
	}
	return values, nil
}
