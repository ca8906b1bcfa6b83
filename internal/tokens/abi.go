package tokens

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// erc721InterfaceID is the ERC-165 interface id of ERC-721.
var erc721InterfaceID = [4]byte{0x80, 0xac, 0x58, 0xcd}

// transferTopic is keccak256("Transfer(address,address,uint256)"), shared by ERC-20 and ERC-721.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const tokenABIJSON = `[
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "interfaceId", "type": "bytes4"}], "name": "supportsInterface", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "tokenId", "type": "uint256"}], "name": "tokenURI", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": true, "name": "tokenId", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  }
]`

// Older tokens return name and symbol as bytes32.
const tokenABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	tokenABI            abi.ABI
	tokenABIOnce        sync.Once
	tokenABIErr         error
	tokenABIBytes32     abi.ABI
	tokenABIBytes32Once sync.Once
	tokenABIBytes32Err  error
)

func tokenABIInstance() (abi.ABI, error) {
	tokenABIOnce.Do(func() {
		tokenABI, tokenABIErr = abi.JSON(strings.NewReader(tokenABIJSON))
	})
	return tokenABI, tokenABIErr
}

func tokenABIBytes32Instance() (abi.ABI, error) {
	tokenABIBytes32Once.Do(func() {
		tokenABIBytes32, tokenABIBytes32Err = abi.JSON(strings.NewReader(tokenABIBytes32JSON))
	})
	return tokenABIBytes32, tokenABIBytes32Err
}
