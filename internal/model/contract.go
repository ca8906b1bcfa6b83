package model

// ERCClass is the token interface family a contract was classified as.
type ERCClass int

const (
	ERCGeneric ERCClass = 0
	ERC20      ERCClass = 20
	ERC721     ERCClass = 721
)

func (c ERCClass) String() string {
	switch c {
	case ERC20:
		return "ERC20"
	case ERC721:
		return "ERC721"
	default:
		return "generic"
	}
}

// Contract is classified contract metadata. ERCClass is fixed at discovery.
type Contract struct {
	Address     string   `json:"address"`
	ERCClass    ERCClass `json:"erc_class"`
	Name        string   `json:"name,omitempty"`
	Symbol      string   `json:"symbol,omitempty"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply string   `json:"total_supply,omitempty"`
	Creator     string   `json:"creator,omitempty"`
	CreationTx  string   `json:"creation_tx,omitempty"`
	BlockNumber uint64   `json:"block_number"`
	Verified    bool     `json:"verified"`
	Bytecode    string   `json:"bytecode,omitempty"`
	SourceCode  string   `json:"source_code,omitempty"`
}
