package onchain

import "github.com/ethereum/go-ethereum/common"

// ChainInfo is the static, well-known address table for one chain, per
// spec.md §4.2/§6 ("price source addresses are well-known constants...
// live in a static table keyed by chain").
type ChainInfo struct {
	ChainID          int64
	Name             string
	WETH             common.Address
	UniswapV3Factory common.Address
	ZeroExAllowance  common.Address
}

// Base is the primary deployment target, per spec.md §1.
var Base = ChainInfo{
	ChainID:          8453,
	Name:             "base",
	WETH:             common.HexToAddress("0x4200000000000000000000000000000000000006"),
	UniswapV3Factory: common.HexToAddress("0x33128a8fC17869897dcE68Ed026d694621f6FDfD"),
	ZeroExAllowance:  common.HexToAddress("0x0000000000001fF3684f28c67538d4D072C22734"),
}

var chainsByID = map[int64]ChainInfo{
	Base.ChainID: Base,
}

// ChainByID looks up the static address table for a chain, returning
// false when the chain is not recognized.
func ChainByID(id int64) (ChainInfo, bool) {
	c, ok := chainsByID[id]
	return c, ok
}
