// Package onchain defines the narrow collaborator contracts the core
// trading engine depends on: a signing-key vault, a DEX aggregator quote
// client, and an on-chain RPC client. Concrete implementations (key
// derivation, 0x HTTP calls, JSON-RPC transport) are deliberately out of
// scope per spec.md §1 — this package only fixes the boundary.
package onchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SigningAccount can sign and submit a transaction on behalf of one bot.
type SigningAccount struct {
	Address common.Address
}

// Vault resolves a bot id to the signing account that authorizes its
// on-chain transactions. Decryption of the private key happens once per
// bot at load time; the vault is shared read-only at steady state.
type Vault interface {
	Unlock(ctx context.Context, botID string) (*SigningAccount, error)
}

// QuoteRequest is the input contract to the DEX aggregator.
type QuoteRequest struct {
	BuyToken   common.Address
	SellToken  common.Address
	Amount     *big.Int
	Taker      common.Address
	SlippageBp int
}

// Quote is the aggregator's response; nil indicates no route was found.
type Quote struct {
	BuyToken         common.Address
	SellToken        common.Address
	BuyAmount        *big.Int
	SellAmount       *big.Int
	Price            *big.Int // fixed-point, informational only
	Gas              uint64
	GasPrice         *big.Int
	To               common.Address
	Data             []byte
	Value            *big.Int
	AllowanceTarget  common.Address
}

// DEXAggregator quotes and assembles a swap transaction envelope.
type DEXAggregator interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// Receipt is the minimal on-chain confirmation the core needs.
type Receipt struct {
	TxHash    common.Hash
	Success   bool
	GasUsed   uint64
	GasPrice  *big.Int
	BlockTime int64
}

// RPCClient is the read/write on-chain collaborator: balances, gas
// estimation, raw calls (used by the oracle for Chainlink/Uniswap reads),
// transaction submission, and receipt polling.
type RPCClient interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SendTransaction(ctx context.Context, signer *SigningAccount, to common.Address, data []byte, value *big.Int) (common.Hash, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
}
