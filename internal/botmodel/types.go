// Package botmodel defines the shared types for bots, grid positions, and
// configuration that flow between the supervisor, trading engine, oracle,
// risk guard, and persistence layers.
package botmodel

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a single grid position.
type PositionStatus string

const (
	StatusEmpty   PositionStatus = "EMPTY"
	StatusBuying  PositionStatus = "BUYING"
	StatusHolding PositionStatus = "HOLDING"
	StatusSelling PositionStatus = "SELLING"
	StatusSold    PositionStatus = "SOLD"
)

// Mode selects between grid trading and volume (wash-style accumulation)
// sub-modes. BotInstance.Config is always present and supplies the
// heartbeat settings in both modes; VolumeConfig is set only for VOLUME bots.
type Mode string

const (
	ModeGrid   Mode = "GRID"
	ModeVolume Mode = "VOLUME"
)

// GridConfig describes the immutable parameters of one bot's price grid.
// A config change always produces a new grid (new Positions), never an
// in-place mutation of an existing one.
type GridConfig struct {
	NumPositions      int             `json:"numPositions"`
	FloorPrice        decimal.Decimal `json:"floorPrice"`
	CeilingPrice      decimal.Decimal `json:"ceilingPrice"`
	TakeProfitPercent decimal.Decimal `json:"takeProfitPercent"`
	StopLossPercent   decimal.Decimal `json:"stopLossPercent"`
	StopLossEnabled   bool            `json:"stopLossEnabled"`
	BuysEnabled       bool            `json:"buysEnabled"`
	SellsEnabled      bool            `json:"sellsEnabled"`
	MoonBagEnabled    bool            `json:"moonBagEnabled"`
	MoonBagPercent    decimal.Decimal `json:"moonBagPercent"`
	MinProfitPercent  decimal.Decimal `json:"minProfitPercent"`
	MaxActivePositions int            `json:"maxActivePositions"`
	UseFixedBuyAmount bool            `json:"useFixedBuyAmount"`
	BuyAmount         *big.Int        `json:"buyAmount"`
	HeartbeatMs       int64           `json:"heartbeatMs"`
	SkipHeartbeats    int             `json:"skipHeartbeats"`
}

// VolumeConfig describes the parameters of VOLUME sub-mode (spec.md §4.5.1).
type VolumeConfig struct {
	BuysPerCycle int      `json:"volumeBuysPerCycle"`
	BuyAmount    *big.Int `json:"volumeBuyAmount"`
}

// Position is one cell of the grid: an accounting unit for a single
// buy/sell round-trip.
type Position struct {
	ID             int             `json:"id"`
	BuyMin         decimal.Decimal `json:"buyMin"`
	BuyMax         decimal.Decimal `json:"buyMax"`
	SellPrice      decimal.Decimal `json:"sellPrice"`
	StopLossPrice  decimal.Decimal `json:"stopLossPrice"`
	Status         PositionStatus  `json:"status"`
	BuyTxHash      string          `json:"buyTxHash,omitempty"`
	BuyTimestamp   time.Time       `json:"buyTimestamp,omitempty"`
	TokensReceived *big.Int        `json:"tokensReceived,omitempty"`
	EthCost        *big.Int        `json:"ethCost,omitempty"`
	SellTxHash     string          `json:"sellTxHash,omitempty"`
	SellTimestamp  time.Time       `json:"sellTimestamp,omitempty"`
	EthReceived    *big.Int        `json:"ethReceived,omitempty"`
	Profit         *big.Int        `json:"profit,omitempty"`
	ProfitPercent  decimal.Decimal `json:"profitPercent"`
}

// IsActive reports whether the position currently occupies a grid slot
// towards maxActivePositions (BUYING, HOLDING, SELLING).
func (p *Position) IsActive() bool {
	switch p.Status {
	case StatusBuying, StatusHolding, StatusSelling:
		return true
	default:
		return false
	}
}

// BotInstance is a single configured trading bot.
type BotInstance struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Chain         string          `json:"chain"`
	TokenAddress  string          `json:"tokenAddress"`
	TokenSymbol   string          `json:"tokenSymbol"`
	WalletAddress string          `json:"walletAddress"`
	UseMainWallet bool            `json:"useMainWallet"`
	Mode          Mode            `json:"mode"`
	Config        GridConfig      `json:"config"`
	VolumeConfig  *VolumeConfig   `json:"volumeConfig,omitempty"`
	Positions     []Position      `json:"positions"`

	TotalBuys      int             `json:"totalBuys"`
	TotalSells     int             `json:"totalSells"`
	TotalProfitEth decimal.Decimal `json:"totalProfitEth"` // decimal string on the wire, wei-precise

	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	LastTradeAt   time.Time       `json:"lastTradeAt,omitempty"`
	IsRunning     bool            `json:"isRunning"`
	Enabled       bool            `json:"enabled"`
	DryRun        bool            `json:"dryRun"`
	LastHeartbeat time.Time       `json:"lastHeartbeat,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastUpdated   time.Time       `json:"lastUpdated"`

	// VOLUME sub-mode state.
	VolumeBuysInCycle      int      `json:"volumeBuysInCycle"`
	VolumeAccumulatedToken *big.Int `json:"volumeAccumulatedTokens,omitempty"`
	VolumeCycleCount       int      `json:"volumeCycleCount"`

	ConsecutiveErrorCount int `json:"consecutiveErrorCount"`

	// SkipHeartbeats countdown, not persisted across process restarts
	// intentionally (it resets to Config.SkipHeartbeats on load).
	skipCounter int
}

// SkipCounter returns the bot's remaining skip-heartbeat count.
func (b *BotInstance) SkipCounter() int { return b.skipCounter }

// ResetSkipCounter reloads the skip counter from configuration.
func (b *BotInstance) ResetSkipCounter() { b.skipCounter = b.Config.SkipHeartbeats }

// DecrementSkipCounter decrements the skip counter, floored at zero.
func (b *BotInstance) DecrementSkipCounter() {
	if b.skipCounter > 0 {
		b.skipCounter--
	}
}

// CountActivePositions returns the number of positions occupying a grid
// slot (BUYING, HOLDING, SELLING).
func (b *BotInstance) CountActivePositions() int {
	n := 0
	for i := range b.Positions {
		if b.Positions[i].IsActive() {
			n++
		}
	}
	return n
}

// TradeAction distinguishes a buy from a sell in a TradeRecord.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// TradeRecord is an append-only entry in the trade log. It is never
// mutated or deleted once written.
type TradeRecord struct {
	BotID        string          `json:"botId"`
	BotName      string          `json:"botName"`
	TokenSymbol  string          `json:"tokenSymbol"`
	TokenAddress string          `json:"tokenAddress"`
	Action       TradeAction     `json:"action"`
	Amount       *big.Int        `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	EthValue     *big.Int        `json:"ethValue"`
	GasCost      *big.Int        `json:"gasCost"`
	Profit       *big.Int        `json:"profit,omitempty"`
	ProfitPercent decimal.Decimal `json:"profitPercent"`
	PositionID   int             `json:"positionId"`
	TxHash       string          `json:"txHash"`
	Timestamp    time.Time       `json:"timestamp"`
}

// PriceSource identifies where a PriceData observation came from.
type PriceSource string

const (
	SourceChainlink PriceSource = "chainlink"
	SourceUniswapV3 PriceSource = "uniswap-v3"
	SourceCombined  PriceSource = "combined"
	SourceFallback  PriceSource = "fallback"
)

// PriceData is an ephemeral price observation recomputed every tick.
type PriceData struct {
	Price        decimal.Decimal `json:"price"`
	Source       PriceSource     `json:"source"`
	Confidence   float64         `json:"confidence"`
	Timestamp    time.Time       `json:"timestamp"`
	TokenAddress string          `json:"tokenAddress"`
}
