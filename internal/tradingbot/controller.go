// Package tradingbot implements the per-bot control loop of spec.md §4.5:
// the five-state position state machine, the grid sell/buy tick phases,
// the VOLUME sub-mode, dry-run, and liquidation.
package tradingbot

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/ledger"
	"github.com/web3guy0/polybot/internal/metrics"
	"github.com/web3guy0/polybot/internal/onchain"
	"github.com/web3guy0/polybot/internal/oracle"
	"github.com/web3guy0/polybot/internal/riskguard"
)

// maxConsecutiveErrors is the error gate of spec.md §4.5 step 6.
const maxConsecutiveErrors = 5

// Default timeouts per external call, per spec.md §5. Operator-overridable
// via config.Config's PRICE_FETCH_TIMEOUT / QUOTE_TIMEOUT / RECEIPT_TIMEOUT
// env vars, wired through Controller's matching fields.
const (
	defaultPriceFetchTimeout = 10 * time.Second
	defaultQuoteTimeout      = 15 * time.Second
	defaultReceiptTimeout    = 120 * time.Second
)

// Controller drives a single tick for any bot handed to it. It holds no
// per-bot state of its own — BotInstance is the unit of state, Controller
// is the stateless worker, matching spec.md §9's "capability interfaces,
// not concrete types" design note.
type Controller struct {
	Oracle        *oracle.Aggregator
	RPC           onchain.RPCClient
	Vault         onchain.Vault
	DEX           onchain.DEXAggregator
	Breaker       *riskguard.CircuitBreaker
	Ledger        *ledger.Ledger
	Notifier      Notifier
	MinConfidence float64
	GasReserveWei *big.Int
	SlippageBp    int
	WETHAddress   common.Address
	AllBots       func() []botmodel.BotInstance // for circuit-breaker portfolio valuation

	// Per-call timeouts. Zero means "use the package default".
	PriceFetchTimeout time.Duration
	QuoteTimeout      time.Duration
	ReceiptTimeout    time.Duration
}

func (c *Controller) priceFetchTimeout() time.Duration {
	if c.PriceFetchTimeout > 0 {
		return c.PriceFetchTimeout
	}
	return defaultPriceFetchTimeout
}

func (c *Controller) quoteTimeout() time.Duration {
	if c.QuoteTimeout > 0 {
		return c.QuoteTimeout
	}
	return defaultQuoteTimeout
}

func (c *Controller) receiptTimeout() time.Duration {
	if c.ReceiptTimeout > 0 {
		return c.ReceiptTimeout
	}
	return defaultReceiptTimeout
}

func (c *Controller) notify(e Event) {
	if c.Notifier != nil {
		c.Notifier.Notify(e)
	}
}

// Tick executes one control-loop cycle for bot, per spec.md §4.5.
func (c *Controller) Tick(ctx context.Context, bot *botmodel.BotInstance) error {
	if !bot.Enabled || !bot.IsRunning {
		return nil
	}

	tickID := uuid.NewString()

	start := time.Now()
	defer func() {
		metrics.TickDuration.WithLabelValues(bot.ID).Observe(time.Since(start).Seconds())
		metrics.ProfitEth.WithLabelValues(bot.ID).Set(weiToEthFloat(bot))
		metrics.ActivePositions.WithLabelValues(bot.ID).Set(float64(activePositionCount(bot)))
	}()

	priceCtx, cancel := context.WithTimeout(ctx, c.priceFetchTimeout())
	price, err := c.Oracle.GetPrice(priceCtx, c.RPC, common.HexToAddress(bot.TokenAddress))
	cancel()
	if err == nil {
		err = oracle.ValidatePrice(price, c.MinConfidence)
	}
	if err != nil {
		bot.ConsecutiveErrorCount++
		metrics.TickErrors.WithLabelValues(bot.ID).Inc()
		fail(KindPriceUnavailable, bot.ID, tickID, "price_fetch", err)
		c.gateErrors(bot)
		return nil
	}
	bot.ConsecutiveErrorCount = 0
	bot.CurrentPrice = price.Price

	if bot.Mode == botmodel.ModeVolume {
		c.volumeTick(ctx, tickID, bot)
	} else {
		c.sellPhase(ctx, tickID, bot)
		c.buyPhase(ctx, tickID, bot)
	}

	c.gateErrors(bot)
	return nil
}

func activePositionCount(bot *botmodel.BotInstance) int {
	n := 0
	for _, p := range bot.Positions {
		if p.Status != botmodel.StatusEmpty && p.Status != botmodel.StatusSold {
			n++
		}
	}
	return n
}

func weiToEthFloat(bot *botmodel.BotInstance) float64 {
	f, _ := bot.TotalProfitEth.Float64()
	return f
}

// gateErrors implements spec.md §4.5 step 6.
func (c *Controller) gateErrors(bot *botmodel.BotInstance) {
	if bot.ConsecutiveErrorCount >= maxConsecutiveErrors && bot.IsRunning {
		bot.IsRunning = false
		c.notify(Event{
			Kind:    EventStatusChange,
			BotID:   bot.ID,
			BotName: bot.Name,
			Message: "bot stopped after reaching the consecutive error limit",
			Fields:  map[string]string{"consecutiveErrors": itoa(bot.ConsecutiveErrorCount)},
		})
	}
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

// weiDecimals is the native asset's decimal scale.
const weiDecimals = 18

func weiToEth(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Shift(-weiDecimals)
}
