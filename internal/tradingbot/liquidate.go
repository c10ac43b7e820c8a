package tradingbot

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
)

// LiquidationResult reports how many HOLDING positions were sold and how
// many failed, per spec.md §4.5.3.
type LiquidationResult struct {
	Success int
	Failed  int
}

// LiquidateAll sells every HOLDING position for bot regardless of
// minProfitPercent. Used for an operator-triggered emergency exit.
func (c *Controller) LiquidateAll(ctx context.Context, bot *botmodel.BotInstance) LiquidationResult {
	var result LiquidationResult
	tickID := uuid.NewString()

	for i := range bot.Positions {
		pos := &bot.Positions[i]
		if pos.Status != botmodel.StatusHolding {
			continue
		}

		quoteCtx, cancel := context.WithTimeout(ctx, c.quoteTimeout())
		quote, err := c.DEX.Quote(quoteCtx, onchain.QuoteRequest{
			BuyToken:   c.WETHAddress,
			SellToken:  common.HexToAddress(bot.TokenAddress),
			Amount:     pos.TokensReceived,
			Taker:      common.HexToAddress(bot.WalletAddress),
			SlippageBp: c.SlippageBp,
		})
		cancel()
		if err != nil || quote == nil {
			result.Failed++
			fail(KindQuoteFailed, bot.ID, tickID, "liquidate_quote", err)
			continue
		}

		pos.Status = botmodel.StatusSelling
		receipt, err := c.submit(ctx, bot, quote)
		if err != nil || receipt == nil || !receipt.Success {
			pos.Status = botmodel.StatusHolding
			result.Failed++
			fail(KindSubmitFailed, bot.ID, tickID, "liquidate_submit", err)
			c.notify(Event{Kind: EventError, BotID: bot.ID, BotName: bot.Name, Message: "liquidation sell failed", Fields: map[string]string{"positionId": itoa(pos.ID)}})
			continue
		}

		gasCost := new(big.Int).Mul(big.NewInt(int64(receipt.GasUsed)), receipt.GasPrice)
		ethReceived := quote.BuyAmount
		netEth := new(big.Int).Sub(ethReceived, gasCost)
		profit := new(big.Int).Sub(netEth, pos.EthCost)

		pos.SellTxHash = receipt.TxHash.Hex()
		pos.SellTimestamp = time.Now()
		pos.EthReceived = ethReceived
		pos.Profit = profit
		pos.ProfitPercent = percentOf(profit, pos.EthCost)
		pos.Status = botmodel.StatusSold

		bot.TotalSells++
		bot.TotalProfitEth = bot.TotalProfitEth.Add(weiToEth(profit))
		bot.LastTradeAt = pos.SellTimestamp

		rec := botmodel.TradeRecord{
			BotID: bot.ID, BotName: bot.Name, TokenSymbol: bot.TokenSymbol, TokenAddress: bot.TokenAddress,
			Action: botmodel.ActionSell, Amount: pos.TokensReceived, Price: bot.CurrentPrice,
			EthValue: ethReceived, GasCost: gasCost, Profit: profit, ProfitPercent: pos.ProfitPercent,
			PositionID: pos.ID, TxHash: pos.SellTxHash, Timestamp: pos.SellTimestamp,
		}
		c.Ledger.Record(rec)
		result.Success++
	}

	c.notify(Event{Kind: EventSummary, BotID: bot.ID, BotName: bot.Name, Message: "liquidation complete", Fields: map[string]string{
		"success": itoa(result.Success), "failed": itoa(result.Failed),
	}})
	return result
}
