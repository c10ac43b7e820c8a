package tradingbot

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/gridmodel"
	"github.com/web3guy0/polybot/internal/metrics"
	"github.com/web3guy0/polybot/internal/onchain"
)

// sellPhase implements spec.md §4.5 step 4: sells run first to free buckets.
func (c *Controller) sellPhase(ctx context.Context, tickID string, bot *botmodel.BotInstance) {
	if !bot.Config.SellsEnabled {
		return
	}

	candidates := gridmodel.FindSellPositions(bot.Positions, bot.CurrentPrice)
	for _, idx := range candidates {
		pos := &bot.Positions[idx]

		sellAmount := new(big.Int).Set(pos.TokensReceived)
		if bot.Config.MoonBagEnabled {
			sellAmount = applyMoonBag(sellAmount, bot.Config.MoonBagPercent)
		}

		quoteCtx, cancel := context.WithTimeout(ctx, c.quoteTimeout())
		quote, err := c.DEX.Quote(quoteCtx, onchain.QuoteRequest{
			BuyToken:   c.WETHAddress,
			SellToken:  common.HexToAddress(bot.TokenAddress),
			Amount:     sellAmount,
			Taker:      common.HexToAddress(bot.WalletAddress),
			SlippageBp: c.SlippageBp,
		})
		cancel()
		if err != nil || quote == nil {
			bot.ConsecutiveErrorCount++
			fail(KindQuoteFailed, bot.ID, tickID, "sell_quote", err)
			continue
		}

		if !isProfitable(quote.BuyAmount, pos.EthCost, bot.Config.MinProfitPercent) {
			continue
		}

		pos.Status = botmodel.StatusSelling
		receipt, err := c.submit(ctx, bot, quote)
		if err != nil || receipt == nil || !receipt.Success {
			pos.Status = botmodel.StatusHolding
			bot.ConsecutiveErrorCount++
			fail(KindSubmitFailed, bot.ID, tickID, "sell_submit", err)
			c.notify(Event{Kind: EventError, BotID: bot.ID, BotName: bot.Name, Message: "sell transaction failed", Fields: map[string]string{"positionId": itoa(pos.ID)}})
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
			Action: botmodel.ActionSell, Amount: sellAmount, Price: bot.CurrentPrice,
			EthValue: ethReceived, GasCost: gasCost, Profit: profit, ProfitPercent: pos.ProfitPercent,
			PositionID: pos.ID, TxHash: pos.SellTxHash, Timestamp: pos.SellTimestamp,
		}
		c.Ledger.Record(rec)
		metrics.TradesTotal.WithLabelValues(bot.ID, "sell").Inc()
		c.notify(Event{Kind: EventProfit, BotID: bot.ID, BotName: bot.Name, Message: "position sold", Fields: map[string]string{
			"positionId": itoa(pos.ID), "profit": weiToEth(profit).StringFixed(6),
		}})
	}
}

// buyPhase implements spec.md §4.5 step 5.
func (c *Controller) buyPhase(ctx context.Context, tickID string, bot *botmodel.BotInstance) {
	if !bot.Config.BuysEnabled {
		return
	}
	if c.Breaker != nil && c.Breaker.IsTripped() {
		return
	}
	if bot.CountActivePositions() >= bot.Config.MaxActivePositions {
		return
	}

	idx := gridmodel.FindBuyPosition(bot.Positions, bot.CurrentPrice, decimal.Zero)
	if idx < 0 {
		return
	}
	pos := &bot.Positions[idx]

	balance, err := c.RPC.BalanceAt(ctx, common.HexToAddress(bot.WalletAddress))
	if err != nil {
		bot.ConsecutiveErrorCount++
		fail(KindBalanceUnavailable, bot.ID, tickID, "buy_balance", err)
		return
	}

	buyAmountWei := bot.Config.BuyAmount
	if !bot.Config.UseFixedBuyAmount {
		availableEth := new(big.Int).Sub(balance, c.GasReserveWei)
		buyAmountWei = gridmodel.CalculatePositionSize(availableEth, bot.Config.NumPositions, idx)
	}

	required := new(big.Int).Add(buyAmountWei, c.GasReserveWei)
	if balance.Cmp(required) <= 0 {
		return
	}

	quoteCtx, cancel := context.WithTimeout(ctx, c.quoteTimeout())
	quote, err := c.DEX.Quote(quoteCtx, onchain.QuoteRequest{
		BuyToken:   common.HexToAddress(bot.TokenAddress),
		SellToken:  c.WETHAddress,
		Amount:     buyAmountWei,
		Taker:      common.HexToAddress(bot.WalletAddress),
		SlippageBp: c.SlippageBp,
	})
	cancel()
	if err != nil || quote == nil {
		bot.ConsecutiveErrorCount++
		fail(KindQuoteFailed, bot.ID, tickID, "buy_quote", err)
		return
	}

	pos.Status = botmodel.StatusBuying
	receipt, err := c.submit(ctx, bot, quote)
	if err != nil || receipt == nil || !receipt.Success {
		pos.Status = botmodel.StatusEmpty
		bot.ConsecutiveErrorCount++
		fail(KindSubmitFailed, bot.ID, tickID, "buy_submit", err)
		c.notify(Event{Kind: EventError, BotID: bot.ID, BotName: bot.Name, Message: "buy transaction failed", Fields: map[string]string{"positionId": itoa(pos.ID)}})
		return
	}

	gasCost := new(big.Int).Mul(big.NewInt(int64(receipt.GasUsed)), receipt.GasPrice)
	ethCost := new(big.Int).Add(buyAmountWei, gasCost)

	pos.BuyTxHash = receipt.TxHash.Hex()
	pos.BuyTimestamp = time.Now()
	pos.TokensReceived = quote.BuyAmount
	pos.EthCost = ethCost
	pos.Status = botmodel.StatusHolding

	bot.TotalBuys++
	bot.LastTradeAt = pos.BuyTimestamp

	rec := botmodel.TradeRecord{
		BotID: bot.ID, BotName: bot.Name, TokenSymbol: bot.TokenSymbol, TokenAddress: bot.TokenAddress,
		Action: botmodel.ActionBuy, Amount: quote.BuyAmount, Price: bot.CurrentPrice,
		EthValue: buyAmountWei, GasCost: gasCost, PositionID: pos.ID, TxHash: pos.BuyTxHash, Timestamp: pos.BuyTimestamp,
	}
	c.Ledger.Record(rec)
	metrics.TradesTotal.WithLabelValues(bot.ID, "buy").Inc()
	c.notify(Event{Kind: EventTrade, BotID: bot.ID, BotName: bot.Name, Message: "position bought", Fields: map[string]string{"positionId": itoa(pos.ID)}})
}

// isProfitable resolves spec.md §8's open question in favor of cost-basis:
// a sell is only taken if the quoted proceeds clear ethCostBasis by at
// least minProfitPercent.
func isProfitable(proceedsWei, ethCostBasisWei *big.Int, minProfitPercent decimal.Decimal) bool {
	if ethCostBasisWei == nil || ethCostBasisWei.Sign() == 0 {
		return true
	}
	proceeds := weiToEth(proceedsWei)
	cost := weiToEth(ethCostBasisWei)
	minProceeds := cost.Mul(decimal.NewFromInt(1).Add(minProfitPercent.Div(decimal.NewFromInt(100))))
	return proceeds.GreaterThanOrEqual(minProceeds)
}

func percentOf(profitWei, costWei *big.Int) decimal.Decimal {
	cost := weiToEth(costWei)
	if !cost.IsPositive() {
		return decimal.Zero
	}
	return weiToEth(profitWei).Div(cost).Mul(decimal.NewFromInt(100))
}

// applyMoonBag retains moonBagPercent of amount as untracked residue,
// per spec.md §8's resolved open question (retained, not re-entered into
// the grid).
func applyMoonBag(amount *big.Int, moonBagPercent decimal.Decimal) *big.Int {
	keep := decimal.NewFromBigInt(amount, 0).Mul(decimal.NewFromInt(1).Sub(moonBagPercent.Div(decimal.NewFromInt(100))))
	out, _ := new(big.Int).SetString(keep.StringFixed(0), 10)
	if out == nil {
		return amount
	}
	return out
}
