package tradingbot

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
)

// volumeTick implements spec.md §4.5.1's VOLUME sub-mode: buy
// volumeBuyAmount repeatedly, accumulating tokens, and once
// volumeBuysPerCycle buys have landed, dump the full accumulator in one
// sell and start a new cycle. The grid and Positions are unused in this
// mode.
func (c *Controller) volumeTick(ctx context.Context, tickID string, bot *botmodel.BotInstance) {
	if bot.VolumeConfig == nil {
		fail(KindBalanceUnavailable, bot.ID, tickID, "volume_config", fmt.Errorf("volume mode bot missing volume config"))
		return
	}

	if bot.VolumeBuysInCycle >= bot.VolumeConfig.BuysPerCycle {
		c.volumeSell(ctx, tickID, bot)
		return
	}

	c.volumeBuy(ctx, tickID, bot)
}

func (c *Controller) volumeBuy(ctx context.Context, tickID string, bot *botmodel.BotInstance) {
	if c.Breaker != nil && c.Breaker.IsTripped() {
		return
	}

	buyAmountWei := bot.VolumeConfig.BuyAmount

	balance, err := c.RPC.BalanceAt(ctx, common.HexToAddress(bot.WalletAddress))
	if err != nil {
		bot.ConsecutiveErrorCount++
		fail(KindBalanceUnavailable, bot.ID, tickID, "volume_buy_balance", err)
		return
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
		fail(KindQuoteFailed, bot.ID, tickID, "volume_buy_quote", err)
		return
	}

	receipt, err := c.submit(ctx, bot, quote)
	if err != nil || receipt == nil || !receipt.Success {
		bot.ConsecutiveErrorCount++
		fail(KindSubmitFailed, bot.ID, tickID, "volume_buy_submit", err)
		c.notify(Event{Kind: EventError, BotID: bot.ID, BotName: bot.Name, Message: "volume buy transaction failed"})
		return
	}

	gasCost := new(big.Int).Mul(big.NewInt(int64(receipt.GasUsed)), receipt.GasPrice)

	if bot.VolumeAccumulatedToken == nil {
		bot.VolumeAccumulatedToken = big.NewInt(0)
	}
	bot.VolumeAccumulatedToken = new(big.Int).Add(bot.VolumeAccumulatedToken, quote.BuyAmount)
	bot.VolumeBuysInCycle++
	bot.TotalBuys++
	bot.LastTradeAt = time.Now()

	rec := botmodel.TradeRecord{
		BotID: bot.ID, BotName: bot.Name, TokenSymbol: bot.TokenSymbol, TokenAddress: bot.TokenAddress,
		Action: botmodel.ActionBuy, Amount: quote.BuyAmount, Price: bot.CurrentPrice,
		EthValue: buyAmountWei, GasCost: gasCost, PositionID: bot.VolumeCycleCount,
		TxHash: receipt.TxHash.Hex(), Timestamp: bot.LastTradeAt,
	}
	c.Ledger.Record(rec)
	c.notify(Event{Kind: EventTrade, BotID: bot.ID, BotName: bot.Name, Message: "volume buy executed", Fields: map[string]string{
		"buysInCycle": itoa(bot.VolumeBuysInCycle),
	}})
}

func (c *Controller) volumeSell(ctx context.Context, tickID string, bot *botmodel.BotInstance) {
	if bot.VolumeAccumulatedToken == nil || bot.VolumeAccumulatedToken.Sign() <= 0 {
		bot.VolumeBuysInCycle = 0
		bot.VolumeCycleCount++
		return
	}

	sellAmount := bot.VolumeAccumulatedToken
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
		fail(KindQuoteFailed, bot.ID, tickID, "volume_sell_quote", err)
		return
	}

	receipt, err := c.submit(ctx, bot, quote)
	if err != nil || receipt == nil || !receipt.Success {
		bot.ConsecutiveErrorCount++
		fail(KindSubmitFailed, bot.ID, tickID, "volume_sell_submit", err)
		c.notify(Event{Kind: EventError, BotID: bot.ID, BotName: bot.Name, Message: "volume sell transaction failed"})
		return
	}

	gasCost := new(big.Int).Mul(big.NewInt(int64(receipt.GasUsed)), receipt.GasPrice)
	ethReceived := quote.BuyAmount
	netEth := new(big.Int).Sub(ethReceived, gasCost)

	bot.TotalSells++
	bot.TotalProfitEth = bot.TotalProfitEth.Add(weiToEth(netEth))
	bot.LastTradeAt = time.Now()

	rec := botmodel.TradeRecord{
		BotID: bot.ID, BotName: bot.Name, TokenSymbol: bot.TokenSymbol, TokenAddress: bot.TokenAddress,
		Action: botmodel.ActionSell, Amount: sellAmount, Price: bot.CurrentPrice,
		EthValue: ethReceived, GasCost: gasCost, Profit: netEth, PositionID: bot.VolumeCycleCount,
		TxHash: receipt.TxHash.Hex(), Timestamp: bot.LastTradeAt,
	}
	c.Ledger.Record(rec)
	c.notify(Event{Kind: EventTrade, BotID: bot.ID, BotName: bot.Name, Message: "volume cycle dumped", Fields: map[string]string{
		"cycle": itoa(bot.VolumeCycleCount),
	}})

	bot.VolumeAccumulatedToken = big.NewInt(0)
	bot.VolumeBuysInCycle = 0
	bot.VolumeCycleCount++
}
