package ledger

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polybot/internal/botmodel"
)

func profitPercent(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func weiFromEth(eth string) *big.Int {
	d, err := decimal.NewFromString(eth)
	if err != nil {
		panic(err)
	}
	wei := d.Shift(weiDecimals)
	bi, _ := new(big.Int).SetString(wei.StringFixed(0), 10)
	return bi
}

func seedTrades() []botmodel.TradeRecord {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return []botmodel.TradeRecord{
		{BotID: "bot-1", Action: botmodel.ActionBuy, PositionID: 0, Timestamp: base},
		{BotID: "bot-1", Action: botmodel.ActionSell, PositionID: 0, Timestamp: base.Add(time.Hour), Profit: weiFromEth("0.01"), ProfitPercent: profitPercent("10")},
		{BotID: "bot-1", Action: botmodel.ActionBuy, PositionID: 1, Timestamp: base.Add(2 * time.Hour)},
		{BotID: "bot-1", Action: botmodel.ActionSell, PositionID: 1, Timestamp: base.Add(3 * time.Hour), Profit: weiFromEth("-0.02"), ProfitPercent: profitPercent("-5")},
	}
}

func TestAggregate_WinRateAndProfitFactor(t *testing.T) {
	l := New(seedTrades())
	agg := l.Aggregate("bot-1")

	assert.Equal(t, 4, agg.TotalTrades)
	assert.Equal(t, 2, agg.Buys)
	assert.Equal(t, 2, agg.Sells)
	assert.Equal(t, 1, agg.WinningTrades)
	assert.Equal(t, 1, agg.LosingTrades)
	assert.True(t, agg.WinRate.Equal(profitPercent("0.5")))
	assert.True(t, agg.GrossProfit.Equal(profitPercent("0.01")))
	assert.True(t, agg.GrossLoss.Equal(profitPercent("0.02")))
	assert.Equal(t, time.Hour, agg.AvgHoldTime)
}

func TestAggregate_ProfitFactorFloorsLossAtOne(t *testing.T) {
	trades := []botmodel.TradeRecord{
		{BotID: "bot-2", Action: botmodel.ActionBuy, PositionID: 0, Timestamp: time.Now()},
		{BotID: "bot-2", Action: botmodel.ActionSell, PositionID: 0, Timestamp: time.Now(), Profit: weiFromEth("0.5"), ProfitPercent: profitPercent("10")},
	}
	l := New(trades)
	agg := l.Aggregate("bot-2")
	assert.True(t, agg.GrossLoss.IsZero())
	assert.True(t, agg.ProfitFactor.Equal(profitPercent("0.5")), "grossProfit/max(grossLoss,1) with zero loss divides by the floor of 1")
}

func TestLeaderboard_RanksByProfitWinRateEfficiency(t *testing.T) {
	l := New(nil)
	l.Record(botmodel.TradeRecord{BotID: "winner", Action: botmodel.ActionBuy, PositionID: 0, Timestamp: time.Now()})
	l.Record(botmodel.TradeRecord{BotID: "winner", Action: botmodel.ActionSell, PositionID: 0, Timestamp: time.Now(), Profit: weiFromEth("1"), ProfitPercent: profitPercent("20")})
	l.Record(botmodel.TradeRecord{BotID: "loser", Action: botmodel.ActionBuy, PositionID: 0, Timestamp: time.Now()})
	l.Record(botmodel.TradeRecord{BotID: "loser", Action: botmodel.ActionSell, PositionID: 0, Timestamp: time.Now(), Profit: weiFromEth("-1"), ProfitPercent: profitPercent("-20")})

	board := l.Leaderboard()
	require.Len(t, board, 2)
	assert.Equal(t, "winner", board[0].BotID)
	assert.Equal(t, 1, board[0].OverallRank)
}

func TestTrend_BucketsByUTCDate(t *testing.T) {
	l := New(seedTrades())
	// The window counts back from now, so it is sized to reach the seed date.
	days := int(time.Since(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)).Hours()/24) + 2
	trend := l.Trend("bot-1", days)
	require.Len(t, trend, 1)
	assert.Equal(t, "2026-01-01", trend[0].Date)
	assert.Equal(t, 4, trend[0].Trades)
}

func TestWriteCSV_HeaderAndRowCount(t *testing.T) {
	l := New(seedTrades())
	var buf bytes.Buffer
	require.NoError(t, l.WriteCSV(&buf))

	out := buf.String()
	assert.Contains(t, out, "Date,Time,Bot Id,Bot Name,Token Symbol,Token Address,Action,Amount,Price,ETH Value,Gas Cost,Profit,Profit %,Position Id,Tx Hash")
	assert.Contains(t, out, "2026-01-01")
}

func TestByBot_FiltersByTimeRange(t *testing.T) {
	l := New(seedTrades())
	since := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	got := l.ByBot("bot-1", &since, nil)
	assert.Len(t, got, 3)
}
