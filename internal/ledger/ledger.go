// Package ledger is the authoritative trade accounting service: an
// append-only list of botmodel.TradeRecord plus the aggregation,
// leaderboard, trend, and CSV-export operations of spec.md §4.3.
package ledger

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
)

// Ledger holds the append-only trade log in memory; internal/store
// persists it, internal/ledgerdb mirrors it into SQL for ad-hoc querying.
type Ledger struct {
	mu     sync.RWMutex
	trades []botmodel.TradeRecord

	// OnRecord, if set, fires after every successful Record call — the
	// hook cmd/gridbot uses to mirror trades into internal/ledgerdb
	// without the ledger needing to know SQL exists.
	OnRecord func(botmodel.TradeRecord)
}

// New constructs an empty ledger, or one pre-seeded from a persisted trade
// log (startup recovery).
func New(seed []botmodel.TradeRecord) *Ledger {
	trades := make([]botmodel.TradeRecord, len(seed))
	copy(trades, seed)
	return &Ledger{trades: trades}
}

// Record appends a trade. It never fails on a duplicate tx hash — spec.md
// §4.3 makes at-most-one-record-per-trade the caller's (the position state
// machine's) responsibility, not the ledger's.
func (l *Ledger) Record(trade botmodel.TradeRecord) {
	l.mu.Lock()
	l.trades = append(l.trades, trade)
	hook := l.OnRecord
	l.mu.Unlock()

	if hook != nil {
		hook(trade)
	}
}

// All returns every recorded trade, oldest first.
func (l *Ledger) All() []botmodel.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]botmodel.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// ByBot returns trades for one bot, optionally bounded by [since, until].
func (l *Ledger) ByBot(botID string, since, until *time.Time) []botmodel.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []botmodel.TradeRecord
	for _, t := range l.trades {
		if t.BotID != botID {
			continue
		}
		if since != nil && t.Timestamp.Before(*since) {
			continue
		}
		if until != nil && t.Timestamp.After(*until) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ByToken returns every trade for a given token address, across all bots.
func (l *Ledger) ByToken(tokenAddress string) []botmodel.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []botmodel.TradeRecord
	for _, t := range l.trades {
		if t.TokenAddress == tokenAddress {
			out = append(out, t)
		}
	}
	return out
}

// Aggregate is the per-bot performance summary of spec.md §4.3.
type Aggregate struct {
	TotalTrades   int
	Buys          int
	Sells         int
	WinningTrades int
	LosingTrades  int
	WinRate       decimal.Decimal
	GrossProfit   decimal.Decimal
	GrossLoss     decimal.Decimal
	ProfitFactor  decimal.Decimal
	Expectancy    decimal.Decimal
	AvgHoldTime   time.Duration
}

// Aggregate computes spec.md §4.3's aggregate(botId) summary.
func (l *Ledger) Aggregate(botID string) Aggregate {
	trades := l.ByBot(botID, nil, nil)

	var agg Aggregate
	var totalHold time.Duration
	var holdSamples int
	var sumWin, sumLoss decimal.Decimal
	var buyTimestamps = map[int]time.Time{}

	for _, t := range trades {
		agg.TotalTrades++
		switch t.Action {
		case botmodel.ActionBuy:
			agg.Buys++
			buyTimestamps[t.PositionID] = t.Timestamp
		case botmodel.ActionSell:
			agg.Sells++
			if buyAt, ok := buyTimestamps[t.PositionID]; ok {
				totalHold += t.Timestamp.Sub(buyAt)
				holdSamples++
			}
			if t.ProfitPercent.IsPositive() {
				agg.WinningTrades++
				sumWin = sumWin.Add(t.ProfitPercent)
			} else if t.ProfitPercent.IsNegative() {
				agg.LosingTrades++
				sumLoss = sumLoss.Add(t.ProfitPercent.Abs())
			}
			if t.Profit != nil {
				profitEth := weiToEth(t.Profit)
				if profitEth.IsPositive() {
					agg.GrossProfit = agg.GrossProfit.Add(profitEth)
				} else {
					agg.GrossLoss = agg.GrossLoss.Add(profitEth.Abs())
				}
			}
		}
	}

	closedTrades := agg.WinningTrades + agg.LosingTrades
	if closedTrades > 0 {
		agg.WinRate = decimal.NewFromInt(int64(agg.WinningTrades)).Div(decimal.NewFromInt(int64(closedTrades)))
	}

	one := decimal.NewFromInt(1)
	floor := decimal.NewFromInt(1)
	denom := agg.GrossLoss
	if denom.LessThan(floor) {
		denom = floor
	}
	agg.ProfitFactor = agg.GrossProfit.Div(denom)

	avgWin := decimal.Zero
	if agg.WinningTrades > 0 {
		avgWin = sumWin.Div(decimal.NewFromInt(int64(agg.WinningTrades)))
	}
	avgLoss := decimal.Zero
	if agg.LosingTrades > 0 {
		avgLoss = sumLoss.Div(decimal.NewFromInt(int64(agg.LosingTrades)))
	}
	if closedTrades > 0 {
		agg.Expectancy = agg.WinRate.Mul(avgWin).Sub(one.Sub(agg.WinRate).Mul(avgLoss))
	}

	if holdSamples > 0 {
		agg.AvgHoldTime = totalHold / time.Duration(holdSamples)
	}

	return agg
}

// LeaderboardEntry is one bot's ranked standing, per spec.md §4.3.
type LeaderboardEntry struct {
	BotID           string
	Aggregate       Aggregate
	ProfitRank      int
	WinRateRank     int
	EfficiencyRank  int
	OverallRank     int
}

// Leaderboard ranks every bot that has at least one trade by profit, win
// rate, and profit-factor ("efficiency"), then an overall rank as the
// rounded mean of the three, per spec.md §4.3.
func (l *Ledger) Leaderboard() []LeaderboardEntry {
	botIDs := l.distinctBotIDs()
	entries := make([]LeaderboardEntry, len(botIDs))
	for i, id := range botIDs {
		entries[i] = LeaderboardEntry{BotID: id, Aggregate: l.Aggregate(id)}
	}

	rankBy(entries, func(e LeaderboardEntry) decimal.Decimal {
		return e.Aggregate.GrossProfit.Sub(e.Aggregate.GrossLoss)
	}, func(e *LeaderboardEntry, rank int) { e.ProfitRank = rank })

	rankBy(entries, func(e LeaderboardEntry) decimal.Decimal { return e.Aggregate.WinRate }, func(e *LeaderboardEntry, rank int) { e.WinRateRank = rank })
	rankBy(entries, func(e LeaderboardEntry) decimal.Decimal { return e.Aggregate.ProfitFactor }, func(e *LeaderboardEntry, rank int) { e.EfficiencyRank = rank })

	for i := range entries {
		mean := float64(entries[i].ProfitRank+entries[i].WinRateRank+entries[i].EfficiencyRank) / 3
		entries[i].OverallRank = int(mean + 0.5)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].OverallRank < entries[j].OverallRank })
	return entries
}

func (l *Ledger) distinctBotIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := map[string]bool{}
	var ids []string
	for _, t := range l.trades {
		if !seen[t.BotID] {
			seen[t.BotID] = true
			ids = append(ids, t.BotID)
		}
	}
	sort.Strings(ids)
	return ids
}

// rankBy assigns a 1-based rank (1 = best, ties broken by bot ID order)
// for the metric returned by score, descending.
func rankBy(entries []LeaderboardEntry, score func(LeaderboardEntry) decimal.Decimal, assign func(*LeaderboardEntry, int)) {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return score(entries[idx[a]]).GreaterThan(score(entries[idx[b]]))
	})
	for rank, i := range idx {
		assign(&entries[i], rank+1)
	}
}

// TrendPoint is one day's activity for a bot, per spec.md §4.3's trend().
type TrendPoint struct {
	Date   string
	Profit decimal.Decimal
	Trades int
}

// Trend buckets a bot's trades into daily profit/trade-count points over
// the trailing `days` window.
func (l *Ledger) Trend(botID string, days int) []TrendPoint {
	since := time.Now().UTC().AddDate(0, 0, -days)
	trades := l.ByBot(botID, &since, nil)

	byDate := map[string]*TrendPoint{}
	var order []string
	for _, t := range trades {
		date := t.Timestamp.UTC().Format("2006-01-02")
		p, ok := byDate[date]
		if !ok {
			p = &TrendPoint{Date: date}
			byDate[date] = p
			order = append(order, date)
		}
		p.Trades++
		if t.Profit != nil {
			p.Profit = p.Profit.Add(weiToEth(t.Profit))
		}
	}

	sort.Strings(order)
	out := make([]TrendPoint, len(order))
	for i, date := range order {
		out[i] = *byDate[date]
	}
	return out
}

// weiDecimals is the conversion exponent for the native 18-decimal EVM asset.
const weiDecimals = 18

func weiToEth(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Shift(-weiDecimals)
}
