// Package riskguard implements the portfolio-wide circuit breaker: a
// singleton daily/total loss guard that refuses new buys (but never sells)
// once tripped, per spec.md §4.4.
package riskguard

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/metrics"
)

// epsilon guards the percent-loss division against a zero start value.
var epsilon = decimal.New(1, -8)

const dateLayout = "2006-01-02"

// Config holds the operator-tunable thresholds.
type Config struct {
	MaxDailyLossPercent decimal.Decimal
	MaxTotalLossPercent decimal.Decimal
	CooldownMinutes     int
	AutoResetAtMidnight bool
}

// State is the breaker's persisted snapshot.
//
// bot.TotalProfitEth is a running, never-reset cumulative figure, so the
// breaker tracks its own baselines (profit-at-reset) to derive a
// since-start-of-day and since-inception delta from it.
type State struct {
	Enabled         bool            `json:"enabled"`
	Triggered       bool            `json:"triggered"`
	TriggeredAt     time.Time       `json:"triggeredAt,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	DailyStartValue decimal.Decimal `json:"dailyStartValue"`
	DailyStartDate  string          `json:"dailyStartDate"`
	DailyStartProfit decimal.Decimal `json:"dailyStartProfit"`
	TotalStartValue decimal.Decimal `json:"totalStartValue"`
	TotalStartProfit decimal.Decimal `json:"totalStartProfit"`
	CooldownUntil   time.Time       `json:"cooldownUntil,omitempty"`
}

// CheckResult is returned by Check; Triggered reflects the state *after*
// this call, so a fresh trip and an already-tripped breaker both report true.
type CheckResult struct {
	Triggered        bool
	Reason           string
	DailyLossPercent decimal.Decimal
	TotalLossPercent decimal.Decimal
}

// CircuitBreaker is a singleton guarding all bots in a deployment.
type CircuitBreaker struct {
	mu    sync.RWMutex
	cfg   Config
	state State

	// onTrip, when set, is invoked synchronously the instant the breaker
	// trips — cmd/gridbot's start command wires this to internal/notify's
	// alert fan-out.
	onTrip func(reason string, result CheckResult)
}

// New constructs a breaker seeded with the current portfolio value as both
// the daily and the all-time baseline.
func New(cfg Config, capitalBaseline decimal.Decimal, now time.Time) *CircuitBreaker {
	return &CircuitBreaker{
		cfg: cfg,
		state: State{
			Enabled:         true,
			DailyStartValue: capitalBaseline,
			DailyStartDate:  now.Format(dateLayout),
			TotalStartValue: capitalBaseline,
		},
	}
}

// Restore rebuilds a breaker from a persisted snapshot, for startup recovery.
func Restore(cfg Config, state State) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: state}
}

// OnTrip registers a callback fired the moment the breaker trips.
func (cb *CircuitBreaker) OnTrip(fn func(reason string, result CheckResult)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = fn
}

// Snapshot returns the current persistable state.
func (cb *CircuitBreaker) Snapshot() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// cumulativeProfit sums the signed realized profit across all bots, per
// spec.md §4.4's "Σ bot.totalProfitEth" definition. TotalProfitEth never
// resets, so this is an all-time figure; daily/total deltas are derived
// against the breaker's own baselines.
func cumulativeProfit(bots []botmodel.BotInstance) decimal.Decimal {
	total := decimal.Zero
	for i := range bots {
		total = total.Add(bots[i].TotalProfitEth)
	}
	return total
}

// Check evaluates the breaker against the current bot set. Call before
// every buy attempt; a Triggered result must refuse the buy (sells remain
// permitted regardless of trip state).
func (cb *CircuitBreaker) Check(bots []botmodel.BotInstance, now time.Time) CheckResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	profit := cumulativeProfit(bots)

	today := now.Format(dateLayout)
	if cb.cfg.AutoResetAtMidnight && cb.state.DailyStartDate != today {
		cb.state.DailyStartValue = cb.state.DailyStartValue.Add(profit).Sub(cb.state.DailyStartProfit)
		cb.state.DailyStartProfit = profit
		cb.state.DailyStartDate = today
	}

	dailyValue := cb.state.DailyStartValue.Add(profit).Sub(cb.state.DailyStartProfit)
	totalValue := cb.state.TotalStartValue.Add(profit).Sub(cb.state.TotalStartProfit)

	dailyLossPct := lossPercent(cb.state.DailyStartValue, dailyValue)
	totalLossPct := lossPercent(cb.state.TotalStartValue, totalValue)

	if cb.state.Triggered {
		if !now.Before(cb.state.CooldownUntil) {
			// Cooldown elapsed: forgive the daily guard (roll its baseline
			// to the current value) but leave the all-time total baseline
			// alone — a cooldown should let daily trading resume, not erase
			// a genuine total drawdown.
			cb.resetLocked(now)
			cb.state.DailyStartValue = dailyValue
			cb.state.DailyStartProfit = profit
			dailyLossPct = decimal.Zero
		} else {
			return CheckResult{Triggered: true, Reason: cb.state.Reason, DailyLossPercent: dailyLossPct, TotalLossPercent: totalLossPct}
		}
	}

	if dailyLossPct.GreaterThan(cb.cfg.MaxDailyLossPercent) {
		cb.tripLocked("daily loss limit exceeded", now, dailyLossPct, totalLossPct)
	} else if totalLossPct.GreaterThan(cb.cfg.MaxTotalLossPercent) {
		cb.tripLocked("total loss limit exceeded", now, dailyLossPct, totalLossPct)
	}

	return CheckResult{
		Triggered:        cb.state.Triggered,
		Reason:           cb.state.Reason,
		DailyLossPercent: dailyLossPct,
		TotalLossPercent: totalLossPct,
	}
}

// lossPercent computes (start-now)/max(start,epsilon)*100, per spec.md §4.4.
func lossPercent(start, now decimal.Decimal) decimal.Decimal {
	denom := start
	if denom.LessThan(epsilon) {
		denom = epsilon
	}
	return start.Sub(now).Div(denom).Mul(decimal.NewFromInt(100))
}

func (cb *CircuitBreaker) tripLocked(reason string, now time.Time, dailyPct, totalPct decimal.Decimal) {
	cb.state.Triggered = true
	cb.state.TriggeredAt = now
	cb.state.Reason = reason
	cb.state.CooldownUntil = now.Add(time.Duration(cb.cfg.CooldownMinutes) * time.Minute)

	metrics.CircuitBreakerTrips.Inc()
	metrics.CircuitBreakerActive.Set(1)

	log.Warn().
		Str("reason", reason).
		Str("dailyLossPercent", dailyPct.StringFixed(2)).
		Str("totalLossPercent", totalPct.StringFixed(2)).
		Time("cooldownUntil", cb.state.CooldownUntil).
		Msg("circuit breaker tripped")

	if cb.onTrip != nil {
		cb.onTrip(reason, CheckResult{Triggered: true, Reason: reason, DailyLossPercent: dailyPct, TotalLossPercent: totalPct})
	}
}

func (cb *CircuitBreaker) resetLocked(now time.Time) {
	log.Info().Msg("circuit breaker cooldown elapsed, auto-reset")
	cb.state.Triggered = false
	cb.state.Reason = ""
	cb.state.CooldownUntil = time.Time{}
	metrics.CircuitBreakerActive.Set(0)
}

// ForceReset clears a trip immediately, bypassing cooldown — an operator
// escape hatch. No CLI subcommand calls it.
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Triggered = false
	cb.state.Reason = ""
	cb.state.CooldownUntil = time.Time{}
	metrics.CircuitBreakerActive.Set(0)
	log.Info().Msg("circuit breaker manually reset")
}

// IsTripped reports whether buys are currently refused.
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state.Triggered
}

// AllowBuys reports whether new buy positions may be opened.
func (cb *CircuitBreaker) AllowBuys() bool { return !cb.IsTripped() }

// AllowSells is always true: the breaker only ever guards entries.
func (cb *CircuitBreaker) AllowSells() bool { return true }
