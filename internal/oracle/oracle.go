// Package oracle composes a Chainlink feed reader and a Uniswap V3 TWAP
// reader into a single price(token) function with cross-validation,
// confidence scoring, and fallback, per spec.md §4.2.
package oracle

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
)

// disagreementThreshold is the cross-source deviation above which sources
// are considered to disagree, per spec.md §4.2.
const disagreementThreshold = 0.05

// Preference selects which source an Aggregator tries first.
type Preference int

const (
	PreferChainlink Preference = iota
	PreferUniswapV3
)

// ChainAddresses is the static per-chain table of well-known contract
// addresses referenced by spec.md §4.2 ("Price source addresses are
// well-known constants").
type ChainAddresses struct {
	UniswapV3Factory common.Address
	WETH             common.Address
}

// FeedInfo pairs a Chainlink aggregator proxy with its reported decimals.
type FeedInfo struct {
	Address  common.Address
	Decimals int32
}

// Aggregator is the price(token) entry point used by the trading bot.
type Aggregator struct {
	uniswap       *UniswapV3Reader
	preference    Preference
	allowFallback bool

	feedsByToken map[string]FeedInfo
}

// NewAggregator constructs an Aggregator for one chain. feedsByToken maps
// a lowercased token address to its Chainlink feed; tokens absent from the
// map fall straight to Uniswap V3 TWAP.
func NewAggregator(rpc onchain.RPCClient, addrs ChainAddresses, feedsByToken map[string]FeedInfo, pref Preference, allowFallback bool) *Aggregator {
	return &Aggregator{
		uniswap:       NewUniswapV3Reader(rpc, addrs.UniswapV3Factory, addrs.WETH),
		preference:    pref,
		allowFallback: allowFallback,
		feedsByToken:  feedsByToken,
	}
}

func (a *Aggregator) feedFor(rpc onchain.RPCClient, token common.Address) *ChainlinkReader {
	info, ok := a.feedsByToken[strings.ToLower(token.Hex())]
	if !ok {
		return nil
	}
	return NewChainlinkReader(rpc, info.Address, info.Decimals)
}

// sourceResult bundles one source's observation with its confidence.
type sourceResult struct {
	data       botmodel.PriceData
	confidence float64
	err        error
}

// GetPrice implements the public price(token) contract of spec.md §4.2.
// A nil return (with nil error) indicates "no price available" — callers
// treat it the same as an error for risk-gating purposes.
func (a *Aggregator) GetPrice(ctx context.Context, rpc onchain.RPCClient, token common.Address) (*botmodel.PriceData, error) {
	now := time.Now()

	var cl, uni sourceResult
	clReader := a.feedFor(rpc, token)

	fetchChainlink := func() {
		if clReader == nil {
			cl.err = fmt.Errorf("no chainlink feed configured for %s", token.Hex())
			return
		}
		cl.data, cl.confidence, cl.err = clReader.Read(ctx, now)
	}
	fetchUniswap := func() {
		uni.data, uni.confidence, uni.err = a.uniswap.Read(ctx, token, now)
	}

	if a.preference == PreferChainlink {
		fetchChainlink()
		if cl.err == nil || a.allowFallback {
			fetchUniswap()
		}
	} else {
		fetchUniswap()
		if uni.err == nil || a.allowFallback {
			fetchChainlink()
		}
	}

	return combine(cl, uni, token)
}

// combine applies spec.md §4.2's aggregation rule: agree within 5% ->
// combined mean; disagree -> higher-confidence source penalized 0.2 (floor
// 0.3); only one succeeds -> that one.
func combine(cl, uni sourceResult, token common.Address) (*botmodel.PriceData, error) {
	clOK := cl.err == nil
	uniOK := uni.err == nil

	switch {
	case clOK && uniOK:
		dev := deviation(cl.data.Price, uni.data.Price)
		if dev < disagreementThreshold {
			mean := cl.data.Price.Add(uni.data.Price).Div(decimal.NewFromInt(2))
			confMean := (cl.confidence + uni.confidence) / 2
			confidence := math.Min(1, confMean+0.1)
			return &botmodel.PriceData{
				Price:        mean,
				Source:       botmodel.SourceCombined,
				Confidence:   confidence,
				Timestamp:    cl.data.Timestamp,
				TokenAddress: token.Hex(),
			}, nil
		}

		// Disagreement: take the higher-confidence source, penalized.
		winner := cl
		if uni.confidence > cl.confidence {
			winner = uni
		}
		confidence := math.Max(0.3, winner.confidence-0.2)
		result := winner.data
		result.Confidence = confidence
		result.TokenAddress = token.Hex()
		log.Warn().
			Str("token", token.Hex()).
			Float64("deviation", dev).
			Str("source", string(result.Source)).
			Msg("price sources disagree")
		return &result, nil

	case clOK:
		result := cl.data
		result.Confidence = cl.confidence
		result.TokenAddress = token.Hex()
		return &result, nil

	case uniOK:
		result := uni.data
		result.Confidence = uni.confidence
		return &result, nil

	default:
		return nil, fmt.Errorf("oracle: no source succeeded (chainlink: %v, uniswap: %v)", cl.err, uni.err)
	}
}

func deviation(a, b decimal.Decimal) float64 {
	if a.IsZero() {
		return math.MaxFloat64
	}
	return a.Sub(b).Abs().Div(a).InexactFloat64()
}

// ValidatePrice implements spec.md §4.2's validatePrice contract: invalid
// when no source, confidence below threshold, price <= 0, or non-finite.
func ValidatePrice(price *botmodel.PriceData, minConfidence float64) error {
	if price == nil {
		return fmt.Errorf("oracle: no price available")
	}
	if price.Confidence < minConfidence {
		return fmt.Errorf("oracle: confidence %.2f below minimum %.2f", price.Confidence, minConfidence)
	}
	if !price.Price.IsPositive() {
		return fmt.Errorf("oracle: non-positive price")
	}
	f, _ := price.Price.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("oracle: non-finite price")
	}
	return nil
}
