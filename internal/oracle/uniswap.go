package oracle

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
)

// Well-known Uniswap V3 function selectors.
const (
	selectorGetPool  = "1698ee82" // getPool(address,address,uint24)
	selectorSlot0    = "3850c7bd" // slot0()
	selectorObserve  = "883bdbfd" // observe(uint32[])
	selectorToken0   = "0dfe1681" // token0()
	selectorToken1   = "d21220a7" // token1()
	selectorDecimals = "313ce567" // decimals()
)

// FeeTiers enumerates the standard Uniswap V3 pool fee tiers, checked in
// order when selecting the deepest pool for a pair.
var FeeTiers = []uint32{100, 500, 3000, 10000}

// DefaultTWAPWindow is the default observation window, per spec.md §4.2.
const DefaultTWAPWindow = 1800 * time.Second

// UniswapV3Reader computes a TWAP price from a pool's cumulative-tick
// observations and cross-checks it against current spot.
type UniswapV3Reader struct {
	rpc     onchain.RPCClient
	factory common.Address
	weth    common.Address
	window  time.Duration
}

// NewUniswapV3Reader constructs a TWAP reader for the given chain's
// factory and WETH address.
func NewUniswapV3Reader(rpc onchain.RPCClient, factory, weth common.Address) *UniswapV3Reader {
	return &UniswapV3Reader{rpc: rpc, factory: factory, weth: weth, window: DefaultTWAPWindow}
}

// SetWindow overrides the TWAP observation window.
func (u *UniswapV3Reader) SetWindow(d time.Duration) { u.window = d }

// BestPool enumerates the standard fee tiers and returns the address of
// the pool with the highest liquidity, or the zero address if none exist.
func (u *UniswapV3Reader) BestPool(ctx context.Context, token common.Address) (common.Address, error) {
	var best common.Address
	var bestLiquidity *big.Int

	for _, fee := range FeeTiers {
		pool, err := u.getPool(ctx, token, fee)
		if err != nil || pool == (common.Address{}) {
			continue
		}
		liquidity, err := u.liquidity(ctx, pool)
		if err != nil {
			continue
		}
		if bestLiquidity == nil || liquidity.Cmp(bestLiquidity) > 0 {
			best = pool
			bestLiquidity = liquidity
		}
	}

	if bestLiquidity == nil {
		return common.Address{}, nil
	}
	return best, nil
}

// Read computes a TWAP price for token (denominated in WETH) from the
// deepest available pool, scoring confidence against current spot.
func (u *UniswapV3Reader) Read(ctx context.Context, token common.Address, now time.Time) (botmodel.PriceData, float64, error) {
	pool, err := u.BestPool(ctx, token)
	if err != nil {
		return botmodel.PriceData{}, 0, err
	}
	if pool == (common.Address{}) {
		return botmodel.PriceData{}, 0, fmt.Errorf("uniswap v3: no pool for token %s", token.Hex())
	}

	dec0, dec1, err := u.poolDecimals(ctx, pool)
	if err != nil {
		return botmodel.PriceData{}, 0, err
	}

	spotSqrtP, err := u.slot0SqrtPrice(ctx, pool)
	if err != nil {
		return botmodel.PriceData{}, 0, err
	}
	spotPrice := sqrtPriceX96ToPrice(spotSqrtP, dec0, dec1)

	secondsAgo := uint32(u.window.Seconds())
	tick, actualWindow, err := u.twapTick(ctx, pool, secondsAgo)
	if err != nil {
		return botmodel.PriceData{}, 0, err
	}
	twapPrice := tickToPrice(tick, dec0, dec1)

	confidence := twapConfidence(twapPrice, spotPrice, actualWindow)

	return botmodel.PriceData{
		Price:        twapPrice,
		Source:       botmodel.SourceUniswapV3,
		Timestamp:    now,
		TokenAddress: token.Hex(),
	}, confidence, nil
}

// twapConfidence scores a TWAP observation per spec.md §4.2: start at 1.0,
// reduce by deviation from spot, then apply a short-window penalty.
func twapConfidence(twap, spot decimal.Decimal, window time.Duration) float64 {
	confidence := 1.0
	if spot.IsPositive() {
		dev := twap.Sub(spot).Abs().Div(spot).InexactFloat64()
		switch {
		case dev > 0.10:
			confidence *= 0.5
		case dev > 0.05:
			confidence *= 0.7
		case dev > 0.02:
			confidence *= 0.9
		}
	}
	if window < 300*time.Second {
		confidence *= 0.8
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// sqrtPriceX96ToPrice converts a pool's Q64.96 sqrt price into a decimal
// price adjusted for token decimals: price = (sqrtPriceX96/2^96)^2 * 10^(dec1-dec0).
func sqrtPriceX96ToPrice(sqrtPriceX96 *big.Int, dec0, dec1 int32) decimal.Decimal {
	q96 := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	sp := new(big.Float).SetInt(sqrtPriceX96)
	ratio := new(big.Float).Quo(sp, q96)
	ratio.Mul(ratio, ratio)

	f, _ := ratio.Float64()
	price := decimal.NewFromFloat(f)
	adj := decimal.New(1, 0)
	diff := dec1 - dec0
	if diff != 0 {
		adj = decimal.NewFromFloat(math.Pow(10, float64(diff)))
	}
	return price.Mul(adj)
}

// tickToPrice converts a mean tick into a decimal price via 1.0001^tick,
// adjusted for token decimals.
func tickToPrice(tick float64, dec0, dec1 int32) decimal.Decimal {
	price := math.Pow(1.0001, tick)
	diff := dec1 - dec0
	if diff != 0 {
		price *= math.Pow(10, float64(diff))
	}
	return decimal.NewFromFloat(price)
}

func (u *UniswapV3Reader) getPool(ctx context.Context, token common.Address, fee uint32) (common.Address, error) {
	data := buildCalldata(selectorGetPool,
		leftPad32(u.weth.Bytes()),
		leftPad32(token.Bytes()),
		leftPad32(big.NewInt(int64(fee)).Bytes()),
	)
	result, err := u.rpc.Call(ctx, u.factory, data)
	if err != nil {
		return common.Address{}, err
	}
	if len(result) < 32 {
		return common.Address{}, nil
	}
	return common.BytesToAddress(result[12:32]), nil
}

func (u *UniswapV3Reader) liquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	data := buildCalldata("1a686502")
	result, err := u.rpc.Call(ctx, pool, data)
	if err != nil || len(result) < 32 {
		return nil, err
	}
	return new(big.Int).SetBytes(result[0:32]), nil
}

func (u *UniswapV3Reader) poolDecimals(ctx context.Context, pool common.Address) (int32, int32, error) {
	t0Data, err := u.rpc.Call(ctx, pool, buildCalldata(selectorToken0))
	if err != nil || len(t0Data) < 32 {
		return 0, 0, fmt.Errorf("uniswap v3: token0 lookup failed: %w", err)
	}
	t1Data, err := u.rpc.Call(ctx, pool, buildCalldata(selectorToken1))
	if err != nil || len(t1Data) < 32 {
		return 0, 0, fmt.Errorf("uniswap v3: token1 lookup failed: %w", err)
	}
	token0 := common.BytesToAddress(t0Data[12:32])
	token1 := common.BytesToAddress(t1Data[12:32])

	d0, err := u.erc20Decimals(ctx, token0)
	if err != nil {
		return 0, 0, err
	}
	d1, err := u.erc20Decimals(ctx, token1)
	if err != nil {
		return 0, 0, err
	}
	return d0, d1, nil
}

func (u *UniswapV3Reader) erc20Decimals(ctx context.Context, token common.Address) (int32, error) {
	result, err := u.rpc.Call(ctx, token, buildCalldata(selectorDecimals))
	if err != nil || len(result) < 32 {
		return 18, nil // ERC-20 without decimals() is rare; default matches WETH.
	}
	return int32(new(big.Int).SetBytes(result).Int64()), nil
}

func (u *UniswapV3Reader) slot0SqrtPrice(ctx context.Context, pool common.Address) (*big.Int, error) {
	result, err := u.rpc.Call(ctx, pool, buildCalldata(selectorSlot0))
	if err != nil {
		return nil, err
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("uniswap v3: slot0 response too short")
	}
	return new(big.Int).SetBytes(result[0:32]), nil
}

// twapTick computes the mean tick over the requested window from the
// pool's cumulative tick observations, returning the requested window; it
// does not check whether the pool has that much observation history.
func (u *UniswapV3Reader) twapTick(ctx context.Context, pool common.Address, secondsAgo uint32) (float64, time.Duration, error) {
	data := buildCalldata(selectorObserve,
		leftPad32(big.NewInt(32).Bytes()), // offset to dynamic array
		leftPad32(big.NewInt(2).Bytes()),  // array length
		leftPad32(big.NewInt(int64(secondsAgo)).Bytes()),
		leftPad32(big.NewInt(0).Bytes()),
	)
	result, err := u.rpc.Call(ctx, pool, data)
	if err != nil {
		return 0, 0, fmt.Errorf("uniswap v3 observe: %w", err)
	}
	if len(result) < 32 {
		return 0, 0, fmt.Errorf("uniswap v3 observe: response too short")
	}
	// observe() returns two dynamic arrays; word 0 is the offset of the
	// tickCumulatives array, whose length word is followed by its values.
	off := new(big.Int).SetBytes(result[0:32])
	if !off.IsInt64() || off.Int64() < 0 || off.Int64()+96 > int64(len(result)) {
		return 0, 0, fmt.Errorf("uniswap v3 observe: response too short")
	}
	o := int(off.Int64())
	toSigned := func(w []byte) *big.Int {
		v := new(big.Int).SetBytes(w)
		if v.Bit(255) == 1 {
			v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
		}
		return v
	}
	tickCumBefore := toSigned(result[o+32 : o+64])
	tickCumNow := toSigned(result[o+64 : o+96])

	delta := new(big.Int).Sub(tickCumNow, tickCumBefore)
	meanTick := new(big.Float).Quo(new(big.Float).SetInt(delta), big.NewFloat(float64(secondsAgo)))
	tick, _ := meanTick.Float64()

	log.Debug().Float64("tick", tick).Uint32("secondsAgo", secondsAgo).Msg("uniswap v3 twap tick computed")

	return tick, time.Duration(secondsAgo) * time.Second, nil
}

func buildCalldata(selector string, args ...[]byte) []byte {
	data := common.FromHex("0x" + selector)
	for _, a := range args {
		data = append(data, a...)
	}
	return data
}

func leftPad32(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}
