// Package gridmodel implements the pure, stateless grid calculator: grid
// generation, bucket lookup, and summary statistics. Nothing in this
// package performs I/O or holds mutable state across calls.
package gridmodel

import (
	"errors"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
)

// ErrInvalidGrid is returned by GenerateGrid when the configuration cannot
// produce a valid partition of [floor, ceiling].
var ErrInvalidGrid = errors.New("invalid grid configuration")

var hundred = decimal.NewFromInt(100)

// GenerateGrid divides [floor, ceiling] into config.NumPositions contiguous
// price buckets and computes each bucket's sell and stop-loss price.
func GenerateGrid(config botmodel.GridConfig) ([]botmodel.Position, error) {
	if config.NumPositions < 1 {
		return nil, ErrInvalidGrid
	}
	if config.FloorPrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidGrid
	}
	if config.CeilingPrice.LessThanOrEqual(config.FloorPrice) {
		return nil, ErrInvalidGrid
	}
	if config.TakeProfitPercent.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidGrid
	}

	n := int64(config.NumPositions)
	width := config.CeilingPrice.Sub(config.FloorPrice)
	step := width.Div(decimal.NewFromInt(n))

	positions := make([]botmodel.Position, config.NumPositions)
	for i := 0; i < config.NumPositions; i++ {
		idx := decimal.NewFromInt(int64(i))
		buyMin := config.FloorPrice.Add(idx.Mul(step))
		var buyMax decimal.Decimal
		if i == config.NumPositions-1 {
			// Last bucket closes exactly on the ceiling, regardless of
			// any floating rounding accrued by repeated addition.
			buyMax = config.CeilingPrice
		} else {
			buyMax = config.FloorPrice.Add(idx.Add(decimal.NewFromInt(1)).Mul(step))
		}

		sellPrice := buyMax.Mul(decimal.NewFromInt(1).Add(config.TakeProfitPercent.Div(hundred)))

		stopLoss := decimal.Zero
		if config.StopLossEnabled {
			stopLoss = buyMin.Mul(decimal.NewFromInt(1).Sub(config.StopLossPercent.Div(hundred)))
		}

		positions[i] = botmodel.Position{
			ID:            i,
			BuyMin:        buyMin,
			BuyMax:        buyMax,
			SellPrice:     sellPrice,
			StopLossPrice: stopLoss,
			Status:        botmodel.StatusEmpty,
		}
	}

	return positions, nil
}

// FindBuyPosition returns the unique EMPTY position whose [buyMin, buyMax]
// range contains price, widened by tolerance (a fraction of bucket width).
// Ties (overlapping ranges from a nonzero tolerance) resolve to the lowest
// index. Returns -1 when no position matches.
func FindBuyPosition(positions []botmodel.Position, price decimal.Decimal, tolerance decimal.Decimal) int {
	for i := range positions {
		p := &positions[i]
		if p.Status != botmodel.StatusEmpty {
			continue
		}
		width := p.BuyMax.Sub(p.BuyMin)
		pad := width.Mul(tolerance)
		lo := p.BuyMin.Sub(pad)
		hi := p.BuyMax.Add(pad)
		if price.GreaterThanOrEqual(lo) && price.LessThanOrEqual(hi) {
			return i
		}
	}
	return -1
}

// FindSellPositions returns the indices of HOLDING positions whose sell
// target has been reached, ordered by ascending sellPrice (oldest-worst
// first, so liquidation order is deterministic).
func FindSellPositions(positions []botmodel.Position, price decimal.Decimal) []int {
	var candidates []int
	for i := range positions {
		p := &positions[i]
		if p.Status != botmodel.StatusHolding {
			continue
		}
		if price.GreaterThanOrEqual(p.SellPrice) {
			candidates = append(candidates, i)
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		return positions[candidates[a]].SellPrice.LessThan(positions[candidates[b]].SellPrice)
	})
	return candidates
}

// CountActivePositions returns the count of positions in BUYING, HOLDING,
// or SELLING across the grid.
func CountActivePositions(positions []botmodel.Position) int {
	n := 0
	for i := range positions {
		if positions[i].IsActive() {
			n++
		}
	}
	return n
}

// GridStats summarizes the current occupancy of a grid.
type GridStats struct {
	Empty      int
	Holding    int
	Sold       int
	Buying     int
	Selling    int
	Total      int
	Occupancy  float64 // fraction of non-empty, non-sold positions
}

// CalculateGridStats tallies position counts by status.
func CalculateGridStats(positions []botmodel.Position) GridStats {
	stats := GridStats{Total: len(positions)}
	for i := range positions {
		switch positions[i].Status {
		case botmodel.StatusEmpty:
			stats.Empty++
		case botmodel.StatusHolding:
			stats.Holding++
		case botmodel.StatusSold:
			stats.Sold++
		case botmodel.StatusBuying:
			stats.Buying++
		case botmodel.StatusSelling:
			stats.Selling++
		}
	}
	active := stats.Buying + stats.Holding + stats.Selling
	if stats.Total > 0 {
		stats.Occupancy = float64(active) / float64(stats.Total)
	}
	return stats
}

// CalculatePositionSize divides totalWei evenly across numPositions buckets
// using integer division; any remainder is retained on the first bucket.
// Most callers only need the common per-bucket size (bucketIndex != 0);
// pass bucketIndex 0 to get the first bucket's size including remainder.
func CalculatePositionSize(totalWei *big.Int, numPositions int, bucketIndex int) *big.Int {
	if numPositions <= 0 || totalWei == nil {
		return big.NewInt(0)
	}
	n := big.NewInt(int64(numPositions))
	quotient := new(big.Int).Div(totalWei, n)
	if bucketIndex != 0 {
		return quotient
	}
	remainder := new(big.Int).Mod(totalWei, n)
	return new(big.Int).Add(quotient, remainder)
}
