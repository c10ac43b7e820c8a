package gridmodel

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polybot/internal/botmodel"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func seedConfig() botmodel.GridConfig {
	return botmodel.GridConfig{
		NumPositions:       5,
		FloorPrice:         d("0.001"),
		CeilingPrice:       d("0.002"),
		TakeProfitPercent:  d("10"),
		MaxActivePositions: 5,
	}
}

func TestGenerateGrid_SeedScenario1(t *testing.T) {
	positions, err := GenerateGrid(seedConfig())
	require.NoError(t, err)
	require.Len(t, positions, 5)

	wantBuckets := []struct{ min, max, sell string }{
		{"0.001", "0.0012", "0.00132"},
		{"0.0012", "0.0014", "0.00154"},
		{"0.0014", "0.0016", "0.00176"},
		{"0.0016", "0.0018", "0.00198"},
		{"0.0018", "0.002", "0.0022"},
	}

	for i, want := range wantBuckets {
		assert.True(t, positions[i].BuyMin.Equal(d(want.min)), "bucket %d buyMin", i)
		assert.True(t, positions[i].BuyMax.Equal(d(want.max)), "bucket %d buyMax", i)
		assert.True(t, positions[i].SellPrice.Equal(d(want.sell)), "bucket %d sellPrice got %s want %s", i, positions[i].SellPrice, want.sell)
		assert.Equal(t, botmodel.StatusEmpty, positions[i].Status)
	}
}

func TestGenerateGrid_BoundaryConditions(t *testing.T) {
	positions, err := GenerateGrid(seedConfig())
	require.NoError(t, err)

	assert.True(t, positions[0].BuyMin.Equal(seedConfig().FloorPrice))
	assert.True(t, positions[len(positions)-1].BuyMax.Equal(seedConfig().CeilingPrice))

	for i := 0; i < len(positions)-1; i++ {
		assert.True(t, positions[i].BuyMax.Equal(positions[i+1].BuyMin), "bucket %d touches bucket %d", i, i+1)
	}
}

func TestGenerateGrid_SinglePosition(t *testing.T) {
	cfg := seedConfig()
	cfg.NumPositions = 1
	positions, err := GenerateGrid(cfg)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].BuyMin.Equal(cfg.FloorPrice))
	assert.True(t, positions[0].BuyMax.Equal(cfg.CeilingPrice))
}

func TestGenerateGrid_InvalidConfig(t *testing.T) {
	cases := []botmodel.GridConfig{
		{NumPositions: 0, FloorPrice: d("1"), CeilingPrice: d("2"), TakeProfitPercent: d("1")},
		{NumPositions: 1, FloorPrice: d("0"), CeilingPrice: d("2"), TakeProfitPercent: d("1")},
		{NumPositions: 1, FloorPrice: d("2"), CeilingPrice: d("2"), TakeProfitPercent: d("1")},
		{NumPositions: 1, FloorPrice: d("1"), CeilingPrice: d("2"), TakeProfitPercent: d("0")},
	}
	for _, c := range cases {
		_, err := GenerateGrid(c)
		assert.ErrorIs(t, err, ErrInvalidGrid)
	}
}

func TestFindBuyPosition_PriceAtBoundaries(t *testing.T) {
	cfg := seedConfig()
	positions, err := GenerateGrid(cfg)
	require.NoError(t, err)

	idx := FindBuyPosition(positions, cfg.FloorPrice, decimal.Zero)
	assert.Equal(t, 0, idx)

	idx = FindBuyPosition(positions, cfg.CeilingPrice, decimal.Zero)
	assert.Equal(t, len(positions)-1, idx)

	idx = FindBuyPosition(positions, d("0.00105"), decimal.Zero)
	assert.Equal(t, 0, idx)
}

func TestFindBuyPosition_SkipsNonEmpty(t *testing.T) {
	positions, err := GenerateGrid(seedConfig())
	require.NoError(t, err)
	positions[0].Status = botmodel.StatusHolding

	idx := FindBuyPosition(positions, d("0.00105"), decimal.Zero)
	assert.Equal(t, -1, idx, "occupied bucket must not match even though price falls in range")
}

func TestFindSellPositions_OrderedAscendingBySellPrice(t *testing.T) {
	positions, err := GenerateGrid(seedConfig())
	require.NoError(t, err)
	positions[3].Status = botmodel.StatusHolding
	positions[1].Status = botmodel.StatusHolding

	idxs := FindSellPositions(positions, d("0.002"))
	require.Len(t, idxs, 2)
	assert.Equal(t, 1, idxs[0])
	assert.Equal(t, 3, idxs[1])
}

func TestCountActivePositions(t *testing.T) {
	positions, err := GenerateGrid(seedConfig())
	require.NoError(t, err)
	positions[0].Status = botmodel.StatusBuying
	positions[1].Status = botmodel.StatusHolding
	positions[2].Status = botmodel.StatusSelling
	positions[3].Status = botmodel.StatusSold

	assert.Equal(t, 3, CountActivePositions(positions))
}

func TestCalculateGridStats(t *testing.T) {
	positions, err := GenerateGrid(seedConfig())
	require.NoError(t, err)
	positions[0].Status = botmodel.StatusHolding
	positions[1].Status = botmodel.StatusSold

	stats := CalculateGridStats(positions)
	assert.Equal(t, 3, stats.Empty)
	assert.Equal(t, 1, stats.Holding)
	assert.Equal(t, 1, stats.Sold)
	assert.InDelta(t, 0.2, stats.Occupancy, 1e-9)
}

func TestCalculatePositionSize_RemainderOnFirstBucket(t *testing.T) {
	total := big.NewInt(103)
	first := CalculatePositionSize(total, 5, 0)
	other := CalculatePositionSize(total, 5, 1)

	assert.Equal(t, big.NewInt(23), first) // 20 + remainder 3
	assert.Equal(t, big.NewInt(20), other)
}
