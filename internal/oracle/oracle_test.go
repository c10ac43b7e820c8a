package oracle

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polybot/internal/botmodel"
)

func TestCombine_AgreeingSourcesAverage(t *testing.T) {
	now := time.Now()
	cl := sourceResult{
		data:       botmodel.PriceData{Price: decimalFromString(t, "1.00"), Source: botmodel.SourceChainlink, Timestamp: now},
		confidence: 0.9,
	}
	uni := sourceResult{
		data:       botmodel.PriceData{Price: decimalFromString(t, "1.02"), Source: botmodel.SourceUniswapV3, Timestamp: now},
		confidence: 0.8,
	}

	result, err := combine(cl, uni, common.HexToAddress("0xToken"))
	require.NoError(t, err)
	assert.Equal(t, botmodel.SourceCombined, result.Source)
	assert.True(t, result.Price.Equal(decimalFromString(t, "1.01")))
	assert.InDelta(t, 0.95, result.Confidence, 1e-9) // min(1, 0.85+0.1)
}

func TestCombine_DisagreementPicksHigherConfidencePenalized(t *testing.T) {
	cl := sourceResult{
		data:       botmodel.PriceData{Price: decimalFromString(t, "1.00"), Source: botmodel.SourceChainlink},
		confidence: 0.9,
	}
	uni := sourceResult{
		data:       botmodel.PriceData{Price: decimalFromString(t, "1.20"), Source: botmodel.SourceUniswapV3},
		confidence: 0.6,
	}

	result, err := combine(cl, uni, common.HexToAddress("0xToken"))
	require.NoError(t, err)
	assert.Equal(t, botmodel.SourceChainlink, result.Source)
	assert.InDelta(t, 0.7, result.Confidence, 1e-9) // 0.9 - 0.2
}

func TestCombine_DisagreementPenaltyFloorsAtPointThree(t *testing.T) {
	cl := sourceResult{
		data:       botmodel.PriceData{Price: decimalFromString(t, "1.00"), Source: botmodel.SourceChainlink},
		confidence: 0.4,
	}
	uni := sourceResult{
		data:       botmodel.PriceData{Price: decimalFromString(t, "2.00"), Source: botmodel.SourceUniswapV3},
		confidence: 0.35,
	}

	result, err := combine(cl, uni, common.HexToAddress("0xToken"))
	require.NoError(t, err)
	assert.Equal(t, botmodel.SourceChainlink, result.Source)
	assert.InDelta(t, 0.3, result.Confidence, 1e-9)
}

func TestCombine_SingleSourcePassesThrough(t *testing.T) {
	cl := sourceResult{
		data:       botmodel.PriceData{Price: decimalFromString(t, "1.00"), Source: botmodel.SourceChainlink},
		confidence: 0.9,
	}
	uni := sourceResult{err: fmt.Errorf("no pool")}

	result, err := combine(cl, uni, common.HexToAddress("0xToken"))
	require.NoError(t, err)
	assert.Equal(t, botmodel.SourceChainlink, result.Source)
	assert.Equal(t, 0.9, result.Confidence)
}

func TestCombine_BothFail(t *testing.T) {
	cl := sourceResult{err: fmt.Errorf("rpc down")}
	uni := sourceResult{err: fmt.Errorf("no pool")}

	_, err := combine(cl, uni, common.HexToAddress("0xToken"))
	assert.Error(t, err)
}

func TestValidatePrice(t *testing.T) {
	good := &botmodel.PriceData{Price: decimalFromString(t, "1.00"), Confidence: 0.8}
	assert.NoError(t, ValidatePrice(good, 0.5))

	lowConfidence := &botmodel.PriceData{Price: decimalFromString(t, "1.00"), Confidence: 0.2}
	assert.Error(t, ValidatePrice(lowConfidence, 0.5))

	zeroPrice := &botmodel.PriceData{Price: decimalFromString(t, "0"), Confidence: 0.9}
	assert.Error(t, ValidatePrice(zeroPrice, 0.5))

	assert.Error(t, ValidatePrice(nil, 0.5))
}
