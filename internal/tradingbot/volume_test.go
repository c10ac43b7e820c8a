package tradingbot

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
)

func volumeBot() *botmodel.BotInstance {
	return &botmodel.BotInstance{
		ID:            "vol-1",
		Name:          "volume-bot",
		TokenAddress:  "0x0000000000000000000000000000000000dEaD",
		WalletAddress: "0x00000000000000000000000000000000000001",
		Mode:          botmodel.ModeVolume,
		VolumeConfig: &botmodel.VolumeConfig{
			BuysPerCycle: 2,
			BuyAmount:    big.NewInt(1e17),
		},
		Enabled:   true,
		IsRunning: true,
	}
}

func TestVolumeTick_AccumulatesBuysUntilCycleComplete(t *testing.T) {
	bot := volumeBot()
	rpc := &fakeRPC{
		balance: big.NewInt(1e18),
		receipt: &onchain.Receipt{TxHash: common.HexToHash("0x1"), Success: true, GasUsed: 100000, GasPrice: big.NewInt(1e9)},
	}
	dex := &fakeDEX{quote: &onchain.Quote{BuyAmount: big.NewInt(1000)}}
	c := newController(rpc, dex, &fakeVault{}, nil)

	c.volumeTick(context.Background(), "test-tick", bot)
	require.Equal(t, 1, bot.VolumeBuysInCycle)
	assert.Equal(t, big.NewInt(1000), bot.VolumeAccumulatedToken)

	c.volumeTick(context.Background(), "test-tick", bot)
	assert.Equal(t, 2, bot.VolumeBuysInCycle)
	assert.Equal(t, big.NewInt(2000), bot.VolumeAccumulatedToken)
}

func TestVolumeTick_DumpsAccumulatorOnCycleCompletion(t *testing.T) {
	bot := volumeBot()
	bot.VolumeBuysInCycle = 2
	bot.VolumeAccumulatedToken = big.NewInt(2000)

	rpc := &fakeRPC{
		receipt: &onchain.Receipt{TxHash: common.HexToHash("0x2"), Success: true, GasUsed: 100000, GasPrice: big.NewInt(1e9)},
	}
	dex := &fakeDEX{quote: &onchain.Quote{BuyAmount: big.NewInt(3e17)}}
	c := newController(rpc, dex, &fakeVault{}, nil)

	c.volumeTick(context.Background(), "test-tick", bot)

	assert.Equal(t, 0, bot.VolumeBuysInCycle)
	assert.Equal(t, 0, bot.VolumeAccumulatedToken.Sign())
	assert.Equal(t, 1, bot.VolumeCycleCount)
	assert.Equal(t, 1, bot.TotalSells)
	assert.True(t, bot.TotalProfitEth.IsPositive())
	assert.Equal(t, common.HexToAddress(bot.TokenAddress), dex.lastReq.SellToken)
}

func TestVolumeBuy_SkippedWhenCircuitBreakerTripped(t *testing.T) {
	bot := volumeBot()
	dex := &fakeDEX{quote: &onchain.Quote{BuyAmount: big.NewInt(1000)}}
	c := newController(&fakeRPC{balance: big.NewInt(1e18)}, dex, &fakeVault{}, nil)
	c.Breaker = trippedBreaker(t)

	c.volumeTick(context.Background(), "test-tick", bot)

	assert.Equal(t, 0, bot.VolumeBuysInCycle)
}
