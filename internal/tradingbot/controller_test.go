package tradingbot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polybot/internal/oracle"
)

func TestTick_SkippedWhenBotDisabledOrStopped(t *testing.T) {
	bot := baseBot(t)
	bot.Enabled = false
	rpc := &fakeRPC{balanceErr: errors.New("should not be called")}
	c := newController(rpc, &fakeDEX{}, &fakeVault{}, nil)
	c.Oracle = oracle.NewAggregator(rpc, oracle.ChainAddresses{WETH: weth()}, nil, oracle.PreferChainlink, true)

	require.NoError(t, c.Tick(context.Background(), bot))
	assert.Equal(t, 0, bot.ConsecutiveErrorCount)
}

func TestTick_StopsBotAfterFiveConsecutivePriceErrors(t *testing.T) {
	bot := baseBot(t)
	rpc := &fakeRPC{balanceErr: errors.New("no price")}
	notifier := &recordingNotifier{}
	c := newController(rpc, &fakeDEX{}, &fakeVault{}, notifier)
	c.Oracle = oracle.NewAggregator(rpc, oracle.ChainAddresses{WETH: weth()}, nil, oracle.PreferChainlink, true)
	c.MinConfidence = 0.5

	for i := 0; i < maxConsecutiveErrors; i++ {
		require.NoError(t, c.Tick(context.Background(), bot))
	}

	assert.False(t, bot.IsRunning)
	assert.Equal(t, maxConsecutiveErrors, bot.ConsecutiveErrorCount)
	require.NotEmpty(t, notifier.events)
	assert.Equal(t, EventStatusChange, notifier.events[len(notifier.events)-1].Kind)
}

func TestTick_NoFeedConfiguredIsTreatedAsPriceUnavailable(t *testing.T) {
	bot := baseBot(t)
	rpc := &fakeRPC{}
	c := newController(rpc, &fakeDEX{}, &fakeVault{}, nil)
	c.Oracle = oracle.NewAggregator(rpc, oracle.ChainAddresses{WETH: weth()}, map[string]oracle.FeedInfo{}, oracle.PreferChainlink, true)

	require.NoError(t, c.Tick(context.Background(), bot))
	assert.Equal(t, 1, bot.ConsecutiveErrorCount)
	assert.True(t, bot.IsRunning)
}
