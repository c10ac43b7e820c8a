package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polybot/internal/botmodel"
)

type fakeSource struct {
	bots []*botmodel.BotInstance
	err  error
}

func (f *fakeSource) LoadBots(ctx context.Context) ([]*botmodel.BotInstance, error) {
	return f.bots, f.err
}

type countingTicker struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	onTick  func(bot *botmodel.BotInstance)
}

func (c *countingTicker) Tick(ctx context.Context, bot *botmodel.BotInstance) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.onTick != nil {
		c.onTick(bot)
	}
	return nil
}

func (c *countingTicker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newBot(id string, heartbeatMs int64) *botmodel.BotInstance {
	return &botmodel.BotInstance{
		ID:      id,
		Enabled: true,
		Config:  botmodel.GridConfig{HeartbeatMs: heartbeatMs},
	}
}

func TestSupervisor_TicksDueBotsAndSkipsWhenBusy(t *testing.T) {
	bot := newBot("bot-1", 250)
	ticker := &countingTicker{delay: 300 * time.Millisecond}
	s := New(&fakeSource{bots: []*botmodel.BotInstance{bot}}, ticker)
	require.NoError(t, s.LoadBots(context.Background()))
	s.SetShutdownGrace(2 * time.Second)

	s.Start()
	time.Sleep(1200 * time.Millisecond)
	s.Stop()

	// With a 300ms tick duration on a 250ms cadence, overlapping occurrences
	// must be skipped rather than queued: far fewer than 1200/250=4.8 calls.
	calls := ticker.count()
	assert.Greater(t, calls, 0)
	assert.Less(t, calls, 5)
}

func TestSupervisor_StartStopIdempotent(t *testing.T) {
	s := New(&fakeSource{}, &countingTicker{})
	s.Start()
	s.Start() // no-op
	s.Stop()
	s.Stop() // no-op
}

func TestSupervisor_SkipHeartbeatsDelaysActualTick(t *testing.T) {
	bot := newBot("bot-1", 250)
	bot.Config.SkipHeartbeats = 2
	ticker := &countingTicker{}
	s := New(&fakeSource{bots: []*botmodel.BotInstance{bot}}, ticker)
	require.NoError(t, s.LoadBots(context.Background()))

	s.Start()
	time.Sleep(900 * time.Millisecond)
	s.Stop()

	// Three heartbeat occurrences land in ~900ms at a 250ms cadence, but
	// skipHeartbeats=2 means only the third actually dispatches a tick.
	assert.LessOrEqual(t, ticker.count(), 1)
}

func TestSupervisor_StatusReportsRegisteredBots(t *testing.T) {
	bots := []*botmodel.BotInstance{newBot("a", 250), newBot("b", 250)}
	bots[0].IsRunning = true
	s := New(&fakeSource{bots: bots}, &countingTicker{})
	require.NoError(t, s.LoadBots(context.Background()))

	status := s.Status()
	assert.Equal(t, 2, status.TotalBots)
	assert.Equal(t, 1, status.RunningBots)
	assert.False(t, status.IsRunning)

	s.Start()
	defer s.Stop()
	assert.True(t, s.Status().IsRunning)
}

func TestSupervisor_AddAndRemoveBot(t *testing.T) {
	s := New(&fakeSource{}, &countingTicker{})
	require.NoError(t, s.LoadBots(context.Background()))

	s.AddBot(newBot("new-bot", 250))
	_, ok := s.Bot("new-bot")
	require.True(t, ok)

	s.RemoveBot("new-bot")
	_, ok = s.Bot("new-bot")
	assert.False(t, ok)
}

func TestSupervisor_StopWaitsForInFlightTickWithinGrace(t *testing.T) {
	bot := newBot("slow", 250)
	var completed int32
	ticker := &countingTicker{
		delay: 300 * time.Millisecond,
		onTick: func(b *botmodel.BotInstance) {
			atomic.StoreInt32(&completed, 1)
		},
	}
	s := New(&fakeSource{bots: []*botmodel.BotInstance{bot}}, ticker)
	require.NoError(t, s.LoadBots(context.Background()))
	s.SetShutdownGrace(2 * time.Second)

	s.Start()
	time.Sleep(300 * time.Millisecond) // let the first tick (first 250ms timer fire) begin
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))
}
