// Package supervisor owns the bot registry and the single cooperative
// ticking loop that drives every enabled bot's control loop, per
// spec.md §4.6. It generalizes the teacher's core/engine.go Start/Stop
// lifecycle and internal/arbitrage/engine.go's multiple ticker-driven
// loops into one fixed-cadence dispatcher over a dynamic bot set.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/botmodel"
)

// minTickInterval is the floor on the supervisor's internal timer
// granularity, per spec.md §4.6.
const minTickInterval = 250 * time.Millisecond

// defaultShutdownGrace bounds how long Stop waits for in-flight ticks to
// settle before returning, per spec.md §4.7/§5. Receipt waits already in
// flight inside a tick are not bound by this — they detach from the tick's
// context in internal/tradingbot/submit.go.
const defaultShutdownGrace = 2 * time.Second

// BotSource rehydrates the bot registry from persistence at startup.
type BotSource interface {
	LoadBots(ctx context.Context) ([]*botmodel.BotInstance, error)
}

// Ticker executes one control-loop cycle for a bot. Satisfied by
// *internal/tradingbot.Controller.
type Ticker interface {
	Tick(ctx context.Context, bot *botmodel.BotInstance) error
}

type botState struct {
	bot *botmodel.BotInstance
	// busy is 1 while a tick for this bot is in flight; CAS-guarded so
	// ticks for the same bot never overlap, per spec.md §4.6.
	busy int32
}

// Status is the supervisor's external status snapshot (spec.md §4.6's
// getStatus()).
type Status struct {
	IsRunning   bool
	TotalBots   int
	RunningBots int
	LastTickAt  time.Time
}

// Supervisor drives every registered bot's Tick on a shared, fixed-cadence
// internal timer. Distinct bots may tick concurrently; a bot is owned by
// at most one in-flight tick at a time.
type Supervisor struct {
	mu            sync.RWMutex
	bots          map[string]*botState
	source        BotSource
	ticker        Ticker
	shutdownGrace time.Duration

	running  int32
	draining int32
	stopCh   chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup

	tickCtx    context.Context
	cancelTick context.CancelFunc

	lastTick time.Time
}

// New constructs a Supervisor. Call LoadBots before Start.
func New(source BotSource, ticker Ticker) *Supervisor {
	return &Supervisor{
		bots:          make(map[string]*botState),
		source:        source,
		ticker:        ticker,
		shutdownGrace: defaultShutdownGrace,
	}
}

// SetShutdownGrace overrides the default 2s shutdown grace period.
func (s *Supervisor) SetShutdownGrace(d time.Duration) { s.shutdownGrace = d }

// LoadBots rehydrates the registry from persistence, per spec.md §4.6's
// loadBots() contract. Each bot's skip-heartbeat counter is reloaded from
// its configuration, since the counter is deliberately not persisted.
func (s *Supervisor) LoadBots(ctx context.Context) error {
	bots, err := s.source.LoadBots(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots = make(map[string]*botState, len(bots))
	for _, b := range bots {
		b.ResetSkipCounter()
		s.bots[b.ID] = &botState{bot: b}
	}
	return nil
}

// AddBot registers a new bot (create-bot CLI surface, spec.md §6).
func (s *Supervisor) AddBot(bot *botmodel.BotInstance) {
	bot.ResetSkipCounter()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.ID] = &botState{bot: bot}
}

// RemoveBot unregisters a bot (delete-bot CLI surface, spec.md §6).
func (s *Supervisor) RemoveBot(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, id)
}

// Bot returns the live BotInstance for id, if registered.
func (s *Supervisor) Bot(id string) (*botmodel.BotInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.bots[id]
	if !ok {
		return nil, false
	}
	return st.bot, true
}

// Bots returns every registered bot.
func (s *Supervisor) Bots() []*botmodel.BotInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*botmodel.BotInstance, 0, len(s.bots))
	for _, st := range s.bots {
		out = append(out, st.bot)
	}
	return out
}

// Start begins the dispatch loop. Idempotent: a second call while already
// running is a no-op, per spec.md §4.6.
func (s *Supervisor) Start() {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	atomic.StoreInt32(&s.draining, 0)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.tickCtx, s.cancelTick = context.WithCancel(context.Background())
	go s.loop()
	log.Info().Msg("supervisor started")
}

// Stop sets the draining flag, stops scheduling new ticks, cancels the
// shared tick context — per spec.md §5, "shutdown cancels only the
// price-fetch and quote stages" of any tick already in flight — and waits
// up to the shutdown grace period for those ticks to settle. Idempotent.
func (s *Supervisor) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}
	atomic.StoreInt32(&s.draining, 1)
	close(s.stopCh)
	<-s.doneCh
	s.cancelTick()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.shutdownGrace):
		log.Warn().Msg("supervisor stop: grace period elapsed with ticks still in flight")
	}
	log.Info().Msg("supervisor stopped")
}

// Status returns the current getStatus() snapshot.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	running := 0
	for _, st := range s.bots {
		if st.bot.IsRunning {
			running++
		}
	}
	return Status{
		IsRunning:   atomic.LoadInt32(&s.running) == 1,
		TotalBots:   len(s.bots),
		RunningBots: running,
		LastTickAt:  s.lastTick,
	}
}

func (s *Supervisor) loop() {
	defer close(s.doneCh)

	interval := s.tickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.dispatchDue()
		case <-s.stopCh:
			return
		}
	}
}

// tickInterval computes the finest granularity required by any enabled
// bot (min over heartbeatMs), floored at minTickInterval, per spec.md §4.6.
func (s *Supervisor) tickInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best time.Duration
	for _, st := range s.bots {
		if !st.bot.Enabled {
			continue
		}
		hb := time.Duration(st.bot.Config.HeartbeatMs) * time.Millisecond
		if hb <= 0 {
			continue
		}
		if best == 0 || hb < best {
			best = hb
		}
	}
	if best < minTickInterval {
		return minTickInterval
	}
	return best
}

// dispatchDue schedules a tick for every bot whose heartbeat is due and
// whose busy flag is clear.
func (s *Supervisor) dispatchDue() {
	if atomic.LoadInt32(&s.draining) == 1 {
		return
	}

	now := time.Now()
	s.mu.RLock()
	due := make([]*botState, 0, len(s.bots))
	for _, st := range s.bots {
		bot := st.bot
		heartbeat := time.Duration(bot.Config.HeartbeatMs) * time.Millisecond
		if heartbeat <= 0 {
			heartbeat = minTickInterval
		}
		if now.Before(bot.LastHeartbeat.Add(heartbeat)) {
			continue
		}
		due = append(due, st)
	}
	s.mu.RUnlock()

	for _, st := range due {
		if !atomic.CompareAndSwapInt32(&st.busy, 0, 1) {
			continue // previous tick still in flight; this occurrence is skipped
		}
		s.wg.Add(1)
		go s.runTick(st, now)
	}
}

// runTick executes one tick for a single bot, honoring the skip-heartbeats
// countdown, and never overlaps with another tick of the same bot.
func (s *Supervisor) runTick(st *botState, due time.Time) {
	defer s.wg.Done()
	defer atomic.StoreInt32(&st.busy, 0)

	bot := st.bot
	defer func() {
		if r := recover(); r != nil {
			bot.ConsecutiveErrorCount++
			log.Error().Str("bot", bot.ID).Interface("panic", r).Msg("bot tick panicked")
		}
	}()
	bot.LastHeartbeat = due

	if bot.SkipCounter() > 0 {
		bot.DecrementSkipCounter()
		return
	}

	if err := s.ticker.Tick(s.tickCtx, bot); err != nil {
		log.Error().Str("bot", bot.ID).Err(err).Msg("bot tick failed")
	}
	bot.ResetSkipCounter()

	s.mu.Lock()
	s.lastTick = time.Now()
	s.mu.Unlock()
}
