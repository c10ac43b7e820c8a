// Package notify fans tradingbot.Event out to configured channels
// (Telegram today, extensible to others per spec.md §1's "Discord, etc."
// note), in the teacher's markdown-alert style from bot/telegram.go.
package notify

import (
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/tradingbot"
)

// FanOut dispatches every Event to each configured sink. A sink that
// panics or blocks is the sink's own problem — FanOut does not recover
// or time-box individual sinks, matching spec.md §5's "notification send
// is non-blocking with respect to other bots" only at the tick level, not
// within a single Notify call.
type FanOut struct {
	sinks []tradingbot.Notifier
}

// New constructs a FanOut over the given sinks. A nil sink is skipped.
func New(sinks ...tradingbot.Notifier) *FanOut {
	f := &FanOut{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *FanOut) Notify(e tradingbot.Event) {
	for _, sink := range f.sinks {
		sink.Notify(e)
	}
}

// LogSink notifies via structured logging only — always wired, so every
// Event is observable even with no external channel configured.
type LogSink struct{}

func (LogSink) Notify(e tradingbot.Event) {
	evt := log.Info()
	if e.Kind == tradingbot.EventError {
		evt = log.Error()
	}
	fields := evt.Str("botId", e.BotID).Str("botName", e.BotName).Str("kind", string(e.Kind))
	for k, v := range e.Fields {
		fields = fields.Str(k, v)
	}
	fields.Msg(e.Message)
}
