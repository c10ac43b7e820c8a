package tradingbot

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Kind classifies a tick failure, per spec.md §7's error taxonomy.
type Kind int

const (
	KindPriceUnavailable Kind = iota
	KindBalanceUnavailable
	KindQuoteFailed
	KindSubmitFailed
)

func (k Kind) String() string {
	switch k {
	case KindPriceUnavailable:
		return "price_unavailable"
	case KindBalanceUnavailable:
		return "balance_unavailable"
	case KindQuoteFailed:
		return "quote_failed"
	case KindSubmitFailed:
		return "submit_failed"
	default:
		return "unknown"
	}
}

// BotError is the typed error value a tick step produces, generalizing the
// teacher's bare-string rejection reasons (risk/gate.go's RejectionMsg)
// into a loggable, wrapped value carrying everything spec.md §7 requires
// to be logged once: bot id, tick id, and step name.
type BotError struct {
	Kind   Kind
	Cause  error
	BotID  string
	TickID string
	Step   string
}

func (e *BotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Kind)
}

func (e *BotError) Unwrap() error { return e.Cause }

// fail builds a BotError and logs it exactly once with bot id, tick id,
// and step name, per spec.md §7.
func fail(kind Kind, botID, tickID, step string, cause error) *BotError {
	be := &BotError{Kind: kind, Cause: cause, BotID: botID, TickID: tickID, Step: step}
	log.Warn().Str("bot", botID).Str("tick", tickID).Str("step", step).Err(cause).Msg(be.Kind.String())
	return be
}
