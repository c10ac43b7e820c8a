package notify

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/tradingbot"
)

// TelegramSink sends every Event as a formatted message to one chat.
// Generalized from bot/telegram.go's NotifyTrade/NotifyPnL/NotifyError
// family into a single Event-shaped sink.
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink constructs a sink from TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID,
// matching the teacher's env-var-driven construction.
func NewTelegramSink() (*TelegramSink, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
	if chatIDStr == "" {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("telegram notifier initialized")
	return &TelegramSink{api: api, chatID: chatID}, nil
}

var kindEmoji = map[tradingbot.EventKind]string{
	tradingbot.EventTrade:          "✅",
	tradingbot.EventProfit:         "💰",
	tradingbot.EventError:          "⚠️",
	tradingbot.EventWarning:        "⚡",
	tradingbot.EventSummary:        "📊",
	tradingbot.EventCircuitBreaker: "🛑",
	tradingbot.EventStatusChange:   "🔔",
}

func (s *TelegramSink) Notify(e tradingbot.Event) {
	emoji := kindEmoji[e.Kind]
	if emoji == "" {
		emoji = "📌"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", emoji, strings.ToUpper(string(e.Kind)))
	if e.BotName != "" {
		fmt.Fprintf(&b, "🤖 %s\n", e.BotName)
	}
	b.WriteString(e.Message)
	for k, v := range e.Fields {
		fmt.Fprintf(&b, "\n%s: `%s`", k, v)
	}

	msg := tgbotapi.NewMessage(s.chatID, b.String())
	msg.ParseMode = "Markdown"
	if _, err := s.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("failed to send telegram notification")
	}
}
