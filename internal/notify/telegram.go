package notify

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/sentineld/sentineld/internal/model"
)

const defaultChatIDFile = "chat_id.txt"
const telegramQueueCapacity = 200

// TelegramSink posts NotificationMessages to a single Telegram chat and
// answers /status, /report and /stop commands, generalizing the donor's
// NotificationService to a sink-agnostic payload and a StatusSnapshot
// callback instead of hand-formatted strings.
type TelegramSink struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	chatIDFile string
	queue      *boundedQueue
	log        zerolog.Logger
	done       chan struct{}
}

// NewTelegramSink authenticates against the Telegram Bot API using token.
// chatID may be empty, in which case the sink auto-discovers it from the
// first inbound message (or chatIDFile, if previously persisted) and
// persists it for future restarts.
func NewTelegramSink(token, chatID, chatIDFile string, log zerolog.Logger) (*TelegramSink, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: no bot token configured")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate: %w", err)
	}
	if chatIDFile == "" {
		chatIDFile = defaultChatIDFile
	}

	s := &TelegramSink{
		bot:        bot,
		chatIDFile: chatIDFile,
		queue:      newBoundedQueue(telegramQueueCapacity),
		log:        log,
		done:       make(chan struct{}),
	}

	if chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			s.chatID = id
		}
	}
	if s.chatID == 0 {
		s.chatID = s.loadChatID()
	}

	go s.runWorker()
	return s, nil
}

func (s *TelegramSink) loadChatID() int64 {
	data, err := os.ReadFile(s.chatIDFile)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (s *TelegramSink) saveChatID(id int64) {
	if err := os.WriteFile(s.chatIDFile, []byte(fmt.Sprintf("%d", id)), 0o644); err != nil {
		s.log.Warn().Err(err).Msg("telegram: persist chat id failed")
	}
}

// Send enqueues msg for async delivery. Never blocks.
func (s *TelegramSink) Send(msg model.NotificationMessage) {
	s.queue.push(msg)
}

// Close stops the delivery worker.
func (s *TelegramSink) Close() {
	close(s.done)
}

func (s *TelegramSink) runWorker() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue.ch:
			s.deliver(msg)
		}
	}
}

func (s *TelegramSink) deliver(msg model.NotificationMessage) {
	if s.chatID == 0 {
		return
	}
	cfg := tgbotapi.NewMessage(s.chatID, formatMessage(msg))
	cfg.ParseMode = "Markdown"
	if _, err := s.bot.Send(cfg); err != nil {
		s.log.Warn().Err(err).Msg("telegram: send failed")
	}
}

func formatMessage(msg model.NotificationMessage) string {
	icon := "ℹ️"
	switch msg.Level {
	case model.NotifyWarning:
		icon = "⚠️"
	case model.NotifyCritical:
		icon = "🚨"
	}
	if msg.Alert != nil {
		return fmt.Sprintf("%s *%s* — %s\n%s", icon, msg.Symbol, msg.Alert.Kind, msg.Text)
	}
	return fmt.Sprintf("%s %s", icon, msg.Text)
}

// ListenCommands blocks polling Telegram updates, capturing chatID on the
// first inbound message and answering /status, /report and /stop, until
// ctx is cancelled.
func (s *TelegramSink) ListenCommands(ctx context.Context, status func() model.StatusSnapshot, report func() string, stop func()) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.handleUpdate(update, status, report, stop)
		}
	}
}

func (s *TelegramSink) handleUpdate(update tgbotapi.Update, status func() model.StatusSnapshot, report func() string, stop func()) {
	if update.Message == nil {
		return
	}
	if s.chatID == 0 {
		s.chatID = update.Message.Chat.ID
		s.saveChatID(s.chatID)
		s.Send(model.NotificationMessage{Level: model.NotifyInfo, Text: "Connected. Monitoring started.", TS: time.Now()})
	}
	if !update.Message.IsCommand() {
		return
	}
	switch update.Message.Command() {
	case "status":
		if status != nil {
			snap := status()
			s.Send(model.NotificationMessage{Level: model.NotifyInfo, Text: formatStatus(snap), TS: time.Now()})
		}
	case "report":
		if report != nil {
			s.Send(model.NotificationMessage{Level: model.NotifyInfo, Text: report(), TS: time.Now()})
		}
	case "stop":
		s.Send(model.NotificationMessage{Level: model.NotifyCritical, Text: "Shutdown requested via Telegram.", TS: time.Now()})
		if stop != nil {
			stop()
		}
	}
}

func formatStatus(s model.StatusSnapshot) string {
	return fmt.Sprintf(
		"Equity: $%.2f\nOpen positions: %d\nTracked symbols: %d\nAlerts (1h): %d\nUptime: %s",
		s.Account.Equity, s.OpenPositions, s.TrackedSymbols, s.AlertsLastHour, s.Uptime.Round(time.Second),
	)
}
