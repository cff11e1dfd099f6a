package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/frontdesk/internal/assistant"
	"go.uber.org/zap"
)

const emptyTextPrompt = "Please send a message to begin."

// Assistant is implemented by *assistant.Orchestrator.
type Assistant interface {
	Handle(ctx context.Context, req assistant.Request) (assistant.Reply, error)
}

// Sender is the part of *tgbotapi.BotAPI the bot replies through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api       *tgbotapi.BotAPI
	sender    Sender
	assistant Assistant
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func New(token string, a Assistant, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, a, logger)
	b.api = api
	return b, nil
}

func newBot(sender Sender, a Assistant, logger *zap.Logger) *Bot {
	return &Bot{
		sender:    sender,
		assistant: a,
		timeout:   60 * time.Second,
		logger:    logger,
	}
}

// Start polls for updates until ctx is done, then waits for in-flight turns.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			if update.Message == nil {
				continue
			}

			b.wg.Add(1)
			go func(message *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleMessage(ctx, message)
			}(update.Message)
		}
	}
}

// UserID is the assistant user id of a Telegram account.
func UserID(telegramID int64) string {
	return fmt.Sprintf("tg:%d", telegramID)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}

	// Handle commands
	if message.IsCommand() {
		b.handleCommand(message)
		return
	}

	// Get content from message
	content := message.Text
	if content == "" {
		content = message.Caption
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	reply, err := b.assistant.Handle(ctx, assistant.Request{
		UserID: UserID(message.From.ID),
		Name:   message.From.FirstName,
		Text:   content,
	})
	switch {
	case errors.Is(err, assistant.ErrEmptyText):
		b.sendMessage(message.Chat.ID, emptyTextPrompt)
		return
	case err != nil:
		b.logger.Error("Failed to handle message",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, assistant.GenericFailure)
		return
	}

	b.sendMessage(message.Chat.ID, reply.Text)
}

func (b *Bot) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	b.sendMessage(message.Chat.ID, assistant.Greeting)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the conversation
/help - Show this help message

You can ask me to:
- Check availability, e.g. "Are you free on Tuesday?"
- Book a meeting, e.g. "Can we meet next Tuesday at 9am?"
- Move or cancel a meeting I booked for you
- Answer quick questions about the business

All times are Pacific Time (PT). I always restate a booking, change or cancellation and wait for your "yes" before doing it.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
