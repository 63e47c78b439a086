// Package telegram adapts the Telegram Bot API to the pipeline's channel
// types: live updates flow into the stream, replies and command responses
// flow back out.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// NewTelegramBot creates a Telegram bot instance using the go-telegram/bot
// library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created successfully")
	return b, nil
}

// Sender posts messages through the bot. It implements channel.Sender.
type Sender struct {
	bot *bot.Bot
}

// NewSender wraps a bot instance as a message sender.
func NewSender(b *bot.Bot) *Sender {
	return &Sender{bot: b}
}

// SendReply posts text into a group.
func (s *Sender) SendReply(ctx context.Context, groupID int64, text string) error {
	if _, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: groupID, Text: text}); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
