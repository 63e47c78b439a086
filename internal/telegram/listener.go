package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/grouppulse/grouppulse/internal/analysis"
	"github.com/grouppulse/grouppulse/internal/channel"
	"github.com/grouppulse/grouppulse/internal/pipeline"
)

// Listener connects a Telegram bot to the stream pipeline: every group
// message becomes a stream update, and bot commands drive the task manager.
type Listener struct {
	bot     *bot.Bot
	stream  *pipeline.Stream
	manager *pipeline.Manager
	logger  *slog.Logger

	selfID       int64
	selfUsername string
}

// NewListener creates a listener around an existing bot instance. Call
// Init before Run to resolve the bot's own identity.
func NewListener(b *bot.Bot, stream *pipeline.Stream, manager *pipeline.Manager, logger *slog.Logger) (*Listener, error) {
	if b == nil || stream == nil || manager == nil {
		return nil, errors.New("bot, stream, and manager are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		bot:     b,
		stream:  stream,
		manager: manager,
		logger:  logger.With("component", "telegram_listener"),
	}, nil
}

// Init resolves the bot's own account so its messages can be told apart
// from user messages, and registers the command handlers.
func (l *Listener) Init(ctx context.Context) error {
	me, err := l.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	l.selfID = me.ID
	l.selfUsername = me.Username
	l.logger.InfoContext(ctx, "Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	l.bot.RegisterHandler(bot.HandlerTypeMessageText, "/backfill", bot.MatchTypePrefix, l.handleBackfill)
	l.bot.RegisterHandler(bot.HandlerTypeMessageText, "/summary", bot.MatchTypePrefix, l.handleSummary)
	l.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, l.handleStatus)
	return nil
}

// Run starts polling for updates and blocks until the context is
// cancelled or the stream task is stopped.
func (l *Listener) Run(ctx context.Context) error {
	streamCtx, err := l.manager.RegisterStream(ctx)
	if err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "Telegram listener starting")
	l.bot.Start(streamCtx)
	l.logger.Info("Telegram listener stopped")
	return nil
}

// Handle is the default update handler, wired via bot.WithDefaultHandler.
// It forwards group messages into the stream.
func (l *Listener) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}
	if msg.Chat.Type != "group" && msg.Chat.Type != "supergroup" {
		return
	}

	incoming := channel.Message{
		ExternalID: int64(msg.ID),
		Text:       msg.Text,
		SentAt:     time.Unix(int64(msg.Date), 0).UTC(),
		SenderID:   msg.From.ID,
		SenderName: senderName(msg.From),
		FromSelf:   msg.From.ID == l.selfID,
	}
	group := channel.Group{
		GroupID: msg.Chat.ID,
		Title:   msg.Chat.Title,
		Kind:    string(msg.Chat.Type),
	}

	if err := l.stream.HandleMessage(ctx, incoming, group, l.mentioned(msg)); err != nil {
		l.logger.ErrorContext(ctx, "Failed to process message",
			"chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
	}
}

// mentioned reports whether the message addresses the bot, either by
// @username or by replying to one of its messages.
func (l *Listener) mentioned(msg *models.Message) bool {
	if l.selfUsername != "" && strings.Contains(msg.Text, "@"+l.selfUsername) {
		return true
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From.ID == l.selfID
	}
	return false
}

func (l *Listener) handleBackfill(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID

	var text string
	if err := l.manager.StartBackfill(ctx, chatID, pipeline.Window{}); err != nil {
		if errors.Is(err, pipeline.ErrTaskRunning) {
			text = "A backfill for this group is already running."
		} else {
			l.logger.ErrorContext(ctx, "Failed to start backfill", "chat_id", chatID, "error", err)
			text = "Could not start the backfill, please try again later."
		}
	} else {
		text = "Backfill started. Use /summary to see results once it completes."
	}

	l.send(ctx, b, chatID, text)
}

func (l *Listener) handleSummary(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID

	summary, err := l.manager.GetSummary(ctx, chatID)
	if err != nil {
		l.logger.ErrorContext(ctx, "Failed to load summary", "chat_id", chatID, "error", err)
		l.send(ctx, b, chatID, "Could not load the summary, please try again later.")
		return
	}
	if summary == nil || summary.TotalMessages == 0 {
		l.send(ctx, b, chatID, "No analysis available yet. Run /backfill first.")
		return
	}

	l.send(ctx, b, chatID, formatSummary(summary))
}

func (l *Listener) handleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID

	statuses := l.manager.Status()
	if len(statuses) == 0 {
		l.send(ctx, b, chatID, "No tasks running.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Running tasks:\n")
	for _, s := range statuses {
		if s.GroupID != 0 {
			fmt.Fprintf(&sb, "- %s (group %d), started %s\n", s.Kind, s.GroupID, s.StartedAt.Format(time.RFC3339))
		} else {
			fmt.Fprintf(&sb, "- %s, started %s\n", s.Kind, s.StartedAt.Format(time.RFC3339))
		}
	}
	l.send(ctx, b, chatID, sb.String())
}

func (l *Listener) send(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		l.logger.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
	}
}

func formatSummary(s *analysis.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sentiment summary (%d messages)\n", s.TotalMessages)
	fmt.Fprintf(&sb, "Average sentiment: %+.2f\n", s.AverageSentiment)
	fmt.Fprintf(&sb, "Positive: %d, negative: %d, neutral: %d\n",
		s.Distribution["positive"], s.Distribution["negative"], s.Distribution["neutral"])

	if len(s.TopUsers) > 0 {
		sb.WriteString("Most active users:\n")
		for i, u := range s.TopUsers {
			fmt.Fprintf(&sb, "%d. user %d (%d messages)\n", i+1, u.SenderID, u.Count)
		}
	}
	return sb.String()
}

func senderName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}
