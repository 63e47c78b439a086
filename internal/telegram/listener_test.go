package telegram

import (
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/grouppulse/grouppulse/internal/analysis"
)

func TestMentioned(t *testing.T) {
	t.Parallel()

	l := &Listener{selfID: 999, selfUsername: "pulsebot"}

	tests := []struct {
		name string
		msg  *models.Message
		want bool
	}{
		{
			name: "username mention",
			msg:  &models.Message{Text: "hey @pulsebot how are things?"},
			want: true,
		},
		{
			name: "plain message",
			msg:  &models.Message{Text: "lunch anyone?"},
			want: false,
		},
		{
			name: "reply to the bot",
			msg: &models.Message{
				Text:           "thanks!",
				ReplyToMessage: &models.Message{From: &models.User{ID: 999}},
			},
			want: true,
		},
		{
			name: "reply to someone else",
			msg: &models.Message{
				Text:           "thanks!",
				ReplyToMessage: &models.Message{From: &models.User{ID: 123}},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := l.mentioned(tt.msg); got != tt.want {
				t.Errorf("mentioned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatSummary(t *testing.T) {
	t.Parallel()

	s := &analysis.Summary{
		TotalMessages:    10,
		AverageSentiment: 0.25,
		Distribution:     map[string]int{"positive": 5, "negative": 2, "neutral": 3},
		TopUsers: []analysis.UserCount{
			{SenderID: 100, Count: 6},
			{SenderID: 200, Count: 4},
		},
	}

	got := formatSummary(s)
	for _, want := range []string{"10 messages", "+0.25", "Positive: 5", "user 100 (6 messages)"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatSummary() missing %q in:\n%s", want, got)
		}
	}
}

func TestSenderName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user models.User
		want string
	}{
		{name: "full name", user: models.User{FirstName: "Ada", LastName: "Lovelace"}, want: "Ada Lovelace"},
		{name: "first name only", user: models.User{FirstName: "Ada"}, want: "Ada"},
		{name: "username fallback", user: models.User{Username: "ada"}, want: "ada"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := senderName(&tt.user); got != tt.want {
				t.Errorf("senderName() = %q, want %q", got, tt.want)
			}
		})
	}
}
