// Package channel defines the transport-neutral view of a message source.
// Adapters (Telegram, store replay) translate their own types into these.
package channel

import (
	"context"
	"errors"
	"time"
)

// ErrEntityUnresolvable indicates the channel cannot resolve the requested
// group, typically because the account no longer has access to it.
var ErrEntityUnresolvable = errors.New("channel entity unresolvable")

// Message is one inbound message as the channel reports it, before storage.
type Message struct {
	ExternalID int64
	Text       string
	SentAt     time.Time
	SenderID   int64
	SenderName string
	FromSelf   bool
}

// Group is channel-reported group metadata.
type Group struct {
	GroupID     int64
	Title       string
	Kind        string
	MemberCount int
}

// History fetches stored or remote message history page by page.
// FetchPage returns messages older than beforeID (all history when
// beforeID is zero), newest page first; an empty page means exhaustion.
type History interface {
	FetchPage(ctx context.Context, groupID int64, beforeID int64, limit int) ([]Message, error)
}

// Sender can post a reply into a group.
type Sender interface {
	SendReply(ctx context.Context, groupID int64, text string) error
}
