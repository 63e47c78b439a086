package database

import (
	"database/sql"
	"time"
)

// Scope identifies the partition that messages, cached sentiment, and
// aggregate analyses belong to. State is never shared across scopes.
type Scope struct {
	OrgID   string
	GroupID int64
}

// Message is a chat message observed in a monitored group. Its identity
// within a scope is ExternalID (the channel's message ID); ExternalID may
// collide across scopes and is never used as a key on its own.
//
// Sentiment and Polarity are null until a message has been classified, and
// are written exactly once: a scored message is never re-scored.
type Message struct {
	ID        uint      `db:"id"`
	OrgID     string    `db:"org_id"`
	GroupID   int64     `db:"group_id"`
	CreatedAt time.Time `db:"created_at"`

	ExternalID int64         `db:"external_id"`
	Text       string        `db:"text"`
	SentAt     time.Time     `db:"sent_at"`
	SenderID   sql.NullInt64 `db:"sender_id"`
	SenderName string        `db:"sender_name"`
	FromSelf   bool          `db:"from_self"`

	Sentiment          sql.NullString  `db:"sentiment"`
	Polarity           sql.NullFloat64 `db:"polarity"`
	SentimentUpdatedAt sql.NullTime    `db:"sentiment_updated_at"`
}

// Scope returns the partition key of the message.
func (m *Message) Scope() Scope {
	return Scope{OrgID: m.OrgID, GroupID: m.GroupID}
}

// Scored reports whether the message has a persisted sentiment.
func (m *Message) Scored() bool {
	return m.Sentiment.Valid && m.Polarity.Valid
}

// SentimentUpdate carries one message's classification result for a batched
// conditional update. The update only applies while the stored sentiment is
// still null.
type SentimentUpdate struct {
	ExternalID int64
	Sentiment  string
	Polarity   float64
}

// Group holds metadata about a monitored group, upserted whenever the
// channel reports it.
type Group struct {
	ID          uint      `db:"id"`
	OrgID       string    `db:"org_id"`
	GroupID     int64     `db:"group_id"`
	Title       string    `db:"title"`
	Kind        string    `db:"kind"`
	MemberCount int       `db:"member_count"`
	LastSeenAt  time.Time `db:"last_seen_at"`
}

// GroupAnalysis is the persisted aggregate summary document for one scope.
// BucketDate is null for the scope-wide document written by backfills and
// set to the UTC day for the daily buckets written by the stream.
// The distribution and user-count columns hold JSON.
type GroupAnalysis struct {
	ID        uint      `db:"id"`
	OrgID     string    `db:"org_id"`
	GroupID   int64     `db:"group_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	BucketDate       sql.NullTime `db:"bucket_date"`
	PeriodDays       int          `db:"period_days"`
	TotalMessages    int          `db:"total_messages"`
	TotalPolarity    float64      `db:"total_polarity"`
	AverageSentiment float64      `db:"average_sentiment"`
	DistributionJSON string       `db:"sentiment_distribution"`
	UserCountsJSON   string       `db:"user_message_counts"`
	TopUsersJSON     string       `db:"top_users"`
}

// IngestTask is the persisted status record for a background ingestion
// task, mirroring the in-memory registry entry.
type IngestTask struct {
	ID        uint         `db:"id"`
	OrgID     string       `db:"org_id"`
	GroupID   int64        `db:"group_id"`
	Kind      string       `db:"kind"`
	Status    string       `db:"status"`
	Detail    string       `db:"detail"`
	StartedAt time.Time    `db:"started_at"`
	StoppedAt sql.NullTime `db:"stopped_at"`
}
