package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrStoreUnavailable marks transient store failures. Callers retry the
// whole batch; no batch is ever partially committed behind this error.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store defines the data access interface used by the ingestion pipelines.
// Methods accept context.Context for cancellation and timeouts; absence of a
// record is reported as a nil result, not an error.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessages bulk-inserts new messages, skipping any that already
	// exist within their scope. Returns the number actually inserted.
	SaveMessages(ctx context.Context, msgs []Message) (int, error)

	// SaveMessage inserts a single message unless it already exists within
	// its scope. Returns false if the message was a duplicate.
	SaveMessage(ctx context.Context, msg *Message) (bool, error)

	// GetMessage retrieves one message by scope and external ID.
	// Returns nil, nil if not found.
	GetMessage(ctx context.Context, scope Scope, externalID int64) (*Message, error)

	// ExistingExternalIDs returns the subset of ids already stored in the
	// given scope, using a single bulk query.
	ExistingExternalIDs(ctx context.Context, scope Scope, ids []int64) (map[int64]struct{}, error)

	// MessagesByExternalIDs bulk-fetches stored messages for the given IDs
	// within a scope.
	MessagesByExternalIDs(ctx context.Context, scope Scope, ids []int64) ([]Message, error)

	// MessagesInRange retrieves messages for a scope within [from, to),
	// ordered chronologically.
	MessagesInRange(ctx context.Context, scope Scope, from, to time.Time) ([]Message, error)

	// MessagesBefore retrieves up to limit messages with external IDs below
	// beforeID (all messages when beforeID is zero), newest first. Used to
	// replay stored history page by page.
	MessagesBefore(ctx context.Context, scope Scope, beforeID int64, limit int) ([]Message, error)

	// RecentMessages retrieves the most recent limit messages for a scope,
	// returned in chronological order.
	RecentMessages(ctx context.Context, scope Scope, limit int) ([]Message, error)

	// UpdateMessageSentiments applies classification results in one batched
	// conditional update. Each update only lands while the stored sentiment
	// is still null, so a scored message is never overwritten.
	UpdateMessageSentiments(ctx context.Context, scope Scope, updates []SentimentUpdate) error

	// UpsertGroup inserts or refreshes group metadata.
	UpsertGroup(ctx context.Context, group *Group) error

	// Groups lists all known groups for an organization.
	Groups(ctx context.Context, orgID string) ([]Group, error)

	// UpsertAnalysis inserts or replaces the analysis document keyed by
	// (org, group, bucket).
	UpsertAnalysis(ctx context.Context, analysis *GroupAnalysis) error

	// AnalysisForBucket retrieves the analysis document for a scope and
	// bucket date (zero bucket means the scope-wide document).
	// Returns nil, nil if not found.
	AnalysisForBucket(ctx context.Context, scope Scope, bucket time.Time) (*GroupAnalysis, error)

	// LatestAnalysis retrieves the most recently updated analysis for a
	// scope, preferring the scope-wide document. Returns nil, nil if none.
	LatestAnalysis(ctx context.Context, scope Scope) (*GroupAnalysis, error)

	// LatestAnalyses lists the most recently updated analyses for an
	// organization, optionally filtered by group (groupID != 0).
	LatestAnalyses(ctx context.Context, orgID string, groupID int64, limit int) ([]GroupAnalysis, error)

	// SaveTaskStatus upserts the persisted status record for a background
	// ingestion task.
	SaveTaskStatus(ctx context.Context, task *IngestTask) error

	// RunMaintenance performs database maintenance (VACUUM).
	RunMaintenance(ctx context.Context) error
}

// sqlxStore implements Store backed by sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store implementation backed by the given connection.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping failed: %v", ErrStoreUnavailable, err)
	}
	return nil
}

const insertMessageQuery = `
	INSERT INTO messages (
		org_id, group_id, external_id, text, sent_at, sender_id, sender_name,
		sentiment, polarity, sentiment_updated_at, from_self, created_at
	) VALUES (
		:org_id, :group_id, :external_id, :text, :sent_at, :sender_id, :sender_name,
		:sentiment, :polarity, :sentiment_updated_at, :from_self, :created_at
	)
	ON CONFLICT (org_id, group_id, external_id) DO NOTHING;
`

func (s *sqlxStore) SaveMessages(ctx context.Context, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for bulk message insert", "error", err)
		return 0, fmt.Errorf("%w: begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	now := time.Now().UTC()
	saved := 0
	for i := range msgs {
		msgs[i].CreatedAt = now

		result, err := tx.NamedExecContext(ctx, insertMessageQuery, &msgs[i])
		if err != nil {
			s.logger.ErrorContext(ctx, "Error inserting message",
				"group_id", msgs[i].GroupID, "external_id", msgs[i].ExternalID, "error", err)
			return 0, fmt.Errorf("%w: insert message %d: %v", ErrStoreUnavailable, msgs[i].ExternalID, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 1 {
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit bulk message insert", "error", err)
		return 0, fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Messages saved", "batch", len(msgs), "inserted", saved)
	return saved, nil
}

func (s *sqlxStore) SaveMessage(ctx context.Context, msg *Message) (bool, error) {
	if msg == nil {
		return false, errors.New("cannot save nil message")
	}
	if msg.OrgID == "" || msg.GroupID == 0 {
		return false, errors.New("message must carry a scope")
	}

	msg.CreatedAt = time.Now().UTC()

	result, err := s.db.NamedExecContext(ctx, insertMessageQuery, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message",
			"group_id", msg.GroupID, "external_id", msg.ExternalID, "error", err)
		return false, fmt.Errorf("%w: insert message %d: %v", ErrStoreUnavailable, msg.ExternalID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count for message insert",
			"external_id", msg.ExternalID, "error", err)
		return true, nil
	}
	return affected == 1, nil
}

const selectMessageColumns = `
	id, org_id, group_id, external_id, text, sent_at, sender_id, sender_name,
	sentiment, polarity, sentiment_updated_at, from_self, created_at
`

func (s *sqlxStore) GetMessage(ctx context.Context, scope Scope, externalID int64) (*Message, error) {
	var msg Message
	query := `SELECT ` + selectMessageColumns + `
		FROM messages
		WHERE org_id = ? AND group_id = ? AND external_id = ?`

	err := s.db.GetContext(ctx, &msg, query, scope.OrgID, scope.GroupID, externalID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting message",
			"group_id", scope.GroupID, "external_id", externalID, "error", err)
		return nil, fmt.Errorf("%w: get message %d: %v", ErrStoreUnavailable, externalID, err)
	}
	return &msg, nil
}

func (s *sqlxStore) ExistingExternalIDs(ctx context.Context, scope Scope, ids []int64) (map[int64]struct{}, error) {
	if len(ids) == 0 {
		return map[int64]struct{}{}, nil
	}

	query, args, err := sqlx.In(
		`SELECT external_id FROM messages WHERE org_id = ? AND group_id = ? AND external_id IN (?)`,
		scope.OrgID, scope.GroupID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build existence query: %w", err)
	}

	var existing []int64
	query = s.db.Rebind(query)
	if err := s.db.SelectContext(ctx, &existing, query, args...); err != nil {
		s.logger.ErrorContext(ctx, "Error checking existing message IDs",
			"group_id", scope.GroupID, "batch", len(ids), "error", err)
		return nil, fmt.Errorf("%w: existence check: %v", ErrStoreUnavailable, err)
	}

	known := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}
	return known, nil
}

func (s *sqlxStore) MessagesByExternalIDs(ctx context.Context, scope Scope, ids []int64) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+selectMessageColumns+`
		 FROM messages WHERE org_id = ? AND group_id = ? AND external_id IN (?)`,
		scope.OrgID, scope.GroupID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build bulk fetch query: %w", err)
	}

	var msgs []Message
	query = s.db.Rebind(query)
	if err := s.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		s.logger.ErrorContext(ctx, "Error bulk-fetching messages",
			"group_id", scope.GroupID, "batch", len(ids), "error", err)
		return nil, fmt.Errorf("%w: bulk fetch: %v", ErrStoreUnavailable, err)
	}
	return msgs, nil
}

func (s *sqlxStore) MessagesInRange(ctx context.Context, scope Scope, from, to time.Time) ([]Message, error) {
	var msgs []Message
	query := `SELECT ` + selectMessageColumns + `
		FROM messages
		WHERE org_id = ? AND group_id = ? AND sent_at >= ? AND sent_at < ?
		ORDER BY sent_at ASC, external_id ASC`

	if err := s.db.SelectContext(ctx, &msgs, query, scope.OrgID, scope.GroupID, from, to); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching messages in range",
			"group_id", scope.GroupID, "from", from, "to", to, "error", err)
		return nil, fmt.Errorf("%w: range fetch: %v", ErrStoreUnavailable, err)
	}
	return msgs, nil
}

func (s *sqlxStore) MessagesBefore(ctx context.Context, scope Scope, beforeID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}

	var msgs []Message
	var err error

	if beforeID > 0 {
		query := `SELECT ` + selectMessageColumns + `
			FROM messages
			WHERE org_id = ? AND group_id = ? AND external_id < ?
			ORDER BY external_id DESC
			LIMIT ?`
		err = s.db.SelectContext(ctx, &msgs, query, scope.OrgID, scope.GroupID, beforeID, limit)
	} else {
		query := `SELECT ` + selectMessageColumns + `
			FROM messages
			WHERE org_id = ? AND group_id = ?
			ORDER BY external_id DESC
			LIMIT ?`
		err = s.db.SelectContext(ctx, &msgs, query, scope.OrgID, scope.GroupID, limit)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching messages before ID",
			"group_id", scope.GroupID, "before", beforeID, "error", err)
		return nil, fmt.Errorf("%w: paged fetch: %v", ErrStoreUnavailable, err)
	}
	return msgs, nil
}

func (s *sqlxStore) RecentMessages(ctx context.Context, scope Scope, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}

	var msgs []Message
	query := `SELECT ` + selectMessageColumns + `
		FROM messages
		WHERE org_id = ? AND group_id = ?
		ORDER BY sent_at DESC, external_id DESC
		LIMIT ?`

	if err := s.db.SelectContext(ctx, &msgs, query, scope.OrgID, scope.GroupID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching recent messages",
			"group_id", scope.GroupID, "limit", limit, "error", err)
		return nil, fmt.Errorf("%w: recent fetch: %v", ErrStoreUnavailable, err)
	}

	// Reverse into chronological order for prompt building.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *sqlxStore) UpdateMessageSentiments(ctx context.Context, scope Scope, updates []SentimentUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for sentiment updates", "error", err)
		return fmt.Errorf("%w: begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	now := time.Now().UTC()
	query := `UPDATE messages
		SET sentiment = ?, polarity = ?, sentiment_updated_at = ?
		WHERE org_id = ? AND group_id = ? AND external_id = ? AND sentiment IS NULL`

	applied := 0
	for _, u := range updates {
		result, err := tx.ExecContext(ctx, query,
			u.Sentiment, u.Polarity, now, scope.OrgID, scope.GroupID, u.ExternalID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error updating message sentiment",
				"group_id", scope.GroupID, "external_id", u.ExternalID, "error", err)
			return fmt.Errorf("%w: sentiment update %d: %v", ErrStoreUnavailable, u.ExternalID, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 1 {
			applied++
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit sentiment updates", "error", err)
		return fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Sentiment updates applied",
		"group_id", scope.GroupID, "requested", len(updates), "applied", applied)
	return nil
}

func (s *sqlxStore) UpsertGroup(ctx context.Context, group *Group) error {
	if group == nil {
		return errors.New("cannot upsert nil group")
	}

	group.LastSeenAt = time.Now().UTC()

	query := `
		INSERT INTO groups (org_id, group_id, title, kind, member_count, last_seen_at)
		VALUES (:org_id, :group_id, :title, :kind, :member_count, :last_seen_at)
		ON CONFLICT (org_id, group_id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			member_count = excluded.member_count,
			last_seen_at = excluded.last_seen_at;
	`

	if _, err := s.db.NamedExecContext(ctx, query, group); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting group", "group_id", group.GroupID, "error", err)
		return fmt.Errorf("%w: upsert group %d: %v", ErrStoreUnavailable, group.GroupID, err)
	}
	return nil
}

func (s *sqlxStore) Groups(ctx context.Context, orgID string) ([]Group, error) {
	var groups []Group
	query := `SELECT id, org_id, group_id, title, kind, member_count, last_seen_at
		FROM groups WHERE org_id = ? ORDER BY last_seen_at DESC`

	if err := s.db.SelectContext(ctx, &groups, query, orgID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing groups", "org_id", orgID, "error", err)
		return nil, fmt.Errorf("%w: list groups: %v", ErrStoreUnavailable, err)
	}
	return groups, nil
}

func (s *sqlxStore) UpsertAnalysis(ctx context.Context, analysis *GroupAnalysis) error {
	if analysis == nil {
		return errors.New("cannot upsert nil analysis")
	}

	now := time.Now().UTC()
	analysis.UpdatedAt = now
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	// Update-then-insert: the scope-wide document has a NULL bucket_date,
	// which a plain ON CONFLICT upsert cannot target.
	updateQuery := `
		UPDATE group_analyses SET
			period_days = :period_days,
			total_messages = :total_messages,
			total_polarity = :total_polarity,
			average_sentiment = :average_sentiment,
			sentiment_distribution = :sentiment_distribution,
			user_message_counts = :user_message_counts,
			top_users = :top_users,
			updated_at = :updated_at
		WHERE org_id = :org_id AND group_id = :group_id
		  AND bucket_date IS :bucket_date;
	`

	result, err := tx.NamedExecContext(ctx, updateQuery, analysis)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating analysis",
			"group_id", analysis.GroupID, "error", err)
		return fmt.Errorf("%w: update analysis: %v", ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update analysis: %v", ErrStoreUnavailable, err)
	}

	if affected == 0 {
		insertQuery := `
			INSERT INTO group_analyses (
				org_id, group_id, bucket_date, period_days, total_messages,
				total_polarity, average_sentiment, sentiment_distribution,
				user_message_counts, top_users, created_at, updated_at
			) VALUES (
				:org_id, :group_id, :bucket_date, :period_days, :total_messages,
				:total_polarity, :average_sentiment, :sentiment_distribution,
				:user_message_counts, :top_users, :created_at, :updated_at
			);
		`
		if _, err := tx.NamedExecContext(ctx, insertQuery, analysis); err != nil {
			s.logger.ErrorContext(ctx, "Error inserting analysis",
				"group_id", analysis.GroupID, "error", err)
			return fmt.Errorf("%w: insert analysis: %v", ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Analysis persisted",
		"group_id", analysis.GroupID, "total_messages", analysis.TotalMessages)
	return nil
}

const selectAnalysisColumns = `
	id, org_id, group_id, bucket_date, period_days, total_messages,
	total_polarity, average_sentiment, sentiment_distribution,
	user_message_counts, top_users, created_at, updated_at
`

func (s *sqlxStore) AnalysisForBucket(ctx context.Context, scope Scope, bucket time.Time) (*GroupAnalysis, error) {
	var analysis GroupAnalysis
	var err error

	if bucket.IsZero() {
		query := `SELECT ` + selectAnalysisColumns + `
			FROM group_analyses WHERE org_id = ? AND group_id = ? AND bucket_date IS NULL`
		err = s.db.GetContext(ctx, &analysis, query, scope.OrgID, scope.GroupID)
	} else {
		query := `SELECT ` + selectAnalysisColumns + `
			FROM group_analyses WHERE org_id = ? AND group_id = ? AND bucket_date = ?`
		err = s.db.GetContext(ctx, &analysis, query, scope.OrgID, scope.GroupID, bucket)
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting analysis for bucket",
			"group_id", scope.GroupID, "bucket", bucket, "error", err)
		return nil, fmt.Errorf("%w: get analysis: %v", ErrStoreUnavailable, err)
	}
	return &analysis, nil
}

func (s *sqlxStore) LatestAnalysis(ctx context.Context, scope Scope) (*GroupAnalysis, error) {
	var analysis GroupAnalysis
	query := `SELECT ` + selectAnalysisColumns + `
		FROM group_analyses
		WHERE org_id = ? AND group_id = ?
		ORDER BY bucket_date IS NOT NULL, updated_at DESC
		LIMIT 1`

	err := s.db.GetContext(ctx, &analysis, query, scope.OrgID, scope.GroupID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting latest analysis",
			"group_id", scope.GroupID, "error", err)
		return nil, fmt.Errorf("%w: latest analysis: %v", ErrStoreUnavailable, err)
	}
	return &analysis, nil
}

func (s *sqlxStore) LatestAnalyses(ctx context.Context, orgID string, groupID int64, limit int) ([]GroupAnalysis, error) {
	if limit <= 0 {
		limit = 10
	} else if limit > 100 {
		limit = 100
	}

	var analyses []GroupAnalysis
	var err error

	if groupID != 0 {
		query := `SELECT ` + selectAnalysisColumns + `
			FROM group_analyses WHERE org_id = ? AND group_id = ?
			ORDER BY updated_at DESC LIMIT ?`
		err = s.db.SelectContext(ctx, &analyses, query, orgID, groupID, limit)
	} else {
		query := `SELECT ` + selectAnalysisColumns + `
			FROM group_analyses WHERE org_id = ?
			ORDER BY updated_at DESC LIMIT ?`
		err = s.db.SelectContext(ctx, &analyses, query, orgID, limit)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing latest analyses",
			"org_id", orgID, "group_id", groupID, "error", err)
		return nil, fmt.Errorf("%w: list analyses: %v", ErrStoreUnavailable, err)
	}
	return analyses, nil
}

func (s *sqlxStore) SaveTaskStatus(ctx context.Context, task *IngestTask) error {
	if task == nil {
		return errors.New("cannot save nil task status")
	}

	if task.ID == 0 {
		query := `
			INSERT INTO ingest_tasks (org_id, group_id, kind, status, detail, started_at, stopped_at)
			VALUES (:org_id, :group_id, :kind, :status, :detail, :started_at, :stopped_at);
		`
		result, err := s.db.NamedExecContext(ctx, query, task)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error inserting task status", "kind", task.Kind, "error", err)
			return fmt.Errorf("%w: insert task status: %v", ErrStoreUnavailable, err)
		}
		if id, err := result.LastInsertId(); err == nil {
			//nolint:gosec // row IDs fit in uint
			task.ID = uint(id)
		}
		return nil
	}

	query := `UPDATE ingest_tasks SET status = :status, detail = :detail, stopped_at = :stopped_at WHERE id = :id`
	if _, err := s.db.NamedExecContext(ctx, query, task); err != nil {
		s.logger.ErrorContext(ctx, "Error updating task status", "task_id", task.ID, "error", err)
		return fmt.Errorf("%w: update task status: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
