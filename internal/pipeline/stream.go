package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/grouppulse/grouppulse/internal/analysis"
	"github.com/grouppulse/grouppulse/internal/channel"
	"github.com/grouppulse/grouppulse/internal/database"
	"github.com/grouppulse/grouppulse/internal/sentiment"
)

// Replier generates a conversational reply from recent messages.
type Replier interface {
	GenerateReply(ctx context.Context, messages []database.Message) (string, error)
}

// Stream handles live messages one at a time: dedupe, classify, and fold
// into the daily analysis bucket. Folding is serialized per stream so
// concurrent updates cannot lose increments.
type Stream struct {
	store        database.Store
	resolver     *sentiment.Resolver
	replier      Replier
	sender       channel.Sender
	orgID        string
	autoReply    bool
	replyContext int
	logger       *slog.Logger

	mu sync.Mutex
}

// StreamOptions configures optional stream behavior.
type StreamOptions struct {
	Replier      Replier
	Sender       channel.Sender
	AutoReply    bool
	ReplyContext int
}

// NewStream creates a live-message handler for one organization.
func NewStream(
	store database.Store,
	resolver *sentiment.Resolver,
	orgID string,
	opts StreamOptions,
	logger *slog.Logger,
) (*Stream, error) {
	if store == nil || resolver == nil {
		return nil, errors.New("store and resolver are required")
	}
	if orgID == "" {
		return nil, errors.New("orgID is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stream{
		store:        store,
		resolver:     resolver,
		replier:      opts.Replier,
		sender:       opts.Sender,
		orgID:        orgID,
		autoReply:    opts.AutoReply,
		replyContext: opts.ReplyContext,
		logger:       logger.With("component", "stream"),
	}, nil
}

// HandleMessage processes one live message. Messages from the monitored
// account itself are stored for conversational context but never scored or
// folded; duplicates of already-processed messages are dropped. When
// mentioned is set and auto-reply is enabled, a reply is posted after the
// analytics update.
func (s *Stream) HandleMessage(ctx context.Context, msg channel.Message, group channel.Group, mentioned bool) error {
	scope := database.Scope{OrgID: s.orgID, GroupID: group.GroupID}
	stored := toStored(scope, msg)

	if group.Title != "" {
		if err := s.store.UpsertGroup(ctx, &database.Group{
			OrgID:       scope.OrgID,
			GroupID:     group.GroupID,
			Title:       group.Title,
			Kind:        group.Kind,
			MemberCount: group.MemberCount,
		}); err != nil {
			s.logger.WarnContext(ctx, "Failed to record group metadata",
				"group_id", group.GroupID, "error", err)
		}
	}

	inserted, err := s.store.SaveMessage(ctx, &stored)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.DebugContext(ctx, "Duplicate message dropped",
			"group_id", scope.GroupID, "external_id", msg.ExternalID)
		return nil
	}
	if msg.FromSelf {
		return nil
	}

	resolved, err := s.resolver.Resolve(ctx, []database.Message{stored})
	if err != nil {
		return err
	}

	if err := s.fold(ctx, scope, &resolved[0]); err != nil {
		return err
	}

	if mentioned && s.autoReply {
		s.reply(ctx, scope)
	}
	return nil
}

// fold applies one scored message to its daily bucket under the stream
// lock, so the read-modify-write against the stored bucket is atomic.
func (s *Stream) fold(ctx context.Context, scope database.Scope, msg *database.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := analysis.BucketFor(msg.SentAt)

	record, err := s.store.AnalysisForBucket(ctx, scope, bucket)
	if err != nil {
		return err
	}

	var summary *analysis.Summary
	if record == nil {
		summary = analysis.NewSummary(scope, bucket, 1)
	} else {
		if summary, err = analysis.FromRecord(record); err != nil {
			return err
		}
	}

	summary.FoldOne(msg)

	updated, err := summary.Record()
	if err != nil {
		return err
	}
	if record != nil {
		updated.ID = record.ID
		updated.CreatedAt = record.CreatedAt
	}
	return s.store.UpsertAnalysis(ctx, updated)
}

// reply posts a generated reply using recent messages as context. Reply
// failures are logged and absorbed; the analytics update already landed.
func (s *Stream) reply(ctx context.Context, scope database.Scope) {
	if s.replier == nil || s.sender == nil {
		return
	}

	recent, err := s.store.RecentMessages(ctx, scope, s.replyContext)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load reply context",
			"group_id", scope.GroupID, "error", err)
		return
	}

	text, err := s.replier.GenerateReply(ctx, recent)
	if err != nil {
		s.logger.WarnContext(ctx, "Reply generation failed",
			"group_id", scope.GroupID, "error", err)
		return
	}

	if err := s.sender.SendReply(ctx, scope.GroupID, text); err != nil {
		s.logger.WarnContext(ctx, "Failed to send reply",
			"group_id", scope.GroupID, "error", err)
	}
}
