// Package pipeline wires the ingestion stages together: bulk backfill over
// a group's history and per-message handling for the live stream, plus the
// task registry managing both.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/grouppulse/grouppulse/internal/analysis"
	"github.com/grouppulse/grouppulse/internal/channel"
	"github.com/grouppulse/grouppulse/internal/database"
	"github.com/grouppulse/grouppulse/internal/ingest"
	"github.com/grouppulse/grouppulse/internal/sentiment"
)

// Backfill stage names, in the order a run moves through them.
const (
	StageFetching    = "fetching"
	StageFiltering   = "filtering"
	StageClassifying = "classifying"
	StageAggregating = "aggregating"
	StagePersisting  = "persisting"
	StageDone        = "done"
	StageFailed      = "failed"
)

// Backfill ingests a group's full history page by page and produces the
// scope-wide analysis document. Runs are idempotent: messages and their
// classifications persist as the run progresses, so an interrupted run
// resumes cheaply and a repeated run converges to the same summary.
type Backfill struct {
	store       database.Store
	filter      *ingest.Filter
	resolver    *sentiment.Resolver
	history     channel.History
	pageSize    int
	pageRetries int
	logger      *slog.Logger
}

// NewBackfill creates a backfill runner.
func NewBackfill(
	store database.Store,
	filter *ingest.Filter,
	resolver *sentiment.Resolver,
	history channel.History,
	pageSize int,
	pageRetries int,
	logger *slog.Logger,
) (*Backfill, error) {
	if store == nil || filter == nil || resolver == nil || history == nil {
		return nil, errors.New("store, filter, resolver, and history are required")
	}
	if pageSize <= 0 {
		return nil, errors.New("pageSize must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Backfill{
		store:       store,
		filter:      filter,
		resolver:    resolver,
		history:     history,
		pageSize:    pageSize,
		pageRetries: pageRetries,
		logger:      logger.With("component", "backfill"),
	}, nil
}

// Window bounds a backfill to messages sent within [From, To). Zero
// fields leave that side unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether a send time falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Days returns the window length in whole days, or zero when unbounded.
func (w Window) Days() int {
	if w.From.IsZero() || w.To.IsZero() {
		return 0
	}
	return int(w.To.Sub(w.From).Hours() / 24)
}

// Run executes a backfill for the scope over the given window and returns
// the resulting summary. The scope-wide analysis document is upserted
// before returning.
func (b *Backfill) Run(ctx context.Context, scope database.Scope, window Window) (*analysis.Summary, error) {
	started := time.Now()
	summary := analysis.NewSummary(scope, time.Time{}, window.Days())

	var beforeID int64
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			b.logAbort(ctx, scope, StageFetching, pages, summary, err)
			return nil, err
		}

		page, err := b.fetchPage(ctx, scope.GroupID, beforeID)
		if errors.Is(err, channel.ErrEntityUnresolvable) {
			// An unresolvable group yields no history. Persist whatever
			// was folded so far instead of failing the run.
			b.logger.WarnContext(ctx, "Group unresolvable, ending history walk",
				"group_id", scope.GroupID, "pages", pages, "error", err)
			break
		}
		if err != nil {
			b.logAbort(ctx, scope, StageFetching, pages, summary, err)
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		pages++

		scored, err := b.ingestPage(ctx, scope, page, window)
		if err != nil {
			b.logAbort(ctx, scope, StageClassifying, pages, summary, err)
			return nil, err
		}

		summary.FoldAll(scored)

		// Pages come newest first; the oldest ID on this page anchors
		// the next fetch. Once a page dips below the window there is
		// nothing older worth fetching.
		oldest := page[len(page)-1]
		beforeID = oldest.ExternalID
		if !window.From.IsZero() && oldest.SentAt.Before(window.From) {
			break
		}
	}

	record, err := summary.Record()
	if err != nil {
		b.logAbort(ctx, scope, StageAggregating, pages, summary, err)
		return nil, err
	}

	if err := b.withRetries(ctx, func() error {
		return b.store.UpsertAnalysis(ctx, record)
	}); err != nil {
		b.logAbort(ctx, scope, StagePersisting, pages, summary, err)
		return nil, err
	}

	b.logger.InfoContext(ctx, "Backfill completed",
		"group_id", scope.GroupID, "pages", pages,
		"messages", summary.TotalMessages, "duration", time.Since(started))
	return summary, nil
}

// fetchPage pulls one history page, retrying transient failures.
func (b *Backfill) fetchPage(ctx context.Context, groupID, beforeID int64) ([]channel.Message, error) {
	var page []channel.Message
	err := b.withRetries(ctx, func() error {
		var err error
		page, err = b.history.FetchPage(ctx, groupID, beforeID, b.pageSize)
		return err
	})
	return page, err
}

// ingestPage stores the page's new messages and resolves sentiment for the
// whole page, reading back stored rows so earlier classifications are
// reused instead of re-requested.
func (b *Backfill) ingestPage(ctx context.Context, scope database.Scope, page []channel.Message, window Window) ([]database.Message, error) {
	batch := make([]database.Message, 0, len(page))
	ids := make([]int64, 0, len(page))
	for _, m := range page {
		if m.FromSelf || !window.Contains(m.SentAt) {
			continue
		}
		batch = append(batch, toStored(scope, m))
		ids = append(ids, m.ExternalID)
	}
	if len(batch) == 0 {
		return nil, nil
	}

	fresh, _, err := b.filter.Partition(ctx, scope, batch)
	if err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		if err := b.withRetries(ctx, func() error {
			_, err := b.store.SaveMessages(ctx, fresh)
			return err
		}); err != nil {
			return nil, err
		}
	}

	var stored []database.Message
	if err := b.withRetries(ctx, func() error {
		var err error
		stored, err = b.store.MessagesByExternalIDs(ctx, scope, ids)
		return err
	}); err != nil {
		return nil, err
	}

	return b.resolver.Resolve(ctx, stored)
}

// withRetries retries fn on transient store failures. Anything else fails
// immediately.
func (b *Backfill) withRetries(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= b.pageRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrStoreUnavailable) {
			return err
		}
		if attempt < b.pageRetries {
			b.logger.WarnContext(ctx, "Transient store failure, retrying",
				"attempt", attempt+1, "retries", b.pageRetries, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	return err
}

func (b *Backfill) logAbort(ctx context.Context, scope database.Scope, stage string, pages int, summary *analysis.Summary, err error) {
	b.logger.ErrorContext(ctx, "Backfill aborted",
		"group_id", scope.GroupID, "stage", stage, "pages", pages,
		"messages", summary.TotalMessages, "error", err)
}

func toStored(scope database.Scope, m channel.Message) database.Message {
	msg := database.Message{
		OrgID:      scope.OrgID,
		GroupID:    scope.GroupID,
		ExternalID: m.ExternalID,
		Text:       m.Text,
		SentAt:     m.SentAt.UTC(),
		SenderName: m.SenderName,
		FromSelf:   m.FromSelf,
	}
	if m.SenderID != 0 {
		msg.SenderID.Int64 = m.SenderID
		msg.SenderID.Valid = true
	}
	return msg
}
