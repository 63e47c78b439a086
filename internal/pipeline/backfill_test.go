package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/grouppulse/grouppulse/internal/channel"
	"github.com/grouppulse/grouppulse/internal/database"
	"github.com/grouppulse/grouppulse/internal/ingest"
	"github.com/grouppulse/grouppulse/internal/sentiment"
)

func newTestBackfill(t *testing.T, store database.Store, classifier sentiment.Classifier, history channel.History, pageSize int) *Backfill {
	t.Helper()

	filter, err := ingest.NewFilter(store, nil)
	if err != nil {
		t.Fatalf("NewFilter() error: %v", err)
	}
	resolver, err := sentiment.NewResolver(classifier, nil, store, 4, time.Second, nil)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	b, err := NewBackfill(store, filter, resolver, history, pageSize, 2, nil)
	if err != nil {
		t.Fatalf("NewBackfill() error: %v", err)
	}
	return b
}

func TestBackfillRun(t *testing.T) {
	t.Parallel()

	scope := database.Scope{OrgID: "org-1", GroupID: 42}
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	history := []channel.Message{
		chanMessage(1, 100, "good start", day),
		chanMessage(2, 200, "bad news", day.Add(time.Minute)),
		chanMessage(3, 100, "meeting at noon", day.Add(2*time.Minute)),
		chanMessage(4, 300, "good work", day.Add(3*time.Minute)),
		chanMessage(5, 200, "lunch plans", day.Add(4*time.Minute)),
	}

	t.Run("ingests full history and persists the analysis", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		classifier := &textClassifier{}
		b := newTestBackfill(t, store, classifier, newFakeHistory(history), 2)

		summary, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}

		if summary.TotalMessages != 5 {
			t.Errorf("TotalMessages = %d, want 5", summary.TotalMessages)
		}
		wantPolarity := 0.8 - 0.6 + 0 + 0.8 + 0
		if math.Abs(summary.TotalPolarity-wantPolarity) > 1e-9 {
			t.Errorf("TotalPolarity = %v, want %v", summary.TotalPolarity, wantPolarity)
		}
		if math.Abs(summary.AverageSentiment-wantPolarity/5) > 1e-9 {
			t.Errorf("AverageSentiment = %v, want %v", summary.AverageSentiment, wantPolarity/5)
		}
		if summary.Distribution[sentiment.LabelPositive] != 2 ||
			summary.Distribution[sentiment.LabelNegative] != 1 ||
			summary.Distribution[sentiment.LabelNeutral] != 2 {
			t.Errorf("Distribution = %v, want 2 positive, 1 negative, 2 neutral", summary.Distribution)
		}

		if store.messageCount(scope) != 5 {
			t.Errorf("stored %d messages, want 5", store.messageCount(scope))
		}
		record, ok := store.scopeAnalysis(scope)
		if !ok {
			t.Fatal("scope-wide analysis was not persisted")
		}
		if record.TotalMessages != 5 {
			t.Errorf("persisted TotalMessages = %d, want 5", record.TotalMessages)
		}
		if record.BucketDate.Valid {
			t.Error("scope-wide analysis has a bucket date")
		}
	})

	t.Run("rerun converges without reclassifying", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		classifier := &textClassifier{}
		b := newTestBackfill(t, store, classifier, newFakeHistory(history), 2)

		first, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("first Run() error: %v", err)
		}
		callsAfterFirst := classifier.callCount()

		second, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("second Run() error: %v", err)
		}

		if classifier.callCount() != callsAfterFirst {
			t.Errorf("second run made %d extra classifier calls, want 0",
				classifier.callCount()-callsAfterFirst)
		}
		if store.messageCount(scope) != 5 {
			t.Errorf("stored %d messages after rerun, want 5", store.messageCount(scope))
		}
		if second.TotalMessages != first.TotalMessages ||
			math.Abs(second.TotalPolarity-first.TotalPolarity) > 1e-9 {
			t.Errorf("rerun summary %+v diverged from first %+v", second, first)
		}
	})

	t.Run("classification failure degrades without aborting", func(t *testing.T) {
		t.Parallel()

		withFailure := append([]channel.Message{}, history...)
		withFailure = append(withFailure, chanMessage(6, 100, "fail to classify", day.Add(5*time.Minute)))

		store := newMemStore()
		b := newTestBackfill(t, store, &textClassifier{}, newFakeHistory(withFailure), 3)

		summary, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if summary.TotalMessages != 6 {
			t.Errorf("TotalMessages = %d, want 6", summary.TotalMessages)
		}
		if summary.Distribution[sentiment.LabelNeutral] != 3 {
			t.Errorf("Distribution[neutral] = %d, want 3 (two neutral plus one degraded)",
				summary.Distribution[sentiment.LabelNeutral])
		}
	})

	t.Run("transient store failure is retried", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		store.failOnce("SaveMessages", 1)
		b := newTestBackfill(t, store, &textClassifier{}, newFakeHistory(history), 10)

		summary, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if summary.TotalMessages != 5 {
			t.Errorf("TotalMessages = %d, want 5", summary.TotalMessages)
		}
	})

	t.Run("messages from the account itself are excluded", func(t *testing.T) {
		t.Parallel()

		withSelf := append([]channel.Message{}, history...)
		self := chanMessage(7, 999, "good bot reply", day.Add(6*time.Minute))
		self.FromSelf = true
		withSelf = append(withSelf, self)

		store := newMemStore()
		b := newTestBackfill(t, store, &textClassifier{}, newFakeHistory(withSelf), 10)

		summary, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if summary.TotalMessages != 5 {
			t.Errorf("TotalMessages = %d, want 5 (self message excluded)", summary.TotalMessages)
		}
	})

	t.Run("cancellation aborts without persisting the analysis", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		b := newTestBackfill(t, store, &textClassifier{}, newFakeHistory(history), 2)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := b.Run(ctx, scope, Window{}); !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
		if _, ok := store.scopeAnalysis(scope); ok {
			t.Error("cancelled run persisted an analysis document")
		}
	})

	t.Run("empty history produces an empty analysis", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		b := newTestBackfill(t, store, &textClassifier{}, newFakeHistory(nil), 2)

		summary, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if summary.TotalMessages != 0 {
			t.Errorf("TotalMessages = %d, want 0", summary.TotalMessages)
		}
		if record, ok := store.scopeAnalysis(scope); !ok || record.TotalMessages != 0 {
			t.Errorf("empty analysis not persisted: %+v, %v", record, ok)
		}
	})

	t.Run("unresolvable group ends the walk without failing", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		history := newFakeHistory(nil)
		history.err = fmt.Errorf("resolving group: %w", channel.ErrEntityUnresolvable)
		b := newTestBackfill(t, store, &textClassifier{}, history, 2)

		summary, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if summary.TotalMessages != 0 {
			t.Errorf("TotalMessages = %d, want 0", summary.TotalMessages)
		}
		if _, ok := store.scopeAnalysis(scope); !ok {
			t.Error("analysis not persisted after unresolvable group")
		}
	})

	t.Run("user counts survive folding across pages", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		b := newTestBackfill(t, store, &textClassifier{}, newFakeHistory(history), 2)

		summary, err := b.Run(context.Background(), scope, Window{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}

		counts := map[int64]int{}
		for _, uc := range summary.UserCounts {
			counts[uc.SenderID] = uc.Count
		}
		if counts[100] != 2 || counts[200] != 2 || counts[300] != 1 {
			t.Errorf("user counts = %v, want 100:2 200:2 300:1", counts)
		}
		if len(summary.TopUsers) != 3 {
			t.Errorf("TopUsers has %d entries, want 3", len(summary.TopUsers))
		}
	})
}

func TestBackfillWindow(t *testing.T) {
	t.Parallel()

	scope := database.Scope{OrgID: "org-1", GroupID: 42}
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC)
	}

	history := []channel.Message{
		chanMessage(1, 100, "good old news", day(1)),
		chanMessage(2, 100, "bad old news", day(2)),
		chanMessage(3, 200, "good morning", day(5)),
		chanMessage(4, 300, "status update", day(6)),
		chanMessage(5, 200, "good evening", day(9)),
	}

	store := newMemStore()
	classifier := &textClassifier{}
	b := newTestBackfill(t, store, classifier, newFakeHistory(history), 2)

	window := Window{
		From: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	}
	summary, err := b.Run(context.Background(), scope, window)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.TotalMessages != 2 {
		t.Errorf("TotalMessages = %d, want 2 inside the window", summary.TotalMessages)
	}
	if summary.PeriodDays != 4 {
		t.Errorf("PeriodDays = %d, want 4", summary.PeriodDays)
	}
	if math.Abs(summary.TotalPolarity-0.8) > 1e-9 {
		t.Errorf("TotalPolarity = %v, want 0.8", summary.TotalPolarity)
	}
	if n := store.messageCount(scope); n != 2 {
		t.Errorf("stored %d messages, want 2", n)
	}
	// The oldest messages sit below the window, so the second page should
	// already stop the walk.
	if got := classifier.callCount(); got != 2 {
		t.Errorf("classifier calls = %d, want 2", got)
	}
}

func TestBackfillStoreHistoryReplay(t *testing.T) {
	t.Parallel()

	scope := database.Scope{OrgID: "org-1", GroupID: 42}
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	store := newMemStore()
	seed := []database.Message{
		toStored(scope, chanMessage(1, 100, "good start", day)),
		toStored(scope, chanMessage(2, 200, "bad news", day.Add(time.Minute))),
		toStored(scope, chanMessage(3, 100, "status update", day.Add(2*time.Minute))),
	}
	if _, err := store.SaveMessages(context.Background(), seed); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	replay, err := channel.NewStoreHistory(storeWithPaging{store}, scope.OrgID)
	if err != nil {
		t.Fatalf("NewStoreHistory() error: %v", err)
	}

	b := newTestBackfill(t, store, &textClassifier{}, replay, 2)
	summary, err := b.Run(context.Background(), scope, Window{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3", summary.TotalMessages)
	}
}

// storeWithPaging adds MessagesBefore on top of memStore for replay tests.
type storeWithPaging struct {
	*memStore
}

func (s storeWithPaging) MessagesBefore(_ context.Context, scope database.Scope, beforeID int64, limit int) ([]database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []database.Message
	for id, m := range s.messages[scope] {
		if beforeID > 0 && id >= beforeID {
			continue
		}
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ExternalID > msgs[j].ExternalID })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}
