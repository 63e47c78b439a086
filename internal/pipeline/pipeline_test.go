package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grouppulse/grouppulse/internal/channel"
	"github.com/grouppulse/grouppulse/internal/database"
	"github.com/grouppulse/grouppulse/internal/sentiment"
)

// memStore is an in-memory database.Store for pipeline tests. Optional
// transient failures can be injected per method name.
type memStore struct {
	database.Store

	mu       sync.Mutex
	messages map[database.Scope]map[int64]database.Message
	analyses map[analysisKey]database.GroupAnalysis
	groups   map[database.Scope]database.Group
	tasks    []database.IngestTask
	failures map[string]int
	nextID   uint
}

type analysisKey struct {
	scope  database.Scope
	bucket time.Time
}

func newMemStore() *memStore {
	return &memStore{
		messages: map[database.Scope]map[int64]database.Message{},
		analyses: map[analysisKey]database.GroupAnalysis{},
		groups:   map[database.Scope]database.Group{},
		failures: map[string]int{},
	}
}

// failOnce schedules n transient failures for the named method.
func (s *memStore) failOnce(method string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = n
}

func (s *memStore) maybeFail(method string) error {
	if n := s.failures[method]; n > 0 {
		s.failures[method] = n - 1
		return fmt.Errorf("%w: injected %s failure", database.ErrStoreUnavailable, method)
	}
	return nil
}

func (s *memStore) SaveMessages(_ context.Context, msgs []database.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail("SaveMessages"); err != nil {
		return 0, err
	}

	saved := 0
	for _, m := range msgs {
		if s.insertLocked(m) {
			saved++
		}
	}
	return saved, nil
}

func (s *memStore) SaveMessage(_ context.Context, msg *database.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail("SaveMessage"); err != nil {
		return false, err
	}
	return s.insertLocked(*msg), nil
}

func (s *memStore) insertLocked(m database.Message) bool {
	scope := m.Scope()
	if s.messages[scope] == nil {
		s.messages[scope] = map[int64]database.Message{}
	}
	if _, exists := s.messages[scope][m.ExternalID]; exists {
		return false
	}
	s.nextID++
	m.ID = s.nextID
	s.messages[scope][m.ExternalID] = m
	return true
}

func (s *memStore) ExistingExternalIDs(_ context.Context, scope database.Scope, ids []int64) (map[int64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail("ExistingExternalIDs"); err != nil {
		return nil, err
	}

	found := map[int64]struct{}{}
	for _, id := range ids {
		if _, ok := s.messages[scope][id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (s *memStore) MessagesByExternalIDs(_ context.Context, scope database.Scope, ids []int64) ([]database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail("MessagesByExternalIDs"); err != nil {
		return nil, err
	}

	var msgs []database.Message
	for _, id := range ids {
		if m, ok := s.messages[scope][id]; ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (s *memStore) UpdateMessageSentiments(_ context.Context, scope database.Scope, updates []database.SentimentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail("UpdateMessageSentiments"); err != nil {
		return err
	}

	for _, u := range updates {
		m, ok := s.messages[scope][u.ExternalID]
		if !ok || m.Sentiment.Valid {
			continue
		}
		m.Sentiment.String = u.Sentiment
		m.Sentiment.Valid = true
		m.Polarity.Float64 = u.Polarity
		m.Polarity.Valid = true
		m.SentimentUpdatedAt.Time = time.Now().UTC()
		m.SentimentUpdatedAt.Valid = true
		s.messages[scope][u.ExternalID] = m
	}
	return nil
}

func (s *memStore) RecentMessages(_ context.Context, scope database.Scope, limit int) ([]database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []database.Message
	for _, m := range s.messages[scope] {
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ExternalID < msgs[j].ExternalID })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *memStore) UpsertGroup(_ context.Context, group *database.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[database.Scope{OrgID: group.OrgID, GroupID: group.GroupID}] = *group
	return nil
}

func (s *memStore) UpsertAnalysis(_ context.Context, analysis *database.GroupAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail("UpsertAnalysis"); err != nil {
		return err
	}

	key := analysisKey{scope: database.Scope{OrgID: analysis.OrgID, GroupID: analysis.GroupID}}
	if analysis.BucketDate.Valid {
		key.bucket = analysis.BucketDate.Time
	}
	s.analyses[key] = *analysis
	return nil
}

func (s *memStore) AnalysisForBucket(_ context.Context, scope database.Scope, bucket time.Time) (*database.GroupAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.maybeFail("AnalysisForBucket"); err != nil {
		return nil, err
	}

	a, ok := s.analyses[analysisKey{scope: scope, bucket: bucket}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memStore) LatestAnalysis(_ context.Context, scope database.Scope) (*database.GroupAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Prefer the scope-wide document.
	if a, ok := s.analyses[analysisKey{scope: scope}]; ok {
		return &a, nil
	}

	var latest *database.GroupAnalysis
	for key, a := range s.analyses {
		if key.scope != scope {
			continue
		}
		a := a
		if latest == nil || key.bucket.After(latest.BucketDate.Time) {
			latest = &a
		}
	}
	return latest, nil
}

func (s *memStore) SaveTaskStatus(_ context.Context, task *database.IngestTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == 0 {
		s.nextID++
		task.ID = s.nextID
	}
	s.tasks = append(s.tasks, *task)
	return nil
}

func (s *memStore) scopeAnalysis(scope database.Scope) (database.GroupAnalysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[analysisKey{scope: scope}]
	return a, ok
}

func (s *memStore) bucketAnalysis(scope database.Scope, bucket time.Time) (database.GroupAnalysis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[analysisKey{scope: scope, bucket: bucket}]
	return a, ok
}

func (s *memStore) messageCount(scope database.Scope) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[scope])
}

// fakeHistory serves pages out of a fixed message list, newest first.
type fakeHistory struct {
	mu      sync.Mutex
	msgs    []channel.Message // sorted by ExternalID descending
	fetches int
	err     error
}

func newFakeHistory(msgs []channel.Message) *fakeHistory {
	sorted := make([]channel.Message, len(msgs))
	copy(sorted, msgs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExternalID > sorted[j].ExternalID })
	return &fakeHistory{msgs: sorted}
}

func (h *fakeHistory) FetchPage(_ context.Context, _ int64, beforeID int64, limit int) ([]channel.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fetches++
	if h.err != nil {
		err := h.err
		h.err = nil
		return nil, err
	}

	var page []channel.Message
	for _, m := range h.msgs {
		if beforeID > 0 && m.ExternalID >= beforeID {
			continue
		}
		page = append(page, m)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

// textClassifier scores deterministically by text prefix.
type textClassifier struct {
	mu    sync.Mutex
	calls int
}

func (c *textClassifier) Classify(_ context.Context, text string) (sentiment.Score, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	switch {
	case strings.HasPrefix(text, "good"):
		return sentiment.Score{Label: sentiment.LabelPositive, Polarity: 0.8}, nil
	case strings.HasPrefix(text, "bad"):
		return sentiment.Score{Label: sentiment.LabelNegative, Polarity: -0.6}, nil
	case strings.HasPrefix(text, "fail"):
		return sentiment.Score{}, fmt.Errorf("model unavailable")
	}
	return sentiment.Score{Label: sentiment.LabelNeutral, Polarity: 0}, nil
}

func (c *textClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func chanMessage(id, sender int64, text string, sentAt time.Time) channel.Message {
	return channel.Message{
		ExternalID: id,
		Text:       text,
		SentAt:     sentAt,
		SenderID:   sender,
		SenderName: fmt.Sprintf("user-%d", sender),
	}
}
