// Package analysis maintains running sentiment aggregates for a group.
// Summaries are pure values: folding is side-effect free, and folding one
// message into a summary produces exactly the same result as rebuilding the
// summary from the full message set.
package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/grouppulse/grouppulse/internal/database"
)

// topUserCount is how many most-active users a summary reports.
const topUserCount = 5

// UserCount pairs a sender with their message count. Summaries keep user
// counts as an ordered slice (first-seen order) so that top-user tie-breaks
// are deterministic regardless of how the summary was built.
type UserCount struct {
	SenderID int64 `json:"sender_id"`
	Count    int   `json:"count"`
}

// Summary is the running aggregate for one scope and bucket. A zero
// BucketDate means the scope-wide document produced by backfills.
type Summary struct {
	Scope      database.Scope
	BucketDate time.Time
	PeriodDays int

	TotalMessages    int
	TotalPolarity    float64
	AverageSentiment float64
	Distribution     map[string]int
	UserCounts       []UserCount
	TopUsers         []UserCount
}

// NewSummary returns an empty summary for the given scope and bucket.
func NewSummary(scope database.Scope, bucket time.Time, periodDays int) *Summary {
	return &Summary{
		Scope:        scope,
		BucketDate:   bucket,
		PeriodDays:   periodDays,
		Distribution: map[string]int{},
	}
}

// FoldOne incorporates a single scored message into the summary. Messages
// without a persisted sentiment are counted with neutral polarity zero,
// matching how classification failures degrade.
func (s *Summary) FoldOne(msg *database.Message) {
	sentiment := "neutral"
	polarity := 0.0
	if msg.Scored() {
		sentiment = msg.Sentiment.String
		polarity = msg.Polarity.Float64
	}

	s.TotalMessages++
	s.TotalPolarity += polarity
	s.AverageSentiment = s.TotalPolarity / float64(s.TotalMessages)
	if s.Distribution == nil {
		s.Distribution = map[string]int{}
	}
	s.Distribution[sentiment]++

	if msg.SenderID.Valid {
		s.bumpUser(msg.SenderID.Int64)
	}
	s.TopUsers = topUsers(s.UserCounts)
}

// FoldAll incorporates a batch of scored messages, in order. Folding the
// messages one at a time yields an identical summary.
func (s *Summary) FoldAll(msgs []database.Message) {
	for i := range msgs {
		s.FoldOne(&msgs[i])
	}
}

// bumpUser increments the count for a sender, appending a new entry in
// first-seen order if the sender is unknown.
func (s *Summary) bumpUser(senderID int64) {
	for i := range s.UserCounts {
		if s.UserCounts[i].SenderID == senderID {
			s.UserCounts[i].Count++
			return
		}
	}
	s.UserCounts = append(s.UserCounts, UserCount{SenderID: senderID, Count: 1})
}

// topUsers recomputes the top-N most active users. Ties break by first-seen
// order, which the ordered counts slice preserves.
func topUsers(counts []UserCount) []UserCount {
	ranked := make([]UserCount, len(counts))
	copy(ranked, counts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > topUserCount {
		ranked = ranked[:topUserCount]
	}
	return ranked
}

// Record converts the summary into its storable form.
func (s *Summary) Record() (*database.GroupAnalysis, error) {
	distJSON, err := json.Marshal(s.Distribution)
	if err != nil {
		return nil, fmt.Errorf("failed to encode distribution: %w", err)
	}

	counts := s.UserCounts
	if counts == nil {
		counts = []UserCount{}
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user counts: %w", err)
	}

	top := s.TopUsers
	if top == nil {
		top = []UserCount{}
	}
	topJSON, err := json.Marshal(top)
	if err != nil {
		return nil, fmt.Errorf("failed to encode top users: %w", err)
	}

	record := &database.GroupAnalysis{
		OrgID:            s.Scope.OrgID,
		GroupID:          s.Scope.GroupID,
		PeriodDays:       s.PeriodDays,
		TotalMessages:    s.TotalMessages,
		TotalPolarity:    s.TotalPolarity,
		AverageSentiment: s.AverageSentiment,
		DistributionJSON: string(distJSON),
		UserCountsJSON:   string(countsJSON),
		TopUsersJSON:     string(topJSON),
	}
	if !s.BucketDate.IsZero() {
		record.BucketDate.Valid = true
		record.BucketDate.Time = s.BucketDate
	}
	return record, nil
}

// FromRecord reconstructs a summary from its storable form so the stream can
// keep folding into a bucket across restarts.
func FromRecord(record *database.GroupAnalysis) (*Summary, error) {
	s := &Summary{
		Scope:            database.Scope{OrgID: record.OrgID, GroupID: record.GroupID},
		PeriodDays:       record.PeriodDays,
		TotalMessages:    record.TotalMessages,
		TotalPolarity:    record.TotalPolarity,
		AverageSentiment: record.AverageSentiment,
		Distribution:     map[string]int{},
	}
	if record.BucketDate.Valid {
		s.BucketDate = record.BucketDate.Time
	}

	if record.DistributionJSON != "" {
		if err := json.Unmarshal([]byte(record.DistributionJSON), &s.Distribution); err != nil {
			return nil, fmt.Errorf("failed to decode distribution: %w", err)
		}
	}
	if record.UserCountsJSON != "" {
		if err := json.Unmarshal([]byte(record.UserCountsJSON), &s.UserCounts); err != nil {
			return nil, fmt.Errorf("failed to decode user counts: %w", err)
		}
	}
	if record.TopUsersJSON != "" {
		if err := json.Unmarshal([]byte(record.TopUsersJSON), &s.TopUsers); err != nil {
			return nil, fmt.Errorf("failed to decode top users: %w", err)
		}
	}
	return s, nil
}

// BucketFor returns the UTC day bucket a message falls into.
func BucketFor(sentAt time.Time) time.Time {
	t := sentAt.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
