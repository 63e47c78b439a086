package sentiment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/grouppulse/grouppulse/internal/database"
)

// Resolver produces a score for every message in a batch. Already-scored
// messages and cache hits are served without touching the model; only the
// remainder is classified, with at most maxConcurrent calls in flight. A
// failed classification degrades that one message to neutral and never
// fails the batch.
type Resolver struct {
	classifier      Classifier
	cache           *Cache
	store           database.Store
	maxConcurrent   int64
	classifyTimeout time.Duration
	logger          *slog.Logger
}

// NewResolver creates a resolver. The cache and store are optional; when
// nil, resolution still works but every unscored message hits the model.
func NewResolver(
	classifier Classifier,
	cache *Cache,
	store database.Store,
	maxConcurrent int64,
	classifyTimeout time.Duration,
	logger *slog.Logger,
) (*Resolver, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if maxConcurrent <= 0 {
		return nil, errors.New("maxConcurrent must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		classifier:      classifier,
		cache:           cache,
		store:           store,
		maxConcurrent:   maxConcurrent,
		classifyTimeout: classifyTimeout,
		logger:          logger.With("component", "sentiment"),
	}, nil
}

// Resolve fills in Sentiment and Polarity for every message in msgs,
// preserving batch order. Newly classified scores are persisted and cached;
// degraded neutral scores for failed classifications are applied to the
// returned messages only, so a later run can retry them.
func (r *Resolver) Resolve(ctx context.Context, msgs []database.Message) ([]database.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	resolved := make([]database.Message, len(msgs))
	copy(resolved, msgs)

	var pending []int
	cacheHits := 0
	for i := range resolved {
		if resolved[i].Scored() {
			continue
		}
		if r.cache != nil {
			if score, ok := r.cache.Get(resolved[i].Scope(), resolved[i].ExternalID); ok {
				applyScore(&resolved[i], score)
				cacheHits++
				continue
			}
		}
		pending = append(pending, i)
	}

	if len(pending) == 0 {
		r.logger.DebugContext(ctx, "Batch resolved without classification",
			"batch", len(msgs), "cache_hits", cacheHits)
		return resolved, nil
	}

	classified, err := r.classifyPending(ctx, resolved, pending)
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Batch resolved",
		"batch", len(msgs), "cache_hits", cacheHits,
		"classified", len(classified), "degraded", len(pending)-len(classified))

	if len(classified) > 0 {
		r.persist(ctx, resolved, classified)
	}
	return resolved, nil
}

// classifyPending classifies the messages at the pending indexes with
// bounded concurrency. It returns the indexes that classified successfully;
// the rest have been degraded to neutral in place.
func (r *Resolver) classifyPending(ctx context.Context, msgs []database.Message, pending []int) ([]int, error) {
	sem := semaphore.NewWeighted(r.maxConcurrent)

	var mu sync.Mutex
	var wg sync.WaitGroup
	var classified []int

	for _, idx := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer sem.Release(1)

			msg := &msgs[idx]
			score, err := r.classifyOne(ctx, msg.Text)
			if err != nil {
				r.logger.WarnContext(ctx, "Classification failed, degrading to neutral",
					"group_id", msg.GroupID, "external_id", msg.ExternalID, "error", err)
				applyScore(msg, Neutral)
				return
			}

			applyScore(msg, score)
			if r.cache != nil {
				r.cache.Put(msg.Scope(), msg.ExternalID, score)
			}

			mu.Lock()
			classified = append(classified, idx)
			mu.Unlock()
		}(idx)
	}

	wg.Wait()

	// A cancelled batch must not surface degraded scores as results.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return classified, nil
}

func (r *Resolver) classifyOne(ctx context.Context, text string) (Score, error) {
	if r.classifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.classifyTimeout)
		defer cancel()
	}

	score, err := r.classifier.Classify(ctx, text)
	if err != nil {
		return Score{}, err
	}
	if !ValidLabel(score.Label) {
		return Score{}, errors.New("classifier returned unknown label: " + score.Label)
	}
	return score, nil
}

// persist writes newly classified scores back to the store. Persistence is
// best effort here: a store failure costs a re-classification later, not
// the batch.
func (r *Resolver) persist(ctx context.Context, msgs []database.Message, classified []int) {
	if r.store == nil {
		return
	}

	byScope := make(map[database.Scope][]database.SentimentUpdate)
	for _, idx := range classified {
		msg := &msgs[idx]
		byScope[msg.Scope()] = append(byScope[msg.Scope()], database.SentimentUpdate{
			ExternalID: msg.ExternalID,
			Sentiment:  msg.Sentiment.String,
			Polarity:   msg.Polarity.Float64,
		})
	}

	for scope, updates := range byScope {
		if err := r.store.UpdateMessageSentiments(ctx, scope, updates); err != nil {
			r.logger.WarnContext(ctx, "Failed to persist sentiment scores",
				"group_id", scope.GroupID, "count", len(updates), "error", err)
		}
	}
}

func applyScore(msg *database.Message, score Score) {
	msg.Sentiment.String = score.Label
	msg.Sentiment.Valid = true
	msg.Polarity.Float64 = score.Polarity
	msg.Polarity.Valid = true
}
