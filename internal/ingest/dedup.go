// Package ingest filters incoming message batches against what is already
// stored, so re-running an ingestion over the same history is idempotent.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/grouppulse/grouppulse/internal/database"
)

// Filter partitions incoming batches into new and already-known messages
// using a single bulk existence query per batch.
type Filter struct {
	store  database.Store
	logger *slog.Logger
}

// NewFilter creates a deduplication filter backed by the given store.
func NewFilter(store database.Store, logger *slog.Logger) (*Filter, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Filter{
		store:  store,
		logger: logger.With("component", "dedup"),
	}, nil
}

// Partition splits msgs into messages not yet stored and messages already
// known within the scope. Input order is preserved in both halves, and
// duplicates within the batch itself collapse to their first occurrence.
func (f *Filter) Partition(ctx context.Context, scope database.Scope, msgs []database.Message) (fresh, known []database.Message, err error) {
	if len(msgs) == 0 {
		return nil, nil, nil
	}

	ids := make([]int64, 0, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ExternalID)
	}

	existing, err := f.store.ExistingExternalIDs(ctx, scope, ids)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[int64]struct{}, len(msgs))
	for i := range msgs {
		id := msgs[i].ExternalID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, ok := existing[id]; ok {
			known = append(known, msgs[i])
		} else {
			fresh = append(fresh, msgs[i])
		}
	}

	f.logger.DebugContext(ctx, "Batch partitioned",
		"group_id", scope.GroupID, "batch", len(msgs), "fresh", len(fresh), "known", len(known))
	return fresh, known, nil
}
