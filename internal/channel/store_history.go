package channel

import (
	"context"
	"errors"

	"github.com/grouppulse/grouppulse/internal/database"
)

// StoreHistory replays already-stored messages as a History source, so
// backfills and scheduled re-analysis can run without reaching back out to
// the network channel.
type StoreHistory struct {
	store database.Store
	orgID string
}

// NewStoreHistory creates a replay source over the given store.
func NewStoreHistory(store database.Store, orgID string) (*StoreHistory, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if orgID == "" {
		return nil, errors.New("orgID is required")
	}
	return &StoreHistory{store: store, orgID: orgID}, nil
}

// FetchPage returns the next page of stored messages older than beforeID,
// newest first.
func (h *StoreHistory) FetchPage(ctx context.Context, groupID int64, beforeID int64, limit int) ([]Message, error) {
	scope := database.Scope{OrgID: h.orgID, GroupID: groupID}

	stored, err := h.store.MessagesBefore(ctx, scope, beforeID, limit)
	if err != nil {
		return nil, err
	}

	page := make([]Message, 0, len(stored))
	for i := range stored {
		m := &stored[i]
		msg := Message{
			ExternalID: m.ExternalID,
			Text:       m.Text,
			SentAt:     m.SentAt,
			SenderName: m.SenderName,
			FromSelf:   m.FromSelf,
		}
		if m.SenderID.Valid {
			msg.SenderID = m.SenderID.Int64
		}
		page = append(page, msg)
	}
	return page, nil
}
