package chat

import (
	"context"

	"class-chat-service/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// History serves gated, paginated class history oldest first.
type History struct {
	gate  *Gate
	store *Store
}

// NewHistory constructs a History loader.
func NewHistory(gate *Gate, store *Store) *History {
	return &History{gate: gate, store: store}
}

// Get returns page of the class history. Access is checked before the store
// is read.
func (h *History) Get(ctx context.Context, identity models.Identity, classID int64, page, limit int) (models.HistoryPage, error) {
	if err := h.gate.CanAccessClassChat(ctx, identity, classID); err != nil {
		return models.HistoryPage{}, err
	}

	page, limit = clampPaging(page, limit)
	result, err := h.store.Page(ctx, classID, page, limit)
	if err != nil {
		return models.HistoryPage{}, err
	}

	msgs := make([]models.Message, len(result.Messages))
	for i, msg := range result.Messages {
		msgs[len(msgs)-1-i] = msg
	}

	return models.HistoryPage{
		Messages: msgs,
		Page:     page,
		Limit:    limit,
		Total:    result.Total,
		Pages:    (result.Total + limit - 1) / limit,
	}, nil
}

func clampPaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return page, limit
}
