package context

import (
	"context"

	"github.com/stupiduntilnot/querygate/internal/store"
)

// HistoryStore is the subset of the store the provider reads from.
type HistoryStore interface {
	ListMessages(ctx context.Context, conversationID int64) ([]store.Message, error)
	ListQueries(ctx context.Context, userID int64) ([]store.QueryRecord, error)
}

// StoreProvider projects a conversation log plus the owning user's legacy
// query log into one chronological message list.
type StoreProvider struct {
	Store HistoryStore
}

// GetHistory returns the conversation's messages followed by the user's query
// records as user/assistant pairs, each part oldest first.
func (p *StoreProvider) GetHistory(ctx context.Context, conversationID, userID int64) ([]Message, error) {
	stored, err := p.Store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	records, err := p.Store.ListQueries(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := FromStored(stored)
	results = append(results, LegacyPairs(records)...)
	return results, nil
}

// FromStored converts stored conversation messages, normalizing their roles.
func FromStored(stored []store.Message) []Message {
	out := make([]Message, 0, len(stored))
	for _, m := range stored {
		out = append(out, Message{Role: NormalizeRole(m.Role), Content: m.Content})
	}
	return out
}

// LegacyPairs turns query records into interleaved user/assistant messages.
func LegacyPairs(records []store.QueryRecord) []Message {
	out := make([]Message, 0, 2*len(records))
	for _, r := range records {
		out = append(out,
			Message{Role: RoleUser, Content: r.Question},
			Message{Role: RoleAssistant, Content: r.Answer},
		)
	}
	return out
}
