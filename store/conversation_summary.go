package store

import (
	"context"
	"strings"
)

// ConversationSummary is the single rolling summary kept per user. There is
// at most one live row; every save overwrites the previous text. Summaries
// never participate in ranking.
type ConversationSummary struct {
	UserID      string
	SummaryText string
	UpdatedTs   int64
}

// UpsertConversationSummary is the insert-or-overwrite request. UpdatedTs
// is filled in by the store clock.
type UpsertConversationSummary struct {
	UserID      string
	SummaryText string
	UpdatedTs   int64
}

// GetConversationSummary returns the current summary for a user, or nil
// when the user has none yet.
func (s *Store) GetConversationSummary(ctx context.Context, userID string) (*ConversationSummary, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userID", Reason: "cannot be empty"}
	}
	if cached, ok := s.summaryCache.Get(userID); ok {
		return cached.(*ConversationSummary), nil
	}

	gen := s.summaryGen(userID)
	summary, err := s.driver.GetConversationSummary(ctx, userID)
	if err != nil {
		return nil, storageErr("get conversation summary", err)
	}
	if summary != nil {
		s.cacheSummary(userID, gen, summary)
	}
	return summary, nil
}

// UpsertConversationSummary inserts or overwrites the summary for a user.
// Last-writer-wins: concurrent writers race at the storage layer and the
// later commit is kept whole, never merged.
func (s *Store) UpsertConversationSummary(ctx context.Context, upsert *UpsertConversationSummary) (*ConversationSummary, error) {
	if upsert.UserID == "" {
		return nil, &ValidationError{Field: "userID", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(upsert.SummaryText) == "" {
		return nil, &ValidationError{Field: "summaryText", Reason: "cannot be empty"}
	}

	upsert.UpdatedTs = s.now().Unix()
	gen := s.summaryGen(upsert.UserID)
	summary, err := s.driver.UpsertConversationSummary(ctx, upsert)
	if err != nil {
		return nil, storageErr("upsert conversation summary", err)
	}
	s.cacheSummary(upsert.UserID, gen, summary)
	return summary, nil
}

// summaryGen returns the user's purge generation. Cache fills snapshot it
// before the driver call.
func (s *Store) summaryGen(userID string) uint64 {
	s.summaryGenMu.RLock()
	defer s.summaryGenMu.RUnlock()
	return s.summaryGens[userID]
}

// cacheSummary fills the summary cache, unless the user was purged after
// gen was taken. PurgeUser bumps the generation and clears the cache entry
// under the write lock, so a fill holding the read lock either sees the
// bump and drops the stale value, or completes before the purge clears it.
func (s *Store) cacheSummary(userID string, gen uint64, summary *ConversationSummary) {
	s.summaryGenMu.RLock()
	defer s.summaryGenMu.RUnlock()
	if s.summaryGens[userID] != gen {
		return
	}
	s.summaryCache.Set(userID, summary)
}
