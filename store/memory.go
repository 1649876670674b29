package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// InitialConfidence is assigned on first observation of a fact.
	// Elevated rather than minimal: upstream extraction already implies
	// some signal.
	InitialConfidence = 0.6
	// ReinforceStep is added on every re-observation of the same
	// fingerprint, capped at MaxConfidence.
	ReinforceStep = 0.1
	// MaxConfidence is the ceiling confidence can be reinforced to.
	MaxConfidence = 1.0

	// DefaultImportance is used when a candidate does not state one.
	DefaultImportance int32 = 3
	MinImportance     int32 = 1
	MaxImportance     int32 = 5

	// DefaultTopMemories is the fallback limit for GetTopMemories.
	DefaultTopMemories = 5
)

// Memory is one deduplicated fact about a user. Rows are unique per
// (user_id, content_hash); re-observing the same fingerprint reinforces the
// existing row instead of creating a new one. Expired rows stay on disk and
// are filtered out at read time (lazy expiry).
type Memory struct {
	ID          string
	UserID      string
	Type        string
	Content     string
	ContentHash string
	Importance  int32
	Confidence  float64
	// ExpiresTs is a unix timestamp; nil means the fact never expires.
	ExpiresTs        *int64
	LastReinforcedTs int64
	CreatedTs        int64
}

// MemoryCandidate is a fact extracted upstream from a conversation turn.
// How candidates are derived is out of scope; this closed shape is the only
// contract with the extraction side.
type MemoryCandidate struct {
	Type       string
	Content    string
	Importance *int32
	ExpiresTs  *int64
}

// Validate checks a candidate at the boundary, before it can reach the
// driver.
func (c *MemoryCandidate) Validate() error {
	if c == nil {
		return &ValidationError{Field: "candidate", Reason: "is nil"}
	}
	if strings.TrimSpace(c.Type) == "" {
		return &ValidationError{Field: "type", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(c.Content) == "" {
		return &ValidationError{Field: "content", Reason: "cannot be empty"}
	}
	if c.Importance != nil && (*c.Importance < MinImportance || *c.Importance > MaxImportance) {
		return &ValidationError{
			Field:  "importance",
			Reason: fmt.Sprintf("must be in [%d,%d], got %d", MinImportance, MaxImportance, *c.Importance),
		}
	}
	return nil
}

// UpsertMemory is the driver-level insert-or-reinforce request. All values
// are precomputed by the store so drivers stay dumb: they bind parameters
// into one conditional statement and nothing else.
type UpsertMemory struct {
	// ID is used only when the insert path wins.
	ID          string
	UserID      string
	Type        string
	Content     string
	ContentHash string
	Importance  int32
	ExpiresTs   *int64
	NowTs       int64
}

// FindMemory specifies the conditions for listing memories.
type FindMemory struct {
	UserID      *string
	ContentHash *string
	// ExcludeExpiredAt drops rows whose expires_ts is at or before the
	// given unix timestamp. Rows without an expiry always survive.
	ExcludeExpiredAt *int64
	Limit            *int
}

// MemoryFact is the caller-facing projection of a ranked memory. Scores and
// reinforcement metadata are retrieval-internal and never leave the store.
type MemoryFact struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// RejectedCandidate records one malformed batch item.
type RejectedCandidate struct {
	Index  int
	Reason string
}

// UpsertMemoriesResult reports the outcome of a batch upsert.
type UpsertMemoriesResult struct {
	Upserted int
	Rejected []RejectedCandidate
}

// UpsertMemories writes a batch of candidates for a user. Candidates are
// processed independently: a malformed item is recorded in the result and
// the rest of the batch continues, while a storage failure aborts the batch
// and surfaces to the caller. There is deliberately no whole-batch
// transaction; each candidate is one atomic statement.
func (s *Store) UpsertMemories(ctx context.Context, userID string, candidates []*MemoryCandidate) (*UpsertMemoriesResult, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userID", Reason: "cannot be empty"}
	}

	result := &UpsertMemoriesResult{}
	for i, candidate := range candidates {
		if err := candidate.Validate(); err != nil {
			result.Rejected = append(result.Rejected, RejectedCandidate{Index: i, Reason: err.Error()})
			continue
		}

		importance := DefaultImportance
		if candidate.Importance != nil {
			importance = *candidate.Importance
		}
		upsert := &UpsertMemory{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        candidate.Type,
			Content:     candidate.Content,
			ContentHash: Fingerprint(candidate.Type, candidate.Content),
			Importance:  importance,
			ExpiresTs:   candidate.ExpiresTs,
			NowTs:       s.now().Unix(),
		}
		if _, err := s.driver.UpsertMemory(ctx, upsert); err != nil {
			return result, storageErr("upsert memory", err)
		}
		result.Upserted++
	}
	return result, nil
}

// GetTopMemories returns at most limit live facts for a user, best first.
// Expired facts are excluded entirely, not down-ranked. An error is always
// distinguishable from "no memories": callers that want to degrade to an
// empty context must check the error, never the slice length alone.
func (s *Store) GetTopMemories(ctx context.Context, userID string, limit int) ([]*MemoryFact, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userID", Reason: "cannot be empty"}
	}
	if limit <= 0 {
		limit = DefaultTopMemories
	}

	now := s.now()
	nowTs := now.Unix()
	memories, err := s.driver.ListMemories(ctx, &FindMemory{
		UserID:           &userID,
		ExcludeExpiredAt: &nowTs,
	})
	if err != nil {
		return nil, storageErr("list memories", err)
	}

	RankMemories(memories, now)
	if len(memories) > limit {
		memories = memories[:limit]
	}

	facts := make([]*MemoryFact, 0, len(memories))
	for _, memory := range memories {
		facts = append(facts, &MemoryFact{Type: memory.Type, Content: memory.Content})
	}
	return facts, nil
}

// PurgeUser removes every memory row and the conversation summary for a
// user in one driver transaction: either both are gone or neither is. This
// backs consent withdrawal, so nothing may survive it.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	if userID == "" {
		return &ValidationError{Field: "userID", Reason: "cannot be empty"}
	}
	if err := s.driver.PurgeUser(ctx, userID); err != nil {
		return storageErr("purge user", err)
	}
	s.summaryGenMu.Lock()
	s.summaryGens[userID]++
	s.summaryCache.Delete(userID)
	s.summaryGenMu.Unlock()
	return nil
}
