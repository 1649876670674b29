package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver records driver calls for facade-level tests; the real upsert
// semantics are covered by the sqlite driver tests.
type fakeDriver struct {
	upserts       []*UpsertMemory
	listResult    []*Memory
	listErr       error
	upsertErr     error
	summary       *ConversationSummary
	purgedUserIDs []string

	// When set, a summary read signals summaryReadStarted once it has its
	// row in hand, then waits on summaryReadRelease before returning. Lets
	// tests hold a driver read open across other store operations.
	summaryReadStarted chan struct{}
	summaryReadRelease chan struct{}
}

func (f *fakeDriver) GetDB() *sql.DB { return nil }
func (f *fakeDriver) Close() error   { return nil }

func (f *fakeDriver) IsInitialized(context.Context) (bool, error) { return true, nil }
func (f *fakeDriver) Migrate(context.Context) error               { return nil }
func (f *fakeDriver) Ping(context.Context) error                  { return nil }

func (f *fakeDriver) UpsertMemory(_ context.Context, upsert *UpsertMemory) (*Memory, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, upsert)
	return &Memory{
		ID:               upsert.ID,
		UserID:           upsert.UserID,
		Type:             upsert.Type,
		Content:          upsert.Content,
		ContentHash:      upsert.ContentHash,
		Importance:       upsert.Importance,
		Confidence:       InitialConfidence,
		ExpiresTs:        upsert.ExpiresTs,
		LastReinforcedTs: upsert.NowTs,
		CreatedTs:        upsert.NowTs,
	}, nil
}

func (f *fakeDriver) ListMemories(context.Context, *FindMemory) ([]*Memory, error) {
	return f.listResult, f.listErr
}

func (f *fakeDriver) GetConversationSummary(_ context.Context, userID string) (*ConversationSummary, error) {
	var summary *ConversationSummary
	if f.summary != nil && f.summary.UserID == userID {
		summary = f.summary
	}
	if f.summaryReadStarted != nil {
		f.summaryReadStarted <- struct{}{}
		<-f.summaryReadRelease
	}
	return summary, nil
}

func (f *fakeDriver) UpsertConversationSummary(_ context.Context, upsert *UpsertConversationSummary) (*ConversationSummary, error) {
	f.summary = &ConversationSummary{
		UserID:      upsert.UserID,
		SummaryText: upsert.SummaryText,
		UpdatedTs:   upsert.UpdatedTs,
	}
	return f.summary, nil
}

func (f *fakeDriver) PurgeUser(_ context.Context, userID string) error {
	f.purgedUserIDs = append(f.purgedUserIDs, userID)
	f.summary = nil
	return nil
}

func newTestStore(t *testing.T, driver Driver) *Store {
	t.Helper()
	s := New(driver, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func int32Ptr(v int32) *int32 { return &v }

func TestMemoryCandidate_Validate(t *testing.T) {
	tests := []struct {
		name      string
		candidate *MemoryCandidate
		wantErr   bool
	}{
		{"valid minimal", &MemoryCandidate{Type: "pref", Content: "likes tea"}, false},
		{"valid with importance", &MemoryCandidate{Type: "pref", Content: "likes tea", Importance: int32Ptr(5)}, false},
		{"nil candidate", nil, true},
		{"missing type", &MemoryCandidate{Content: "likes tea"}, true},
		{"blank type", &MemoryCandidate{Type: "   ", Content: "likes tea"}, true},
		{"missing content", &MemoryCandidate{Type: "pref"}, true},
		{"blank content", &MemoryCandidate{Type: "pref", Content: " \t"}, true},
		{"importance too low", &MemoryCandidate{Type: "pref", Content: "x", Importance: int32Ptr(0)}, true},
		{"importance too high", &MemoryCandidate{Type: "pref", Content: "x", Importance: int32Ptr(6)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candidate.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var validationErr *ValidationError
				assert.ErrorAs(t, err, &validationErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUpsertMemories_DefaultsAndFingerprint(t *testing.T) {
	driver := &fakeDriver{}
	s := newTestStore(t, driver)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetNowFunc(func() time.Time { return fixed })

	result, err := s.UpsertMemories(context.Background(), "user-1", []*MemoryCandidate{
		{Type: "pref", Content: "Likes Tea "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upserted)
	assert.Empty(t, result.Rejected)

	require.Len(t, driver.upserts, 1)
	upsert := driver.upserts[0]
	assert.Equal(t, "user-1", upsert.UserID)
	assert.Equal(t, DefaultImportance, upsert.Importance, "unspecified importance defaults to 3")
	assert.Equal(t, Fingerprint("pref", "likes tea"), upsert.ContentHash, "hash uses normalized content")
	assert.Equal(t, fixed.Unix(), upsert.NowTs)
	assert.NotEmpty(t, upsert.ID)
}

func TestUpsertMemories_MalformedItemDoesNotAbortBatch(t *testing.T) {
	driver := &fakeDriver{}
	s := newTestStore(t, driver)

	result, err := s.UpsertMemories(context.Background(), "user-1", []*MemoryCandidate{
		{Type: "pref", Content: "likes tea"},
		{Type: "pref"}, // missing content
		{Type: "health", Content: "walks daily", Importance: int32Ptr(4)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Upserted)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 1, result.Rejected[0].Index)
	assert.Contains(t, result.Rejected[0].Reason, "content")
	require.Len(t, driver.upserts, 2, "invalid item never reaches the driver")
}

func TestUpsertMemories_EmptyUserID(t *testing.T) {
	s := newTestStore(t, &fakeDriver{})

	_, err := s.UpsertMemories(context.Background(), "", []*MemoryCandidate{{Type: "pref", Content: "x"}})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestUpsertMemories_StorageFailureSurfaces(t *testing.T) {
	driver := &fakeDriver{upsertErr: errors.New("connection reset")}
	s := newTestStore(t, driver)

	_, err := s.UpsertMemories(context.Background(), "user-1", []*MemoryCandidate{{Type: "pref", Content: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestGetTopMemories_RanksAndProjects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-40 * 24 * time.Hour).Unix()
	driver := &fakeDriver{
		listResult: []*Memory{
			{ID: "a", Type: "pref", Content: "likes tea", Importance: 1, Confidence: 0.6, LastReinforcedTs: stale},
			{ID: "b", Type: "health", Content: "takes medication", Importance: 5, Confidence: 0.9, LastReinforcedTs: stale},
			{ID: "c", Type: "relationship", Content: "daughter visits", Importance: 3, Confidence: 0.7, LastReinforcedTs: stale},
		},
	}
	s := newTestStore(t, driver)
	s.SetNowFunc(func() time.Time { return now })

	facts, err := s.GetTopMemories(context.Background(), "user-1", 2)
	require.NoError(t, err)

	require.Len(t, facts, 2, "limit is applied after ranking")
	assert.Equal(t, &MemoryFact{Type: "health", Content: "takes medication"}, facts[0])
	assert.Equal(t, &MemoryFact{Type: "relationship", Content: "daughter visits"}, facts[1])
}

func TestGetTopMemories_FailureDistinctFromEmpty(t *testing.T) {
	driver := &fakeDriver{listErr: errors.New("disk I/O error")}
	s := newTestStore(t, driver)

	facts, err := s.GetTopMemories(context.Background(), "user-1", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Nil(t, facts)

	driver.listErr = nil
	facts, err = s.GetTopMemories(context.Background(), "user-1", 5)
	require.NoError(t, err)
	assert.Empty(t, facts, "no memories is a success with zero results")
}

func TestPurgeUser_WinsOverInFlightSummaryRead(t *testing.T) {
	driver := &fakeDriver{
		summary:            &ConversationSummary{UserID: "user-1", SummaryText: "talked about the garden", UpdatedTs: 100},
		summaryReadStarted: make(chan struct{}),
		summaryReadRelease: make(chan struct{}),
	}
	s := newTestStore(t, driver)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		summary, err := s.GetConversationSummary(ctx, "user-1")
		assert.NoError(t, err)
		assert.NotNil(t, summary, "read that started before the purge may still return the row")
	}()

	// The in-flight read has its row in hand but has not returned yet;
	// purge commits in the gap.
	<-driver.summaryReadStarted
	require.NoError(t, s.PurgeUser(ctx, "user-1"))
	close(driver.summaryReadRelease)
	<-done
	driver.summaryReadStarted = nil

	summary, err := s.GetConversationSummary(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, summary, "the stale read must not re-fill the cache after the purge")
}

func TestPurgeUser_InvalidatesSummaryCache(t *testing.T) {
	driver := &fakeDriver{}
	s := newTestStore(t, driver)
	ctx := context.Background()

	_, err := s.UpsertConversationSummary(ctx, &UpsertConversationSummary{
		UserID:      "user-1",
		SummaryText: "talked about the garden",
	})
	require.NoError(t, err)

	// Warm the cache.
	summary, err := s.GetConversationSummary(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, summary)

	require.NoError(t, s.PurgeUser(ctx, "user-1"))
	assert.Equal(t, []string{"user-1"}, driver.purgedUserIDs)

	summary, err = s.GetConversationSummary(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, summary, "cached summary must not survive a purge")
}
