package store

import (
	"context"
	"database/sql"
)

// Driver is the relational storage interface. Implementations live under
// store/db.
//
// The one rule every implementation must keep: insert-or-reinforce is a
// single conditional statement keyed on the (user_id, content_hash) unique
// constraint, never a check-then-write sequence. Two concurrent upserts of
// the same fingerprint must both funnel into that statement, otherwise one
// of them is a lost update waiting to happen.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	UpsertMemory(ctx context.Context, upsert *UpsertMemory) (*Memory, error)
	ListMemories(ctx context.Context, find *FindMemory) ([]*Memory, error)

	GetConversationSummary(ctx context.Context, userID string) (*ConversationSummary, error)
	UpsertConversationSummary(ctx context.Context, upsert *UpsertConversationSummary) (*ConversationSummary, error)

	// PurgeUser deletes all memory rows and the conversation summary for a
	// user inside one transaction.
	PurgeUser(ctx context.Context, userID string) error
}
