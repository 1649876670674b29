package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/alcaldia-digital/memoria/store"
)

// GetConversationSummary returns the summary row for a user, or nil when
// the user has none.
func (d *DB) GetConversationSummary(ctx context.Context, userID string) (*store.ConversationSummary, error) {
	stmt := `SELECT user_id, summary_text, updated_ts FROM conversation_summary WHERE user_id = ?`

	var summary store.ConversationSummary
	err := d.db.QueryRowContext(ctx, stmt, userID).Scan(
		&summary.UserID,
		&summary.SummaryText,
		&summary.UpdatedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get conversation summary")
	}
	return &summary, nil
}

// UpsertConversationSummary inserts or overwrites the single summary row
// for a user. Last-writer-wins by commit order.
func (d *DB) UpsertConversationSummary(ctx context.Context, upsert *store.UpsertConversationSummary) (*store.ConversationSummary, error) {
	stmt := `
		INSERT INTO conversation_summary (user_id, summary_text, updated_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			summary_text = excluded.summary_text,
			updated_ts = excluded.updated_ts
		RETURNING user_id, summary_text, updated_ts
	`
	var summary store.ConversationSummary
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID,
		upsert.SummaryText,
		upsert.UpdatedTs,
	).Scan(
		&summary.UserID,
		&summary.SummaryText,
		&summary.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert conversation summary")
	}
	return &summary, nil
}
