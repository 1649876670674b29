package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/alcaldia-digital/memoria/store"
)

func (d *DB) GetConversationSummary(ctx context.Context, userID string) (*store.ConversationSummary, error) {
	query := `SELECT user_id, summary_text, updated_ts FROM conversation_summary WHERE user_id = $1`

	var summary store.ConversationSummary
	err := d.db.QueryRowContext(ctx, query, userID).Scan(
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

func (d *DB) UpsertConversationSummary(ctx context.Context, upsert *store.UpsertConversationSummary) (*store.ConversationSummary, error) {
	query := `
		INSERT INTO conversation_summary (user_id, summary_text, updated_ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			summary_text = EXCLUDED.summary_text,
			updated_ts = EXCLUDED.updated_ts
		RETURNING user_id, summary_text, updated_ts
	`
	var summary store.ConversationSummary
	err := d.db.QueryRowContext(ctx, query,
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
