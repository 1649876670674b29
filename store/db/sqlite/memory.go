package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/alcaldia-digital/memoria/store"
)

// UpsertMemory inserts a new fact or reinforces the existing row carrying
// the same (user_id, content_hash). The conflict clause is what makes
// concurrent duplicate extraction safe: both writers funnel into one atomic
// statement instead of racing a lookup.
//
// Reinforcement semantics, all enforced in-statement:
//   - confidence grows by one step, capped
//   - importance never goes down
//   - expiry is replaced only when the candidate carries one
func (d *DB) UpsertMemory(ctx context.Context, upsert *store.UpsertMemory) (*store.Memory, error) {
	stmt := `
		INSERT INTO memory (id, user_id, type, content, content_hash, importance, confidence, expires_ts, last_reinforced_ts, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, content_hash) DO UPDATE SET
			confidence = MIN(?, confidence + ?),
			importance = MAX(importance, excluded.importance),
			last_reinforced_ts = excluded.last_reinforced_ts,
			expires_ts = COALESCE(excluded.expires_ts, expires_ts)
		RETURNING id, user_id, type, content, content_hash, importance, confidence, expires_ts, last_reinforced_ts, created_ts
	`
	var memory store.Memory
	var expiresTs sql.NullInt64
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.ID,
		upsert.UserID,
		upsert.Type,
		upsert.Content,
		upsert.ContentHash,
		upsert.Importance,
		store.InitialConfidence,
		upsert.ExpiresTs,
		upsert.NowTs,
		upsert.NowTs,
		store.MaxConfidence,
		store.ReinforceStep,
	).Scan(
		&memory.ID,
		&memory.UserID,
		&memory.Type,
		&memory.Content,
		&memory.ContentHash,
		&memory.Importance,
		&memory.Confidence,
		&expiresTs,
		&memory.LastReinforcedTs,
		&memory.CreatedTs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrap(store.ErrConstraintViolation, err.Error())
		}
		return nil, errors.Wrap(err, "failed to upsert memory")
	}
	if expiresTs.Valid {
		memory.ExpiresTs = &expiresTs.Int64
	}
	return &memory, nil
}

// ListMemories lists memory rows matching the find conditions. Expiry
// filtering happens here so expired rows never leave the driver; they stay
// on disk (lazy expiry) but are invisible to retrieval.
func (d *DB) ListMemories(ctx context.Context, find *store.FindMemory) ([]*store.Memory, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.ContentHash != nil {
		where, args = append(where, "content_hash = ?"), append(args, *find.ContentHash)
	}
	if find.ExcludeExpiredAt != nil {
		where, args = append(where, "(expires_ts IS NULL OR expires_ts > ?)"), append(args, *find.ExcludeExpiredAt)
	}

	query := `SELECT id, user_id, type, content, content_hash, importance, confidence, expires_ts, last_reinforced_ts, created_ts
		FROM memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY last_reinforced_ts DESC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memories")
	}
	defer rows.Close()

	var memories []*store.Memory
	for rows.Next() {
		var memory store.Memory
		var expiresTs sql.NullInt64
		if err := rows.Scan(
			&memory.ID,
			&memory.UserID,
			&memory.Type,
			&memory.Content,
			&memory.ContentHash,
			&memory.Importance,
			&memory.Confidence,
			&expiresTs,
			&memory.LastReinforcedTs,
			&memory.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory")
		}
		if expiresTs.Valid {
			memory.ExpiresTs = &expiresTs.Int64
		}
		memories = append(memories, &memory)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate memories")
	}
	return memories, nil
}

// PurgeUser removes every trace of a user's conversational memory. Both
// deletes run in one transaction so a concurrent reader never observes a
// half-purged user.
func (d *DB) PurgeUser(ctx context.Context, userID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin purge transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory WHERE user_id = ?", userID); err != nil {
		return errors.Wrap(err, "failed to purge memories")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversation_summary WHERE user_id = ?", userID); err != nil {
		return errors.Wrap(err, "failed to purge conversation summary")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit purge transaction")
	}
	return nil
}
