package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/alcaldia-digital/memoria/store"
)

// UpsertMemory inserts a new fact or reinforces the existing row with the
// same (user_id, content_hash), as a single atomic statement. See the
// sqlite driver for the reinforcement semantics; both implementations must
// stay in lockstep.
func (d *DB) UpsertMemory(ctx context.Context, upsert *store.UpsertMemory) (*store.Memory, error) {
	query := `
		INSERT INTO memory (id, user_id, type, content, content_hash, importance, confidence, expires_ts, last_reinforced_ts, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, content_hash) DO UPDATE SET
			confidence = LEAST($11, memory.confidence + $12),
			importance = GREATEST(memory.importance, EXCLUDED.importance),
			last_reinforced_ts = EXCLUDED.last_reinforced_ts,
			expires_ts = COALESCE(EXCLUDED.expires_ts, memory.expires_ts)
		RETURNING id, user_id, type, content, content_hash, importance, confidence, expires_ts, last_reinforced_ts, created_ts
	`
	var memory store.Memory
	var expiresTs sql.NullInt64
	err := d.db.QueryRowContext(ctx, query,
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

// ListMemories lists memory rows matching the find conditions; expired rows
// are filtered in the query and never leave the driver.
func (d *DB) ListMemories(ctx context.Context, find *store.FindMemory) ([]*store.Memory, error) {
	query := `
		SELECT id, user_id, type, content, content_hash, importance, confidence, expires_ts, last_reinforced_ts, created_ts
		FROM memory
		WHERE 1=1
	`
	var args []any
	argIndex := 1

	if find.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, *find.UserID)
		argIndex++
	}
	if find.ContentHash != nil {
		query += fmt.Sprintf(" AND content_hash = $%d", argIndex)
		args = append(args, *find.ContentHash)
		argIndex++
	}
	if find.ExcludeExpiredAt != nil {
		query += fmt.Sprintf(" AND (expires_ts IS NULL OR expires_ts > $%d)", argIndex)
		args = append(args, *find.ExcludeExpiredAt)
		argIndex++
	}

	query += " ORDER BY last_reinforced_ts DESC"

	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
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

// PurgeUser removes all memory rows and the conversation summary for a user
// in one transaction.
func (d *DB) PurgeUser(ctx context.Context, userID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin purge transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory WHERE user_id = $1", userID); err != nil {
		return errors.Wrap(err, "failed to purge memories")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversation_summary WHERE user_id = $1", userID); err != nil {
		return errors.Wrap(err, "failed to purge conversation summary")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit purge transaction")
	}
	return nil
}
