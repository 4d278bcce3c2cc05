package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Checkpoint is one historical checkpoint value.
type Checkpoint struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// SaveCheckpoint stores value (JSON-marshaled) under key and appends a
// history row.
func (s *Store) SaveCheckpoint(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", key, err)
	}
	now := s.now().Unix()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO crawl_checkpoints (key, value_json, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value_json = excluded.value_json,
				updated_at = excluded.updated_at`,
			key, string(data), now,
		)
		if err != nil {
			return fmt.Errorf("save checkpoint %s: %w", key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO crawl_checkpoint_history (key, value_json, updated_at)
			VALUES (?, ?, ?)`,
			key, string(data), now,
		)
		if err != nil {
			return fmt.Errorf("append checkpoint history %s: %w", key, err)
		}
		return nil
	})
}

// LoadCheckpoint unmarshals the current checkpoint value into out.
// Returns false when the key has never been saved.
func (s *Store) LoadCheckpoint(ctx context.Context, key string, out any) (bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT value_json FROM crawl_checkpoints WHERE key = ?`, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load checkpoint %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("unmarshal checkpoint %s: %w", key, err)
	}
	return true, nil
}

// CheckpointHistory returns up to limit historical values for key,
// newest first.
func (s *Store) CheckpointHistory(ctx context.Context, key string, limit int) ([]Checkpoint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value_json, updated_at FROM crawl_checkpoint_history
		WHERE key = ? ORDER BY id DESC LIMIT ?`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("query checkpoint history %s: %w", key, err)
	}
	defer rows.Close()

	var history []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var data string
		var updatedAt int64
		if err := rows.Scan(&cp.Key, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Value = json.RawMessage(data)
		cp.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		history = append(history, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint history: %w", err)
	}
	return history, nil
}
