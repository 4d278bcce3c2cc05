package state

import (
	"context"
	"database/sql"
	"fmt"
)

// EnqueueURLs adds URLs to the pending queue. A metadata row is created
// on first sight. URLs fetched successfully within the min-fetch-interval
// are skipped unless force is set. Returns the number of URLs actually
// enqueued; re-enqueueing a queued URL refreshes its row without growing
// the queue.
func (s *Store) EnqueueURLs(ctx context.Context, urls []string, reason string, priority int, force bool) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	now := s.now()
	cutoff := now.Add(-s.minFetchInterval).Unix()
	enqueued := 0

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, u := range urls {
			if u == "" {
				continue
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO url_metadata (canonical_url, url, first_seen_at, last_status)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(canonical_url) DO NOTHING`,
				u, u, now.Unix(), StatusPending,
			)
			if err != nil {
				return fmt.Errorf("ensure metadata for %s: %w", u, err)
			}

			if !force {
				var recent int
				err := tx.QueryRowContext(ctx, `
					SELECT COUNT(*) FROM url_metadata
					WHERE canonical_url = ? AND last_status = ? AND last_fetched_at >= ?`,
					u, StatusSuccess, cutoff,
				).Scan(&recent)
				if err != nil {
					return fmt.Errorf("check recent fetch for %s: %w", u, err)
				}
				if recent > 0 {
					continue
				}
			}

			var queued int
			err = tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM crawl_queue WHERE canonical_url = ?`, u,
			).Scan(&queued)
			if err != nil {
				return fmt.Errorf("check queue for %s: %w", u, err)
			}

			forceVal := 0
			if force {
				forceVal = 1
			}
			// Nanosecond enqueue times keep dequeue order deterministic
			// within a batch.
			_, err = tx.ExecContext(ctx, `
				INSERT INTO crawl_queue (canonical_url, priority, reason, enqueued_at, force)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(canonical_url) DO UPDATE SET
					priority = MAX(crawl_queue.priority, excluded.priority),
					reason = excluded.reason,
					force = MAX(crawl_queue.force, excluded.force)`,
				u, priority, reason, now.UnixNano()+int64(i), forceVal,
			)
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", u, err)
			}
			if queued == 0 {
				enqueued++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return enqueued, nil
}

// DequeueBatch removes and returns up to n URLs ordered by priority
// descending, then enqueue time ascending.
func (s *Store) DequeueBatch(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	var urls []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT canonical_url FROM crawl_queue
			ORDER BY priority DESC, enqueued_at ASC
			LIMIT ?`, n)
		if err != nil {
			return fmt.Errorf("select queue batch: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				return fmt.Errorf("scan queue entry: %w", err)
			}
			urls = append(urls, u)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate queue: %w", err)
		}

		for _, u := range urls {
			if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_queue WHERE canonical_url = ?`, u); err != nil {
				return fmt.Errorf("dequeue %s: %w", u, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

// QueueDepth returns the number of pending queue entries.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// RequeueFailedURLs puts every failed URL back on the queue and returns
// how many were added.
func (s *Store) RequeueFailedURLs(ctx context.Context) (int, error) {
	now := s.now()
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO crawl_queue (canonical_url, priority, reason, enqueued_at, force)
			SELECT canonical_url, 0, 'requeue_failed', ?, 1
			FROM url_metadata WHERE last_status = ?
			ON CONFLICT(canonical_url) DO NOTHING`,
			now.UnixNano(), StatusFailed,
		)
		if err != nil {
			return fmt.Errorf("requeue failed urls: %w", err)
		}
		n, _ := res.RowsAffected()
		count = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ClearQueue removes every queue entry, records a queue_cleared event
// with the given reason, and returns the number of removed entries.
func (s *Store) ClearQueue(ctx context.Context, reason string) (int, error) {
	now := s.now()
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM crawl_queue`)
		if err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}
		n, _ := res.RowsAffected()
		count = int(n)
		return insertEvent(ctx, tx, Event{
			EventAt:   now,
			EventType: EventQueueCleared,
			Reason:    reason,
			Detail:    fmt.Sprintf("removed %d entries", count),
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
