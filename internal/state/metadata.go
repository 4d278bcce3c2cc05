package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// URLMetadata is the crawler's per-URL state. Zero time values map to
// NULL columns.
type URLMetadata struct {
	CanonicalURL      string
	URL               string
	FirstSeenAt       time.Time
	LastFetchedAt     time.Time
	LastFailureAt     time.Time
	LastStatus        string
	NextDueAt         time.Time
	RetryCount        int
	LastFailureReason string
	MarkdownRelPath   string
}

// UpsertURLMetadata inserts or replaces the metadata row for a URL.
// FirstSeenAt is preserved from an existing row when the record leaves
// it zero.
func (s *Store) UpsertURLMetadata(ctx context.Context, m URLMetadata) error {
	if m.CanonicalURL == "" {
		return fmt.Errorf("upsert url metadata: empty canonical url")
	}
	if m.LastStatus == "" {
		m.LastStatus = StatusPending
	}
	firstSeen := m.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO url_metadata (
			canonical_url, url, first_seen_at, last_fetched_at, last_failure_at,
			last_status, next_due_at, retry_count, last_failure_reason, markdown_rel_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(canonical_url) DO UPDATE SET
			url = excluded.url,
			last_fetched_at = excluded.last_fetched_at,
			last_failure_at = excluded.last_failure_at,
			last_status = excluded.last_status,
			next_due_at = excluded.next_due_at,
			retry_count = excluded.retry_count,
			last_failure_reason = excluded.last_failure_reason,
			markdown_rel_path = excluded.markdown_rel_path`,
		m.CanonicalURL, m.URL, firstSeen.Unix(),
		nullableUnix(m.LastFetchedAt), nullableUnix(m.LastFailureAt),
		m.LastStatus, nullableUnix(m.NextDueAt), m.RetryCount,
		m.LastFailureReason, m.MarkdownRelPath,
	)
	if err != nil {
		return fmt.Errorf("upsert url metadata: %w", err)
	}
	return nil
}

// LoadURLMetadata returns the metadata row for a canonical URL, or
// (nil, nil) when the URL is unknown.
func (s *Store) LoadURLMetadata(ctx context.Context, canonicalURL string) (*URLMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT canonical_url, url, first_seen_at, last_fetched_at, last_failure_at,
		       last_status, next_due_at, retry_count, last_failure_reason, markdown_rel_path
		FROM url_metadata WHERE canonical_url = ?`, canonicalURL)

	var (
		m                                    URLMetadata
		firstSeen                            int64
		lastFetched, lastFailure, nextDue    sql.NullInt64
		lastFailureReason, markdownRelPath   sql.NullString
	)
	err := row.Scan(&m.CanonicalURL, &m.URL, &firstSeen, &lastFetched, &lastFailure,
		&m.LastStatus, &nextDue, &m.RetryCount, &lastFailureReason, &markdownRelPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load url metadata: %w", err)
	}

	m.FirstSeenAt = time.Unix(firstSeen, 0).UTC()
	m.LastFetchedAt = scanUnix(lastFetched)
	m.LastFailureAt = scanUnix(lastFailure)
	m.NextDueAt = scanUnix(nextDue)
	m.LastFailureReason = lastFailureReason.String
	m.MarkdownRelPath = markdownRelPath.String
	return &m, nil
}

// WasRecentlyFetched reports whether the URL was fetched successfully
// within the given interval.
func (s *Store) WasRecentlyFetched(ctx context.Context, canonicalURL string, interval time.Duration) (bool, error) {
	cutoff := s.now().Add(-interval).Unix()
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM url_metadata
		WHERE canonical_url = ? AND last_status = ? AND last_fetched_at >= ?`,
		canonicalURL, StatusSuccess, cutoff,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check recent fetch: %w", err)
	}
	return n > 0, nil
}

// RecordFetchSuccess updates metadata after a successful fetch and emits
// a fetch_success event.
func (s *Store) RecordFetchSuccess(ctx context.Context, canonicalURL, url, markdownRelPath string, duration time.Duration) error {
	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO url_metadata (canonical_url, url, first_seen_at, last_fetched_at, last_status, retry_count, markdown_rel_path)
			VALUES (?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT(canonical_url) DO UPDATE SET
				url = excluded.url,
				last_fetched_at = excluded.last_fetched_at,
				last_status = excluded.last_status,
				retry_count = 0,
				last_failure_reason = NULL,
				markdown_rel_path = excluded.markdown_rel_path`,
			canonicalURL, url, now.Unix(), now.Unix(), StatusSuccess, markdownRelPath,
		)
		if err != nil {
			return fmt.Errorf("record fetch success: %w", err)
		}
		return insertEvent(ctx, tx, Event{
			EventAt:      now,
			CanonicalURL: canonicalURL,
			URL:          url,
			EventType:    EventFetchSuccess,
			Status:       StatusSuccess,
			DurationMS:   duration.Milliseconds(),
		})
	})
	return err
}

// RecordFetchFailure updates metadata after a failed fetch, bumping the
// retry count, and emits a fetch_failure event.
func (s *Store) RecordFetchFailure(ctx context.Context, canonicalURL, url, reason string, duration time.Duration) error {
	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO url_metadata (canonical_url, url, first_seen_at, last_failure_at, last_status, retry_count, last_failure_reason)
			VALUES (?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(canonical_url) DO UPDATE SET
				url = excluded.url,
				last_failure_at = excluded.last_failure_at,
				last_status = excluded.last_status,
				retry_count = url_metadata.retry_count + 1,
				last_failure_reason = excluded.last_failure_reason`,
			canonicalURL, url, now.Unix(), now.Unix(), StatusFailed, reason,
		)
		if err != nil {
			return fmt.Errorf("record fetch failure: %w", err)
		}
		return insertEvent(ctx, tx, Event{
			EventAt:      now,
			CanonicalURL: canonicalURL,
			URL:          url,
			EventType:    EventFetchFailure,
			Status:       StatusFailed,
			Reason:       reason,
			DurationMS:   duration.Milliseconds(),
		})
	})
	return err
}
