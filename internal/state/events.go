package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Event types recorded in the crawl event log.
const (
	EventFetchSuccess    = "fetch_success"
	EventFetchFailure    = "fetch_failure"
	EventCrawlDiscovered = "crawl_discovered"
	EventQueueCleared    = "queue_cleared"
	EventCrawlStarted    = "crawl_started"
	EventCrawlFinished   = "crawl_finished"
)

// Event is an immutable log record for observability.
type Event struct {
	EventAt      time.Time
	CanonicalURL string
	URL          string
	EventType    string
	Status       string
	Reason       string
	Detail       string
	DurationMS   int64
}

// EventFilter narrows GetEventLog results. Zero fields are ignored.
type EventFilter struct {
	Since        time.Time
	EventType    string
	CanonicalURL string
	Limit        int
}

// EventBucket aggregates event counts per type over one time bucket.
type EventBucket struct {
	BucketStart time.Time
	Counts      map[string]int
}

// StatusSnapshot summarizes the state store for health reporting.
type StatusSnapshot struct {
	MetadataTotalURLs     int
	MetadataSuccessful    int
	MetadataPending       int
	MetadataDueURLs       int
	FailedURLCount        int
	QueueDepth            int
	MetadataFirstSeenAt   time.Time
	MetadataLastSuccessAt time.Time
}

// RecordEvent appends one event to the log.
func (s *Store) RecordEvent(ctx context.Context, e Event) error {
	if e.EventAt.IsZero() {
		e.EventAt = s.now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertEvent(ctx, tx, e)
	})
}

func insertEvent(ctx context.Context, tx *sql.Tx, e Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_events (event_at, canonical_url, url, event_type, status, reason, detail, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventAt.Unix(), e.CanonicalURL, e.URL, e.EventType, e.Status, e.Reason, e.Detail, e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEventHistory aggregates event counts per type into fixed-width time
// buckets over the trailing window. Buckets with no events are omitted.
func (s *Store) GetEventHistory(ctx context.Context, window time.Duration, bucket time.Duration) ([]EventBucket, error) {
	if bucket <= 0 {
		bucket = time.Minute
	}
	since := s.now().Add(-window).Unix()
	bucketSec := int64(bucket / time.Second)
	if bucketSec <= 0 {
		bucketSec = 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT (event_at / ?) * ? AS bucket_start, event_type, COUNT(*)
		FROM crawl_events
		WHERE event_at >= ?
		GROUP BY bucket_start, event_type
		ORDER BY bucket_start ASC`,
		bucketSec, bucketSec, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query event history: %w", err)
	}
	defer rows.Close()

	var buckets []EventBucket
	for rows.Next() {
		var start int64
		var eventType string
		var count int
		if err := rows.Scan(&start, &eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event bucket: %w", err)
		}
		startAt := time.Unix(start, 0).UTC()
		if len(buckets) == 0 || !buckets[len(buckets)-1].BucketStart.Equal(startAt) {
			buckets = append(buckets, EventBucket{BucketStart: startAt, Counts: map[string]int{}})
		}
		buckets[len(buckets)-1].Counts[eventType] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event history: %w", err)
	}
	return buckets, nil
}

// GetEventLog returns raw events matching the filter, newest first.
func (s *Store) GetEventLog(ctx context.Context, f EventFilter) ([]Event, error) {
	query := `
		SELECT event_at, canonical_url, url, event_type, status, reason, detail, duration_ms
		FROM crawl_events WHERE 1=1`
	var args []any
	if !f.Since.IsZero() {
		query += ` AND event_at >= ?`
		args = append(args, f.Since.Unix())
	}
	if f.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, f.EventType)
	}
	if f.CanonicalURL != "" {
		query += ` AND canonical_url = ?`
		args = append(args, f.CanonicalURL)
	}
	query += ` ORDER BY event_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var at int64
		var canonicalURL, url, status, reason, detail sql.NullString
		if err := rows.Scan(&at, &canonicalURL, &url, &e.EventType, &status, &reason, &detail, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventAt = time.Unix(at, 0).UTC()
		e.CanonicalURL = canonicalURL.String
		e.URL = url.String
		e.Status = status.String
		e.Reason = reason.String
		e.Detail = detail.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event log: %w", err)
	}
	return events, nil
}

// GetStatusSnapshot computes aggregate counts for health reporting.
func (s *Store) GetStatusSnapshot(ctx context.Context) (StatusSnapshot, error) {
	var snap StatusSnapshot
	nowUnix := s.now().Unix()

	var firstSeen, lastSuccess sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN last_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN last_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN last_status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN next_due_at IS NOT NULL AND next_due_at <= ? THEN 1 ELSE 0 END), 0),
			MIN(first_seen_at),
			MAX(last_fetched_at)
		FROM url_metadata`,
		StatusSuccess, StatusPending, StatusFailed, nowUnix,
	).Scan(&snap.MetadataTotalURLs, &snap.MetadataSuccessful, &snap.MetadataPending,
		&snap.FailedURLCount, &snap.MetadataDueURLs, &firstSeen, &lastSuccess)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("query metadata totals: %w", err)
	}
	snap.MetadataFirstSeenAt = scanUnix(firstSeen)
	snap.MetadataLastSuccessAt = scanUnix(lastSuccess)

	depth, err := s.QueueDepth(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	snap.QueueDepth = depth
	return snap, nil
}

// Maintenance prunes events older than the retention window and returns
// the number of pruned rows.
func (s *Store) Maintenance(ctx context.Context, eventRetention time.Duration) (int, error) {
	cutoff := s.now().Add(-eventRetention).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM crawl_events WHERE event_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
