package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Lease is a held cooperative lock. It must be released by the same
// owner that acquired it.
type Lease struct {
	Name       string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// TryAcquireLock attempts to take the named lock for owner with the
// given TTL. An expired lease is taken over. On contention it returns
// (nil, existingOwner, nil).
func (s *Store) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (*Lease, string, error) {
	now := s.now()
	lease := &Lease{
		Name:       name,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	var existingOwner string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var holder string
		var expiresAt int64
		err := tx.QueryRowContext(ctx,
			`SELECT owner, expires_at FROM crawl_locks WHERE name = ?`, name,
		).Scan(&holder, &expiresAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// free
		case err != nil:
			return fmt.Errorf("query lock %s: %w", name, err)
		case expiresAt > now.Unix() && holder != owner:
			existingOwner = holder
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO crawl_locks (name, owner, acquired_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				owner = excluded.owner,
				acquired_at = excluded.acquired_at,
				expires_at = excluded.expires_at`,
			name, owner, now.Unix(), lease.ExpiresAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if existingOwner != "" {
		return nil, existingOwner, nil
	}
	return lease, "", nil
}

// ReleaseLock drops the lease if it is still held by the lease owner.
// Releasing a lost or expired lease is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM crawl_locks WHERE name = ? AND owner = ?`, lease.Name, lease.Owner)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lease.Name, err)
	}
	return nil
}

// BreakLock forcibly removes the named lock regardless of owner.
func (s *Store) BreakLock(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM crawl_locks WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("break lock %s: %w", name, err)
	}
	return nil
}
