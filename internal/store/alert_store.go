package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"figtracker/internal/model"
)

// EnqueueAlerts inserts a batch of pending alert rows in one transaction.
func (s *SQLiteStore) EnqueueAlerts(ctx context.Context, alerts []model.PendingAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning alert enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO pending_alerts (
			batch_id, listing_id, change_type, old_value, new_value,
			site, name, price, image_url, url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing alert insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			a.BatchID, a.ListingID, string(a.ChangeType), a.OldValue, a.NewValue,
			a.Site, a.Name, a.Price, a.ImageURL, a.URL, createdAt,
		)
		if err != nil {
			return fmt.Errorf("enqueueing alert for listing %d: %w", a.ListingID, err)
		}
	}

	return tx.Commit()
}

// PendingAlerts returns all unsent rows ordered by (batch_id, id), the
// order the dispatcher drains them in.
func (s *SQLiteStore) PendingAlerts(ctx context.Context) ([]model.PendingAlert, error) {
	var alerts []model.PendingAlert
	err := s.db.SelectContext(ctx, &alerts,
		"SELECT * FROM pending_alerts WHERE sent_at IS NULL ORDER BY batch_id, id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending alerts: %w", err)
	}
	return alerts, nil
}

// OldestPendingCreatedAt returns the creation time of the oldest unsent
// row, or nil when the outbox is empty.
func (s *SQLiteStore) OldestPendingCreatedAt(ctx context.Context) (*time.Time, error) {
	var oldest time.Time
	err := s.db.GetContext(ctx, &oldest,
		"SELECT created_at FROM pending_alerts WHERE sent_at IS NULL ORDER BY created_at LIMIT 1",
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying oldest pending alert: %w", err)
	}
	return &oldest, nil
}

// PendingCountsByType returns unsent row counts grouped by change type.
func (s *SQLiteStore) PendingCountsByType(ctx context.Context) (map[model.ChangeType]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT change_type, COUNT(*) FROM pending_alerts WHERE sent_at IS NULL GROUP BY change_type",
	)
	if err != nil {
		return nil, fmt.Errorf("counting pending alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.ChangeType]int)
	for rows.Next() {
		var (
			changeType string
			count      int
		)
		if err := rows.Scan(&changeType, &count); err != nil {
			return nil, fmt.Errorf("scanning pending count row: %w", err)
		}
		counts[model.ChangeType(changeType)] = count
	}

	return counts, rows.Err()
}

// MarkAlertSent sets sent_at on a single row. Only unsent rows are
// touched, so the null -> non-null transition happens at most once.
func (s *SQLiteStore) MarkAlertSent(ctx context.Context, alertID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pending_alerts SET sent_at = ? WHERE id = ? AND sent_at IS NULL",
		at.UTC(), alertID,
	)
	if err != nil {
		return fmt.Errorf("marking alert %d sent: %w", alertID, err)
	}
	return nil
}

// MarkAllPendingSent flushes the entire pending partition in one pass,
// used by the stale-backlog summary path. Returns the row count.
func (s *SQLiteStore) MarkAllPendingSent(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pending_alerts SET sent_at = ? WHERE sent_at IS NULL", at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("marking all pending alerts sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading marked row count: %w", err)
	}
	return n, nil
}

// PurgeSentAlertsBefore deletes sent rows created before the cutoff.
// Pending rows are never deleted here.
func (s *SQLiteStore) PurgeSentAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM pending_alerts WHERE sent_at IS NOT NULL AND created_at < ?",
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging sent alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading purged row count: %w", err)
	}
	return n, nil
}
