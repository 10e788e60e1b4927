package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"figtracker/internal/model"
)

// subscriberRow is the flat scan target for the subscribers table.
type subscriberRow struct {
	ChatID       int64     `db:"chat_id"`
	Username     string    `db:"username"`
	AlertNew     int       `db:"alert_new"`
	AlertRestock int       `db:"alert_restock"`
	AlertPrice   int       `db:"alert_price"`
	AlertSoldOut int       `db:"alert_soldout"`
	IsActive     int       `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r subscriberRow) toModel() model.Subscriber {
	return model.Subscriber{
		ChatID:       r.ChatID,
		Username:     r.Username,
		AlertNew:     r.AlertNew != 0,
		AlertRestock: r.AlertRestock != 0,
		AlertPrice:   r.AlertPrice != 0,
		AlertSoldOut: r.AlertSoldOut != 0,
		Active:       r.IsActive != 0,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// GetOrCreateSubscriber returns the subscriber for chatID, creating it
// with default opt-ins on first contact. A previously deactivated
// subscriber is reactivated.
func (s *SQLiteStore) GetOrCreateSubscriber(
	ctx context.Context,
	chatID int64,
	username string,
) (*model.Subscriber, error) {
	now := time.Now().UTC()

	var row subscriberRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM subscribers WHERE chat_id = ?", chatID,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO subscribers (chat_id, username, created_at, updated_at)
			VALUES (?, ?, ?, ?)`,
			chatID, username, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("creating subscriber %d: %w", chatID, err)
		}
	case err != nil:
		return nil, fmt.Errorf("getting subscriber %d: %w", chatID, err)
	default:
		if row.IsActive == 0 {
			_, err := s.db.ExecContext(ctx,
				"UPDATE subscribers SET is_active = 1, updated_at = ? WHERE chat_id = ?",
				now, chatID,
			)
			if err != nil {
				return nil, fmt.Errorf("reactivating subscriber %d: %w", chatID, err)
			}
		}
	}

	if err := s.db.GetContext(ctx, &row,
		"SELECT * FROM subscribers WHERE chat_id = ?", chatID,
	); err != nil {
		return nil, fmt.Errorf("re-reading subscriber %d: %w", chatID, err)
	}

	sub := row.toModel()
	return &sub, nil
}

// optInColumns maps change types to their subscriber opt-in column.
var optInColumns = map[model.ChangeType]string{
	model.ChangeNew:     "alert_new",
	model.ChangeRestock: "alert_restock",
	model.ChangePrice:   "alert_price",
	model.ChangeSoldOut: "alert_soldout",
}

// SetAlertOptIn sets a per-change-type opt-in flag for a subscriber.
func (s *SQLiteStore) SetAlertOptIn(
	ctx context.Context,
	chatID int64,
	t model.ChangeType,
	on bool,
) error {
	col, ok := optInColumns[t]
	if !ok {
		return fmt.Errorf("change type %q has no opt-in flag", t)
	}

	query := fmt.Sprintf(
		"UPDATE subscribers SET %s = ?, updated_at = ? WHERE chat_id = ?", col,
	)
	if _, err := s.db.ExecContext(ctx, query, boolToInt(on), time.Now().UTC(), chatID); err != nil {
		return fmt.Errorf("setting %s for subscriber %d: %w", col, chatID, err)
	}
	return nil
}

// ActiveSubscribers returns every active subscriber.
func (s *SQLiteStore) ActiveSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	var rows []subscriberRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM subscribers WHERE is_active = 1 ORDER BY chat_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying active subscribers: %w", err)
	}

	subs := make([]model.Subscriber, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toModel())
	}
	return subs, nil
}

// DeactivateSubscriber marks a subscriber inactive after the delivery
// channel reported them permanently unreachable. The row is kept so a
// later registration restores their settings.
func (s *SQLiteStore) DeactivateSubscriber(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE subscribers SET is_active = 0, updated_at = ? WHERE chat_id = ?",
		time.Now().UTC(), chatID,
	)
	if err != nil {
		return fmt.Errorf("deactivating subscriber %d: %w", chatID, err)
	}
	return nil
}

// AddWatchTerm stores a lowercased watch keyword for a subscriber,
// enforcing the per-subscriber cap and keyword uniqueness.
func (s *SQLiteStore) AddWatchTerm(
	ctx context.Context,
	chatID int64,
	keyword string,
) (WatchAddResult, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM watch_terms WHERE chat_id = ?", chatID,
	)
	if err != nil {
		return "", fmt.Errorf("counting watch terms for %d: %w", chatID, err)
	}
	if count >= model.MaxWatchTerms {
		return WatchLimit, nil
	}

	var exists int
	err = s.db.GetContext(ctx, &exists,
		"SELECT COUNT(*) FROM watch_terms WHERE chat_id = ? AND keyword = ?",
		chatID, keyword,
	)
	if err != nil {
		return "", fmt.Errorf("checking watch term for %d: %w", chatID, err)
	}
	if exists > 0 {
		return WatchExists, nil
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO watch_terms (chat_id, keyword, created_at) VALUES (?, ?, ?)",
		chatID, keyword, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("adding watch term for %d: %w", chatID, err)
	}
	return WatchAdded, nil
}

// RemoveWatchTerm deletes a watch keyword. Returns whether a row was removed.
func (s *SQLiteStore) RemoveWatchTerm(ctx context.Context, chatID int64, keyword string) (bool, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM watch_terms WHERE chat_id = ? AND keyword = ?", chatID, keyword,
	)
	if err != nil {
		return false, fmt.Errorf("removing watch term for %d: %w", chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading removed watch term count: %w", err)
	}
	return n > 0, nil
}

// WatchTerms returns one subscriber's watch keywords in insertion order.
func (s *SQLiteStore) WatchTerms(ctx context.Context, chatID int64) ([]model.WatchTerm, error) {
	var terms []model.WatchTerm
	err := s.db.SelectContext(ctx, &terms,
		"SELECT * FROM watch_terms WHERE chat_id = ? ORDER BY id", chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying watch terms for %d: %w", chatID, err)
	}
	return terms, nil
}

// AllWatchTerms preloads every subscriber's keywords in one query,
// keyed by chat id. The dispatcher calls this once per poll.
func (s *SQLiteStore) AllWatchTerms(ctx context.Context) (map[int64][]string, error) {
	var terms []model.WatchTerm
	err := s.db.SelectContext(ctx, &terms,
		"SELECT * FROM watch_terms ORDER BY chat_id, id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying all watch terms: %w", err)
	}

	byChat := make(map[int64][]string)
	for _, t := range terms {
		byChat[t.ChatID] = append(byChat[t.ChatID], t.Keyword)
	}
	return byChat, nil
}
