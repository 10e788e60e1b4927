package model

import "time"

// MaxWatchTerms caps the number of watch keywords one subscriber may hold.
const MaxWatchTerms = 10

// Subscriber is a user registered for alert delivery, addressed by the
// delivery channel's recipient id (Telegram chat id).
type Subscriber struct {
	// ChatID is the delivery-channel recipient identifier.
	ChatID int64 `db:"chat_id"`

	// Username is the display handle, if the channel reported one.
	Username string `db:"username"`

	// Per-change-type opt-ins.
	AlertNew     bool `db:"alert_new"`
	AlertRestock bool `db:"alert_restock"`
	AlertPrice   bool `db:"alert_price"`
	AlertSoldOut bool `db:"alert_soldout"`

	// Active is cleared (never deleted) when the channel reports the
	// recipient permanently unreachable.
	Active bool `db:"is_active"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// WantsType reports whether the subscriber opted into the given change type.
func (s Subscriber) WantsType(t ChangeType) bool {
	switch t {
	case ChangeNew:
		return s.AlertNew
	case ChangeRestock:
		return s.AlertRestock
	case ChangePrice:
		return s.AlertPrice
	case ChangeSoldOut:
		return s.AlertSoldOut
	}
	return false
}

// WatchTerm is a subscriber-owned keyword. A subscriber with at least
// one term receives only alerts whose series, character, or name
// contains one of their terms (case-insensitive).
type WatchTerm struct {
	ID        int64     `db:"id"`
	ChatID    int64     `db:"chat_id"`
	Keyword   string    `db:"keyword"` // stored lowercased
	CreatedAt time.Time `db:"created_at"`
}
