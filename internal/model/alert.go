package model

import "time"

// PendingAlert is one row in the durable alert outbox. A nil SentAt
// marks the row pending; setting SentAt is the sole commit point of
// delivery, so a process restart resumes from exactly the undelivered
// rows.
type PendingAlert struct {
	// ID is the database row id.
	ID int64 `db:"id"`

	// BatchID groups all alerts emitted by one scrape cycle of one
	// store, so a large cycle can be summarized together.
	BatchID string `db:"batch_id"`

	// ListingID references the originating listing row; used for
	// watch-term matching and cross-reference lookup at send time.
	ListingID int64 `db:"listing_id"`

	// ChangeType is the detected change ("new", "restock", ...).
	ChangeType ChangeType `db:"change_type"`

	OldValue string `db:"old_value"`
	NewValue string `db:"new_value"`

	// Snapshot of the listing at detection time, so the rendered
	// message does not depend on later listing updates.
	Site     string `db:"site"`
	Name     string `db:"name"`
	Price    *int64 `db:"price"`
	ImageURL string `db:"image_url"`
	URL      string `db:"url"`

	CreatedAt time.Time  `db:"created_at"`
	SentAt    *time.Time `db:"sent_at"`
}
