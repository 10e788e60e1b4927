package store

import (
	"context"
	"time"

	"figtracker/internal/model"
)

// WatchAddResult reports the outcome of adding a watch term.
type WatchAddResult string

const (
	WatchAdded  WatchAddResult = "added"
	WatchExists WatchAddResult = "exists"
	WatchLimit  WatchAddResult = "limit"
)

// Store defines the persistence interface shared by the detector,
// resolver, and dispatcher. Their write sets are disjoint tables, so
// no cross-job locking is required beyond SQLite's own serialization.
type Store interface {
	// === Listings ===

	// UpsertListing inserts or updates a listing keyed by
	// (site, local_id) and returns its database id. Extraction
	// fields are left untouched on update; soldout_at is set on the
	// first transition into soldout only.
	UpsertListing(ctx context.Context, l model.Listing) (int64, error)
	GetListing(ctx context.Context, site, localID string) (*model.Listing, error)
	GetListingByID(ctx context.Context, id int64) (*model.Listing, error)
	KnownLocalIDs(ctx context.Context, site string) (map[string]bool, error)
	ListingsForMatching(ctx context.Context) ([]model.Listing, error)
	ListingsMissingBarcode(ctx context.Context, site string) ([]model.Listing, error)
	SetBarcode(ctx context.Context, listingID int64, code string) error
	SaveExtraction(ctx context.Context, listingID int64, attrs model.Attributes, method string, confidence float64) error
	LogStatusChange(ctx context.Context, listingID int64, changeType, oldValue, newValue string) error
	StatusChanges(ctx context.Context, listingID int64) ([]model.StatusChange, error)
	RecordPrice(ctx context.Context, listingID int64, price int64) error

	// === Match groups ===

	// ReplaceMatchGroups atomically swaps the full group mapping.
	ReplaceMatchGroups(ctx context.Context, groups []model.MatchGroup) error
	MatchKeyForListing(ctx context.Context, listingID int64) (string, error)
	PeerPrices(ctx context.Context, matchKey string, excludeListingID int64) ([]model.PeerPrice, error)
	MatchGroupPrices(ctx context.Context, matchKey string) ([]int64, error)

	// === Alert outbox ===

	EnqueueAlerts(ctx context.Context, alerts []model.PendingAlert) error
	PendingAlerts(ctx context.Context) ([]model.PendingAlert, error)
	OldestPendingCreatedAt(ctx context.Context) (*time.Time, error)
	PendingCountsByType(ctx context.Context) (map[model.ChangeType]int, error)
	MarkAlertSent(ctx context.Context, alertID int64, at time.Time) error
	MarkAllPendingSent(ctx context.Context, at time.Time) (int64, error)
	PurgeSentAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// === Subscribers & watch terms ===

	GetOrCreateSubscriber(ctx context.Context, chatID int64, username string) (*model.Subscriber, error)
	SetAlertOptIn(ctx context.Context, chatID int64, t model.ChangeType, on bool) error
	ActiveSubscribers(ctx context.Context) ([]model.Subscriber, error)
	DeactivateSubscriber(ctx context.Context, chatID int64) error
	AddWatchTerm(ctx context.Context, chatID int64, keyword string) (WatchAddResult, error)
	RemoveWatchTerm(ctx context.Context, chatID int64, keyword string) (bool, error)
	WatchTerms(ctx context.Context, chatID int64) ([]model.WatchTerm, error)
	AllWatchTerms(ctx context.Context) (map[int64][]string, error)
}
