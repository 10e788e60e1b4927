package model

import "time"

// Listing status values as normalized from storefront pages.
const (
	StatusAvailable = "available"
	StatusPreorder  = "preorder"
	StatusSoldOut   = "soldout"
)

// Listing is one store's representation of a product, keyed by
// (Site, LocalID). There is no vendor-assigned universal SKU; identity
// across stores is inferred separately by the match resolver.
type Listing struct {
	// ID is the internal database row id (0 until persisted).
	ID int64 `db:"id"`

	// Site identifies the storefront this listing was scraped from.
	Site string `db:"site"`

	// LocalID is the listing's identifier within its store.
	LocalID string `db:"local_id"`

	// Name is the raw display name as scraped.
	Name string `db:"name"`

	// Price is the listed price in store currency units (won).
	// Nil when the store does not show a price.
	Price *int64 `db:"price"`

	// Status is one of the Status* constants.
	Status string `db:"status"`

	// Category is the store category the listing was found under.
	Category string `db:"category"`

	// Manufacturer is the manufacturer text as scraped, unnormalized.
	Manufacturer string `db:"manufacturer"`

	// Barcode is the external product code (JAN/EAN) when known.
	Barcode string `db:"barcode"`

	// ImageURL and URL point back at the store.
	ImageURL string `db:"image_url"`
	URL      string `db:"url"`

	// Attributes holds the structured fields produced by the extractor.
	Attributes Attributes `db:"-"`

	// ExtractionMethod records how Attributes were produced
	// (e.g. "rules", "llm"); empty when extraction never ran.
	ExtractionMethod string `db:"extraction_method"`

	// ExtractionConfidence is the extractor's confidence in Attributes.
	ExtractionConfidence float64 `db:"extraction_confidence"`

	// FirstSeenAt is when the listing first appeared in a scrape.
	FirstSeenAt time.Time `db:"first_seen_at"`

	// LastCheckedAt is when the listing was last observed.
	LastCheckedAt time.Time `db:"last_checked_at"`

	// SoldOutAt is set once, on the first transition into soldout,
	// and cleared only by a later restock cycle setting it again.
	SoldOutAt *time.Time `db:"soldout_at"`
}

// StatusChange is an immutable log row recording a status or price
// transition on a listing. Rows are append-only.
type StatusChange struct {
	ID         int64     `db:"id"`
	ListingID  int64     `db:"listing_id"`
	ChangeType string    `db:"change_type"` // "status" or "price"
	OldValue   string    `db:"old_value"`
	NewValue   string    `db:"new_value"`
	ChangedAt  time.Time `db:"changed_at"`
}

// PriceSample is one price-history observation for a listing.
type PriceSample struct {
	ID         int64     `db:"id"`
	ListingID  int64     `db:"listing_id"`
	Price      int64     `db:"price"`
	RecordedAt time.Time `db:"recorded_at"`
}
