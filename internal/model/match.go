package model

// MatchGroup is an inferred set of listings across stores believed to
// be the same physical product. Groups are rebuilt from scratch on
// every resolver run; a listing belongs to at most one group.
type MatchGroup struct {
	// Key names the group and encodes the tier that produced it
	// ("jan_4901234567890", "struct_full_3", ...).
	Key string

	// ListingIDs are the database ids of the member listings.
	ListingIDs []int64

	// Confidence is the resolver's confidence that the members are
	// the same product. Barcode groups are 1.0; structured tiers
	// are strictly lower.
	Confidence float64
}

// MatchEntry is one persisted group membership row.
type MatchEntry struct {
	Key        string  `db:"match_key"`
	ListingID  int64   `db:"listing_id"`
	Confidence float64 `db:"confidence"`
}

// PeerPrice is another store's price for the same matched product,
// attached to alerts for cross-reference.
type PeerPrice struct {
	Site   string `db:"site"`
	Name   string `db:"name"`
	Price  *int64 `db:"price"`
	Status string `db:"status"`
	URL    string `db:"url"`
}
