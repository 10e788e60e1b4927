package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"figtracker/internal/model"
)

// listingRow is the flat scan target for the listings table.
type listingRow struct {
	ID                   int64      `db:"id"`
	Site                 string     `db:"site"`
	LocalID              string     `db:"local_id"`
	Name                 string     `db:"name"`
	Price                *int64     `db:"price"`
	Status               string     `db:"status"`
	Category             string     `db:"category"`
	Manufacturer         string     `db:"manufacturer"`
	Barcode              string     `db:"barcode"`
	ImageURL             string     `db:"image_url"`
	URL                  string     `db:"url"`
	Series               string     `db:"series"`
	CharacterName        string     `db:"character_name"`
	ExtractedMfr         string     `db:"extracted_manufacturer"`
	Scale                string     `db:"scale"`
	Version              string     `db:"version"`
	ProductLine          string     `db:"product_line"`
	ProductType          string     `db:"product_type"`
	ExtractionMethod     string     `db:"extraction_method"`
	ExtractionConfidence float64    `db:"extraction_confidence"`
	FirstSeenAt          time.Time  `db:"first_seen_at"`
	LastCheckedAt        time.Time  `db:"last_checked_at"`
	SoldOutAt            *time.Time `db:"soldout_at"`
}

func (r listingRow) toModel() model.Listing {
	return model.Listing{
		ID:           r.ID,
		Site:         r.Site,
		LocalID:      r.LocalID,
		Name:         r.Name,
		Price:        r.Price,
		Status:       r.Status,
		Category:     r.Category,
		Manufacturer: r.Manufacturer,
		Barcode:      r.Barcode,
		ImageURL:     r.ImageURL,
		URL:          r.URL,
		Attributes: model.Attributes{
			Series:       r.Series,
			Character:    r.CharacterName,
			Manufacturer: r.ExtractedMfr,
			Scale:        r.Scale,
			Version:      r.Version,
			ProductLine:  r.ProductLine,
			ProductType:  r.ProductType,
		},
		ExtractionMethod:     r.ExtractionMethod,
		ExtractionConfidence: r.ExtractionConfidence,
		FirstSeenAt:          r.FirstSeenAt,
		LastCheckedAt:        r.LastCheckedAt,
		SoldOutAt:            r.SoldOutAt,
	}
}

// UpsertListing inserts or updates a listing keyed by (site, local_id)
// and returns the database row id. Scraped fields are refreshed; the
// extraction columns are owned by SaveExtraction and left alone here.
// soldout_at is written exactly once per transition into soldout.
func (s *SQLiteStore) UpsertListing(ctx context.Context, l model.Listing) (int64, error) {
	now := time.Now().UTC()

	var existing struct {
		ID     int64  `db:"id"`
		Status string `db:"status"`
	}
	err := s.db.GetContext(ctx, &existing,
		"SELECT id, status FROM listings WHERE site = ? AND local_id = ?",
		l.Site, l.LocalID,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var soldOutAt *time.Time
		if l.Status == model.StatusSoldOut {
			soldOutAt = &now
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO listings (
				site, local_id, name, price, status, category,
				manufacturer, barcode, image_url, url,
				first_seen_at, last_checked_at, soldout_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Site, l.LocalID, l.Name, l.Price, l.Status, l.Category,
			l.Manufacturer, l.Barcode, l.ImageURL, l.URL,
			now, now, soldOutAt,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting listing %s/%s: %w", l.Site, l.LocalID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading inserted listing id: %w", err)
		}
		return id, nil

	case err != nil:
		return 0, fmt.Errorf("looking up listing %s/%s: %w", l.Site, l.LocalID, err)
	}

	query := `
		UPDATE listings SET
			name = ?, price = ?, status = ?, category = ?,
			manufacturer = ?, image_url = ?, url = ?,
			last_checked_at = ?`
	args := []interface{}{
		l.Name, l.Price, l.Status, l.Category,
		l.Manufacturer, l.ImageURL, l.URL,
		now,
	}

	// Barcodes arrive from detail-page fetches; never blank one out
	// with an empty scrape value.
	if l.Barcode != "" {
		query += ", barcode = ?"
		args = append(args, l.Barcode)
	}
	if l.Status == model.StatusSoldOut && existing.Status != model.StatusSoldOut {
		query += ", soldout_at = ?"
		args = append(args, now)
	}

	query += " WHERE id = ?"
	args = append(args, existing.ID)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("updating listing %s/%s: %w", l.Site, l.LocalID, err)
	}
	return existing.ID, nil
}

// GetListing retrieves a listing by its store-scoped identity.
// Returns nil (no error) when the listing is unknown.
func (s *SQLiteStore) GetListing(ctx context.Context, site, localID string) (*model.Listing, error) {
	var row listingRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM listings WHERE site = ? AND local_id = ?", site, localID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing %s/%s: %w", site, localID, err)
	}
	l := row.toModel()
	return &l, nil
}

// GetListingByID retrieves a listing by database id.
func (s *SQLiteStore) GetListingByID(ctx context.Context, id int64) (*model.Listing, error) {
	var row listingRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM listings WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing %d: %w", id, err)
	}
	l := row.toModel()
	return &l, nil
}

// KnownLocalIDs returns the set of local ids already stored for a site.
func (s *SQLiteStore) KnownLocalIDs(ctx context.Context, site string) (map[string]bool, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT local_id FROM listings WHERE site = ?", site,
	)
	if err != nil {
		return nil, fmt.Errorf("querying known ids for %s: %w", site, err)
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return known, nil
}

// ListingsForMatching returns every listing with the fields the
// identity resolver needs.
func (s *SQLiteStore) ListingsForMatching(ctx context.Context) ([]model.Listing, error) {
	var rows []listingRow
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM listings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying listings for matching: %w", err)
	}

	listings := make([]model.Listing, 0, len(rows))
	for _, r := range rows {
		listings = append(listings, r.toModel())
	}
	return listings, nil
}

// ListingsMissingBarcode returns listings of one site (or all sites when
// site is empty) that have a URL but no stored barcode yet.
func (s *SQLiteStore) ListingsMissingBarcode(ctx context.Context, site string) ([]model.Listing, error) {
	query := "SELECT * FROM listings WHERE barcode = '' AND url != ''"
	var args []interface{}
	if site != "" {
		query += " AND site = ?"
		args = append(args, site)
	}
	query += " ORDER BY site, id"

	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying listings missing barcode: %w", err)
	}

	listings := make([]model.Listing, 0, len(rows))
	for _, r := range rows {
		listings = append(listings, r.toModel())
	}
	return listings, nil
}

// SetBarcode stores an externally fetched product code on a listing.
func (s *SQLiteStore) SetBarcode(ctx context.Context, listingID int64, code string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE listings SET barcode = ? WHERE id = ?", code, listingID,
	)
	if err != nil {
		return fmt.Errorf("setting barcode on listing %d: %w", listingID, err)
	}
	return nil
}

// SaveExtraction persists the structured attributes produced by the
// extractor for a listing.
func (s *SQLiteStore) SaveExtraction(
	ctx context.Context,
	listingID int64,
	attrs model.Attributes,
	method string,
	confidence float64,
) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE listings SET
			series = ?, character_name = ?, extracted_manufacturer = ?,
			scale = ?, version = ?, product_line = ?, product_type = ?,
			extraction_method = ?, extraction_confidence = ?
		WHERE id = ?`,
		attrs.Series, attrs.Character, attrs.Manufacturer,
		attrs.Scale, attrs.Version, attrs.ProductLine, attrs.ProductType,
		method, confidence, listingID,
	)
	if err != nil {
		return fmt.Errorf("saving extraction for listing %d: %w", listingID, err)
	}
	return nil
}

// LogStatusChange appends an immutable status/price transition row.
func (s *SQLiteStore) LogStatusChange(
	ctx context.Context,
	listingID int64,
	changeType, oldValue, newValue string,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_changes (listing_id, change_type, old_value, new_value, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		listingID, changeType, oldValue, newValue, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("logging status change for listing %d: %w", listingID, err)
	}
	return nil
}

// StatusChanges returns the transition log for a listing, oldest first.
func (s *SQLiteStore) StatusChanges(ctx context.Context, listingID int64) ([]model.StatusChange, error) {
	var changes []model.StatusChange
	err := s.db.SelectContext(ctx, &changes,
		"SELECT * FROM status_changes WHERE listing_id = ? ORDER BY id", listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying status changes for listing %d: %w", listingID, err)
	}
	return changes, nil
}

// RecordPrice appends a price-history sample for a listing.
func (s *SQLiteStore) RecordPrice(ctx context.Context, listingID int64, price int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO price_history (listing_id, price, recorded_at) VALUES (?, ?, ?)",
		listingID, price, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording price for listing %d: %w", listingID, err)
	}
	return nil
}
