package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"figtracker/internal/model"
)

// ReplaceMatchGroups swaps the entire group mapping in one transaction.
// Membership is not additive: re-extraction can move a listing between
// groups, so delete-then-insert keeps readers from ever seeing a
// half-replaced mapping.
func (s *SQLiteStore) ReplaceMatchGroups(ctx context.Context, groups []model.MatchGroup) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning match replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM match_groups"); err != nil {
		return fmt.Errorf("clearing match groups: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx,
		"INSERT INTO match_groups (match_key, listing_id, confidence) VALUES (?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing match insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range groups {
		for _, listingID := range g.ListingIDs {
			if _, err := stmt.ExecContext(ctx, g.Key, listingID, g.Confidence); err != nil {
				return fmt.Errorf("inserting match %s -> %d: %w", g.Key, listingID, err)
			}
		}
	}

	return tx.Commit()
}

// MatchKeyForListing returns the group key a listing belongs to, or ""
// when the listing is unmatched.
func (s *SQLiteStore) MatchKeyForListing(ctx context.Context, listingID int64) (string, error) {
	var key string
	err := s.db.GetContext(ctx, &key,
		"SELECT match_key FROM match_groups WHERE listing_id = ?", listingID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up match key for listing %d: %w", listingID, err)
	}
	return key, nil
}

// PeerPrices returns the other members of a match group with their
// current prices, cheapest first, priced rows before unpriced ones.
func (s *SQLiteStore) PeerPrices(
	ctx context.Context,
	matchKey string,
	excludeListingID int64,
) ([]model.PeerPrice, error) {
	var peers []model.PeerPrice
	err := s.db.SelectContext(ctx, &peers, `
		SELECT l.site, l.name, l.price, l.status, l.url
		FROM match_groups mg
		JOIN listings l ON mg.listing_id = l.id
		WHERE mg.match_key = ? AND mg.listing_id != ?
		ORDER BY l.price IS NULL, l.price ASC`,
		matchKey, excludeListingID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying peer prices for %s: %w", matchKey, err)
	}
	return peers, nil
}

// MatchGroupPrices returns every known positive price in a match group,
// including the queried listing's own. Used for spread checks.
func (s *SQLiteStore) MatchGroupPrices(ctx context.Context, matchKey string) ([]int64, error) {
	var prices []int64
	err := s.db.SelectContext(ctx, &prices, `
		SELECT l.price
		FROM match_groups mg
		JOIN listings l ON mg.listing_id = l.id
		WHERE mg.match_key = ? AND l.price IS NOT NULL AND l.price > 0`,
		matchKey,
	)
	if err != nil {
		return nil, fmt.Errorf("querying group prices for %s: %w", matchKey, err)
	}
	return prices, nil
}
