// Package match groups listings from different stores that represent
// the same physical product. No universal SKU exists, so identity is
// inferred through tiered matching: exact barcode first, then
// progressively looser structured-attribute keys.
package match

import (
	"context"
	"fmt"
	"strings"

	"figtracker/internal/logging"
	"figtracker/internal/model"
	"figtracker/internal/store"
)

// Tier confidence constants. Barcode matches are definitionally exact;
// structured tiers are capped strictly below so barcode groups always
// outrank them.
const (
	barcodeConfidence    = 1.0
	structFullCeiling    = 0.95
	structFullFallback   = 0.85
	structLineConfidence = 0.75
	structCharConfidence = 0.60
)

// minStores is the cross-site floor: a group confined to one store
// provides no cross-site value and is discarded.
const minStores = 2

// Matcher is the periodic identity resolver. Each run rebuilds the
// entire group mapping from current listing attributes and swaps it in
// atomically.
type Matcher struct {
	store store.Store
	log   *logging.Logger
}

// New creates a Matcher reading and writing through the given store.
func New(s store.Store, log *logging.Logger) *Matcher {
	return &Matcher{store: s, log: log}
}

// Run executes one full resolver pass and returns the group count.
// Malformed or missing attributes exclude a listing from structured
// tiers but never fail the run.
func (m *Matcher) Run(ctx context.Context) (int, error) {
	listings, err := m.store.ListingsForMatching(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading listings: %w", err)
	}

	groups := BuildGroups(listings)

	if err := m.store.ReplaceMatchGroups(ctx, groups); err != nil {
		return 0, fmt.Errorf("persisting match groups: %w", err)
	}

	m.log.Info("matcher: %d groups across %d listings", len(groups), len(listings))
	return len(groups), nil
}

// BuildGroups computes the full group set for the given listings.
// Tiers are applied in strict priority: a listing claimed by an earlier
// tier is excluded from all later ones. Output order is deterministic
// (first-seen order of each group key).
func BuildGroups(listings []model.Listing) []model.MatchGroup {
	groups, claimed := barcodeGroups(listings)

	var remaining []model.Listing
	for _, l := range listings {
		if !claimed[l.ID] {
			remaining = append(remaining, l)
		}
	}

	groups = append(groups, structuredGroups(remaining)...)
	return groups
}

// barcodeGroups groups listings sharing an exact external product code.
// A code appearing more than once within one store signals corrupted
// scrape data (CDN caching artifacts); such codes are excluded from
// this tier entirely, for every store.
func barcodeGroups(listings []model.Listing) ([]model.MatchGroup, map[int64]bool) {
	siteCodeCount := make(map[string]int)
	for _, l := range listings {
		if l.Barcode == "" {
			continue
		}
		siteCodeCount[l.Site+"\x00"+l.Barcode]++
	}

	badCodes := make(map[string]bool)
	for key, count := range siteCodeCount {
		if count > 1 {
			_, code, _ := strings.Cut(key, "\x00")
			badCodes[code] = true
		}
	}

	byCode := make(map[string][]model.Listing)
	var codeOrder []string
	for _, l := range listings {
		if l.Barcode == "" || badCodes[l.Barcode] {
			continue
		}
		if _, seen := byCode[l.Barcode]; !seen {
			codeOrder = append(codeOrder, l.Barcode)
		}
		byCode[l.Barcode] = append(byCode[l.Barcode], l)
	}

	var groups []model.MatchGroup
	claimed := make(map[int64]bool)
	for _, code := range codeOrder {
		members := byCode[code]
		if distinctSites(members) < minStores {
			continue
		}
		g := model.MatchGroup{
			Key:        "jan_" + code,
			Confidence: barcodeConfidence,
		}
		for _, l := range members {
			g.ListingIDs = append(g.ListingIDs, l.ID)
			claimed[l.ID] = true
		}
		groups = append(groups, g)
	}

	return groups, claimed
}

// structuredGroups applies the three structured tiers in order over
// listings the barcode tier did not claim.
func structuredGroups(listings []model.Listing) []model.MatchGroup {
	// Structured matching requires series + a normalizable character.
	type candidate struct {
		listing  model.Listing
		normChar string
	}
	var candidates []candidate
	for _, l := range listings {
		if l.Attributes.Series == "" {
			continue
		}
		norm := NormalizeCharacter(l.Attributes.Character)
		if norm == "" {
			continue
		}
		candidates = append(candidates, candidate{listing: l, normChar: norm})
	}

	var groups []model.MatchGroup
	claimed := make(map[int64]bool)
	counter := 0

	collect := func(prefix string, keyFn func(candidate) (string, bool), confFn func([]model.Listing) float64) {
		byKey := make(map[string][]model.Listing)
		var keyOrder []string
		for _, c := range candidates {
			if claimed[c.listing.ID] {
				continue
			}
			key, ok := keyFn(c)
			if !ok {
				continue
			}
			if _, seen := byKey[key]; !seen {
				keyOrder = append(keyOrder, key)
			}
			byKey[key] = append(byKey[key], c.listing)
		}

		for _, key := range keyOrder {
			members := byKey[key]
			if distinctSites(members) < minStores {
				continue
			}
			counter++
			g := model.MatchGroup{
				Key:        fmt.Sprintf("%s_%d", prefix, counter),
				Confidence: confFn(members),
			}
			for _, l := range members {
				g.ListingIDs = append(g.ListingIDs, l.ID)
				claimed[l.ID] = true
			}
			groups = append(groups, g)
		}
	}

	// Tier: full structured key.
	collect("struct_full",
		func(c candidate) (string, bool) {
			a := c.listing.Attributes
			if a.Manufacturer == "" || a.ProductType == "" {
				return "", false
			}
			return strings.Join([]string{
				a.Series, c.normChar, a.Manufacturer, a.ProductType, a.Scale, a.Version,
			}, "\x00"), true
		},
		avgConfidenceCapped,
	)

	// Tier: product line.
	collect("struct_line",
		func(c candidate) (string, bool) {
			a := c.listing.Attributes
			if a.ProductLine == "" || a.ProductType == "" {
				return "", false
			}
			return strings.Join([]string{
				a.Series, c.normChar, a.ProductType, a.ProductLine,
			}, "\x00"), true
		},
		func([]model.Listing) float64 { return structLineConfidence },
	)

	// Tier: character only.
	collect("struct_char",
		func(c candidate) (string, bool) {
			a := c.listing.Attributes
			if a.ProductType == "" {
				return "", false
			}
			return strings.Join([]string{
				a.Series, c.normChar, a.ProductType,
			}, "\x00"), true
		},
		func([]model.Listing) float64 { return structCharConfidence },
	)

	return groups
}

// avgConfidenceCapped averages the group's extraction confidences,
// falling back when none are recorded, and caps below the barcode tier.
func avgConfidenceCapped(members []model.Listing) float64 {
	var sum float64
	for _, l := range members {
		sum += l.ExtractionConfidence
	}
	avg := sum / float64(len(members))
	if avg == 0 {
		avg = structFullFallback
	}
	if avg > structFullCeiling {
		avg = structFullCeiling
	}
	return avg
}

func distinctSites(members []model.Listing) int {
	sites := make(map[string]bool, len(members))
	for _, l := range members {
		sites[l.Site] = true
	}
	return len(sites)
}
