// Package detect diffs freshly scraped listings against stored state
// and produces the typed change stream that feeds the alert outbox.
package detect

import (
	"context"
	"fmt"
	"strconv"

	"figtracker/internal/extract"
	"figtracker/internal/logging"
	"figtracker/internal/model"
	"figtracker/internal/store"
)

// minBarcodeLen filters truncated codes picked up from detail pages.
const minBarcodeLen = 8

// Detector detects new listings, restocks, sold-outs, and price moves
// for one store per scrape cycle.
type Detector struct {
	store     store.Store
	extractor extract.Extractor
	log       *logging.Logger
}

// New creates a Detector writing through the given store.
func New(s store.Store, ex extract.Extractor, log *logging.Logger) *Detector {
	return &Detector{store: s, extractor: ex, log: log}
}

// ProcessListings compares the full scraped listing set for one store
// against stored state. Every listing is upserted; status transitions
// and price moves are logged to history; new listings get attribute
// extraction before persisting. A failure on one listing skips that
// listing only; the rest of the batch still commits.
func (d *Detector) ProcessListings(
	ctx context.Context,
	site string,
	listings []model.Listing,
) ([]model.Change, error) {
	known, err := d.store.KnownLocalIDs(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("loading known listings for %s: %w", site, err)
	}

	var changes []model.Change
	for _, l := range listings {
		cs, err := d.processOne(ctx, l, known[l.LocalID])
		if err != nil {
			d.log.Warn("[%s] skipping listing %s: %v", site, l.LocalID, err)
			continue
		}
		changes = append(changes, cs...)
	}

	d.logSummary(site, changes)
	return changes, nil
}

// processOne handles a single scraped listing: change detection first
// (against the stored row), then the upsert and side effects.
func (d *Detector) processOne(
	ctx context.Context,
	l model.Listing,
	isKnown bool,
) ([]model.Change, error) {
	var changes []model.Change

	var existing *model.Listing
	if isKnown {
		var err error
		existing, err = d.store.GetListing(ctx, l.Site, l.LocalID)
		if err != nil {
			return nil, err
		}
	}

	id, err := d.store.UpsertListing(ctx, l)
	if err != nil {
		return nil, err
	}
	l.ID = id

	if existing == nil {
		// Only "new" may occur without prior state.
		changes = append(changes, model.Change{
			Type:     model.ChangeNew,
			Listing:  l,
			NewValue: l.Status,
		})
	}

	if existing != nil {
		statusChanges, err := d.checkExisting(ctx, *existing, l)
		if err != nil {
			return nil, err
		}
		changes = append(changes, statusChanges...)
	} else {
		d.extractNew(ctx, l)
	}

	// Price history gets a sample on every cycle with a known price,
	// whether or not it changed.
	if l.Price != nil {
		if err := d.store.RecordPrice(ctx, id, *l.Price); err != nil {
			return nil, err
		}
	}

	return changes, nil
}

// checkExisting compares stored state against the fresh observation and
// emits status/price changes. Status transitions are always logged to
// the history table regardless of which alert type they map to.
func (d *Detector) checkExisting(
	ctx context.Context,
	old, fresh model.Listing,
) ([]model.Change, error) {
	var changes []model.Change

	if old.Status != fresh.Status {
		switch {
		case old.Status == model.StatusSoldOut && fresh.Status == model.StatusAvailable:
			changes = append(changes, model.Change{
				Type:     model.ChangeRestock,
				Listing:  fresh,
				OldValue: model.StatusSoldOut,
				NewValue: model.StatusAvailable,
			})
		case fresh.Status == model.StatusSoldOut:
			changes = append(changes, model.Change{
				Type:     model.ChangeSoldOut,
				Listing:  fresh,
				OldValue: old.Status,
				NewValue: model.StatusSoldOut,
			})
		default:
			changes = append(changes, model.Change{
				Type:     model.ChangeStatus,
				Listing:  fresh,
				OldValue: old.Status,
				NewValue: fresh.Status,
			})
		}

		if err := d.store.LogStatusChange(ctx, fresh.ID, "status", old.Status, fresh.Status); err != nil {
			return nil, err
		}
	}

	if old.Price != nil && fresh.Price != nil && *old.Price != *fresh.Price {
		oldVal := strconv.FormatInt(*old.Price, 10)
		newVal := strconv.FormatInt(*fresh.Price, 10)
		changes = append(changes, model.Change{
			Type:     model.ChangePrice,
			Listing:  fresh,
			OldValue: oldVal,
			NewValue: newVal,
		})
		if err := d.store.LogStatusChange(ctx, fresh.ID, "price", oldVal, newVal); err != nil {
			return nil, err
		}
	}

	return changes, nil
}

// extractNew runs attribute extraction for a first-seen listing.
// Extraction failure is logged and never blocks the upsert that
// already happened.
func (d *Detector) extractNew(ctx context.Context, l model.Listing) {
	res := d.extractor.Extract(ctx, extract.Input{
		Name:         l.Name,
		Site:         l.Site,
		Category:     l.Category,
		Manufacturer: l.Manufacturer,
		URL:          l.URL,
	})
	if res.None {
		d.log.Debug("[%s] no attributes extracted for %q", l.Site, l.Name)
		return
	}

	if err := d.store.SaveExtraction(ctx, l.ID, res.Attributes, res.Method, res.Confidence); err != nil {
		d.log.Warn("[%s] saving extraction for %q: %v", l.Site, l.Name, err)
		return
	}

	// A barcode found on the detail page is stored right away so the
	// backfill job doesn't re-fetch the same page.
	if len(res.Barcode) >= minBarcodeLen {
		if err := d.store.SetBarcode(ctx, l.ID, res.Barcode); err != nil {
			d.log.Warn("[%s] saving barcode for %q: %v", l.Site, l.Name, err)
		}
	}
}

func (d *Detector) logSummary(site string, changes []model.Change) {
	if len(changes) == 0 {
		d.log.Info("[%s] no changes detected", site)
		return
	}

	counts := make(map[model.ChangeType]int)
	for _, c := range changes {
		counts[c.Type]++
	}
	d.log.Info("[%s] changes: %d new, %d restocks, %d price changes, %d newly soldout",
		site,
		counts[model.ChangeNew], counts[model.ChangeRestock],
		counts[model.ChangePrice], counts[model.ChangeSoldOut],
	)
}
