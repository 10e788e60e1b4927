package scrape

import (
	"context"
	"sync"
	"time"

	"figtracker/internal/logging"
	"figtracker/internal/store"
)

// minBarcodeLen rejects truncated or garbage codes scraped from
// product pages.
const minBarcodeLen = 8

// backfillResult is one worker's report over the aggregation channel.
type backfillResult struct {
	site    string
	filled  int
	scanned int
	err     error
}

// Backfiller fetches missing barcodes from listing detail pages. Each
// store gets its own worker so per-store rate limits hold while stores
// overlap; workers share nothing but the result channel.
type Backfiller struct {
	store    store.Store
	scrapers []Scraper
	delay    time.Duration
	log      *logging.Logger
}

// NewBackfiller creates a Backfiller. delay is the pause between
// detail-page fetches within one store.
func NewBackfiller(st store.Store, scrapers []Scraper, delay time.Duration, log *logging.Logger) *Backfiller {
	return &Backfiller{
		store:    st,
		scrapers: scrapers,
		delay:    delay,
		log:      log,
	}
}

// Run backfills all stores and returns the total number of barcodes
// filled. Per-listing failures are logged and skipped.
func (b *Backfiller) Run(ctx context.Context) (int, error) {
	results := make(chan backfillResult, len(b.scrapers))

	var wg sync.WaitGroup
	for _, s := range b.scrapers {
		wg.Add(1)
		go func(s Scraper) {
			defer wg.Done()
			results <- b.runStore(ctx, s)
		}(s)
	}
	wg.Wait()
	close(results)

	total := 0
	for res := range results {
		if res.err != nil {
			b.log.Error("[%s] backfill failed: %v", res.site, res.err)
			continue
		}
		b.log.Info("[%s] backfill: %d/%d barcodes filled", res.site, res.filled, res.scanned)
		total += res.filled
	}
	return total, nil
}

func (b *Backfiller) runStore(ctx context.Context, s Scraper) backfillResult {
	res := backfillResult{site: s.Site()}

	listings, err := b.store.ListingsMissingBarcode(ctx, s.Site())
	if err != nil {
		res.err = err
		return res
	}
	res.scanned = len(listings)

	for i, l := range listings {
		if i > 0 {
			select {
			case <-ctx.Done():
				res.err = ctx.Err()
				return res
			case <-time.After(b.delay):
			}
		}

		code, err := s.FetchBarcode(ctx, l)
		if err != nil {
			b.log.Warn("[%s] barcode fetch for %s: %v", s.Site(), l.LocalID, err)
			continue
		}
		if len(code) < minBarcodeLen {
			continue
		}
		if err := b.store.SetBarcode(ctx, l.ID, code); err != nil {
			b.log.Warn("[%s] saving barcode for %s: %v", s.Site(), l.LocalID, err)
			continue
		}
		res.filled++
	}
	return res
}
