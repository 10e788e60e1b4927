// Package scrape drives the per-store scrape cycle. The storefront
// clients themselves live behind the Scraper interface; this package
// owns the cycle orchestration, outbox population, and the barcode
// backfill pool.
package scrape

import (
	"context"
	"fmt"
	"sort"

	"figtracker/internal/model"
)

// Scraper fetches raw listing records from one storefront. Implementations
// own their own pacing (request delays, page limits); the runner never
// calls one store's scraper concurrently with itself.
type Scraper interface {
	// Site returns the store identifier the scraper serves.
	Site() string

	// FetchListings returns the store's full current listing set for
	// one cycle. Records carry Site, LocalID, Name, Price, Status,
	// Category, ImageURL and URL; the persistence fields are left zero.
	FetchListings(ctx context.Context) ([]model.Listing, error)

	// FetchBarcode retrieves the external product code from the
	// listing's detail page. Empty string when the page has none.
	FetchBarcode(ctx context.Context, l model.Listing) (string, error)
}

// Factory builds a Scraper for one configured store.
type Factory func(cfg model.StoreConfig, pacing model.ScrapeConfig) (Scraper, error)

var factories = map[string]Factory{}

// Register installs a storefront client factory under the store name
// used in configuration. Storefront packages call this from init.
func Register(name string, f Factory) {
	factories[name] = f
}

// RegisteredStores lists the store names with installed factories.
func RegisteredStores() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForConfig instantiates scrapers for the enabled stores in cfg order.
// A configured store with no registered factory is an error.
func ForConfig(stores []model.StoreConfig, pacing model.ScrapeConfig) ([]Scraper, error) {
	var scrapers []Scraper
	for _, sc := range stores {
		if !sc.Enabled {
			continue
		}
		f, ok := factories[sc.Name]
		if !ok {
			return nil, fmt.Errorf("no scraper registered for store %q (have %v)", sc.Name, RegisteredStores())
		}
		s, err := f(sc, pacing)
		if err != nil {
			return nil, fmt.Errorf("building scraper for %q: %w", sc.Name, err)
		}
		scrapers = append(scrapers, s)
	}
	return scrapers, nil
}
