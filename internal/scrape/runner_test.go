package scrape

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"figtracker/internal/detect"
	"figtracker/internal/extract"
	"figtracker/internal/logging"
	"figtracker/internal/model"
	"figtracker/internal/store"
	"figtracker/tests/testutil"
)

// fakeScraper serves canned listings and barcodes.
type fakeScraper struct {
	site     string
	listings []model.Listing
	barcodes map[string]string
	fetchErr error
}

func (f *fakeScraper) Site() string { return f.site }

func (f *fakeScraper) FetchListings(_ context.Context) ([]model.Listing, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.listings, nil
}

func (f *fakeScraper) FetchBarcode(_ context.Context, l model.Listing) (string, error) {
	return f.barcodes[l.LocalID], nil
}

type noneExtractor struct{}

func (noneExtractor) Extract(_ context.Context, _ extract.Input) extract.Result {
	return extract.Result{None: true}
}

func intPtr(v int64) *int64 { return &v }

func newRunner(t *testing.T, s *store.SQLiteStore, scrapers ...Scraper) *Runner {
	t.Helper()
	log := logging.New()
	return NewRunner(s, detect.New(s, noneExtractor{}, log), scrapers, log)
}

func TestRunStoreEnqueuesNotifiableChangesUnderOneBatch(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	scraper := &fakeScraper{site: "store1", listings: []model.Listing{
		{Site: "store1", LocalID: "a", Name: "figure a", Price: intPtr(10000), Status: model.StatusAvailable},
		{Site: "store1", LocalID: "b", Name: "figure b", Price: intPtr(20000), Status: model.StatusAvailable},
	}}
	r := newRunner(t, s, scraper)

	require.NoError(t, r.RunStore(ctx, scraper))

	pending, err := s.PendingAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, pending[0].BatchID, pending[1].BatchID)
	assert.NotEmpty(t, pending[0].BatchID)
	assert.Equal(t, model.ChangeNew, pending[0].ChangeType)
	assert.NotZero(t, pending[0].ListingID)
	assert.Equal(t, "figure a", pending[0].Name)

	// The next cycle of the same data produces a fresh batch id and
	// no alerts.
	require.NoError(t, r.RunStore(ctx, scraper))
	pending, err = s.PendingAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestRunStoreSkipsGenericStatusChanges(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	scraper := &fakeScraper{site: "store1", listings: []model.Listing{
		{Site: "store1", LocalID: "a", Name: "figure a", Status: model.StatusPreorder},
	}}
	r := newRunner(t, s, scraper)
	require.NoError(t, r.RunStore(ctx, scraper))

	pending, err := s.PendingAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// preorder -> available is history-only, never an alert.
	require.NoError(t, s.MarkAlertSent(ctx, pending[0].ID, pending[0].CreatedAt))
	scraper.listings[0].Status = model.StatusAvailable
	require.NoError(t, r.RunStore(ctx, scraper))

	pending, err = s.PendingAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunCycleIsolatesStoreFailures(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	broken := &fakeScraper{site: "store1", fetchErr: fmt.Errorf("connection refused")}
	healthy := &fakeScraper{site: "store2", listings: []model.Listing{
		{Site: "store2", LocalID: "a", Name: "figure a", Status: model.StatusAvailable},
	}}
	r := newRunner(t, s, broken, healthy)

	require.NoError(t, r.RunCycle(ctx))

	pending, err := s.PendingAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "store2", pending[0].Site)
}

func TestBackfillFillsMissingBarcodes(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	seed := func(site, localID string) int64 {
		id, err := s.UpsertListing(ctx, model.Listing{
			Site: site, LocalID: localID, Name: "figure " + localID,
			Status: model.StatusAvailable, URL: "https://" + site + "/" + localID,
		})
		require.NoError(t, err)
		return id
	}
	a := seed("store1", "a")
	b := seed("store1", "b")
	c := seed("store2", "c")

	scrapers := []Scraper{
		&fakeScraper{site: "store1", barcodes: map[string]string{
			"a": "4901234567890",
			"b": "123", // truncated, must be rejected
		}},
		&fakeScraper{site: "store2", barcodes: map[string]string{
			"c": "4909876543210",
		}},
	}

	bf := NewBackfiller(s, scrapers, 0, logging.New())
	filled, err := bf.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, filled)

	got, err := s.GetListingByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "4901234567890", got.Barcode)

	got, err = s.GetListingByID(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, got.Barcode)

	got, err = s.GetListingByID(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "4909876543210", got.Barcode)
}

func TestForConfigRequiresRegisteredFactory(t *testing.T) {
	Register("teststore", func(cfg model.StoreConfig, _ model.ScrapeConfig) (Scraper, error) {
		return &fakeScraper{site: cfg.Name}, nil
	})

	scrapers, err := ForConfig([]model.StoreConfig{
		{Name: "teststore", Enabled: true},
		{Name: "disabledstore", Enabled: false},
	}, model.ScrapeConfig{})
	require.NoError(t, err)
	require.Len(t, scrapers, 1)
	assert.Equal(t, "teststore", scrapers[0].Site())

	_, err = ForConfig([]model.StoreConfig{
		{Name: "unknownstore", Enabled: true},
	}, model.ScrapeConfig{})
	assert.Error(t, err)
}
