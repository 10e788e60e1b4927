package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"figtracker/internal/detect"
	"figtracker/internal/logging"
	"figtracker/internal/model"
	"figtracker/internal/store"
)

// Runner executes scrape cycles: fetch each enabled store, run change
// detection, and enqueue notifiable changes into the alert outbox. One
// store failing never aborts the cycle for the others.
type Runner struct {
	store    store.Store
	detector *detect.Detector
	scrapers []Scraper
	log      *logging.Logger

	now func() time.Time
}

// NewRunner creates a Runner over the given scrapers.
func NewRunner(st store.Store, det *detect.Detector, scrapers []Scraper, log *logging.Logger) *Runner {
	return &Runner{
		store:    st,
		detector: det,
		scrapers: scrapers,
		log:      log,
		now:      time.Now,
	}
}

// RunCycle scrapes every store once, sequentially.
func (r *Runner) RunCycle(ctx context.Context) error {
	for _, s := range r.scrapers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.RunStore(ctx, s); err != nil {
			r.log.Error("[%s] cycle failed: %v", s.Site(), err)
		}
	}
	return nil
}

// RunStore scrapes a single store and enqueues its alerts under one
// fresh batch id.
func (r *Runner) RunStore(ctx context.Context, s Scraper) error {
	listings, err := s.FetchListings(ctx)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", s.Site(), err)
	}

	changes, err := r.detector.ProcessListings(ctx, s.Site(), listings)
	if err != nil {
		return fmt.Errorf("detecting changes for %s: %w", s.Site(), err)
	}

	alerts := r.buildAlerts(changes)
	if len(alerts) == 0 {
		return nil
	}
	if err := r.store.EnqueueAlerts(ctx, alerts); err != nil {
		return fmt.Errorf("enqueuing %d alerts for %s: %w", len(alerts), s.Site(), err)
	}
	r.log.Info("[%s] enqueued %d alerts (batch %s)", s.Site(), len(alerts), alerts[0].BatchID)
	return nil
}

// buildAlerts converts the cycle's notifiable changes into outbox rows
// sharing one batch id. Listing fields are snapshotted so the rendered
// message is stable against later updates.
func (r *Runner) buildAlerts(changes []model.Change) []model.PendingAlert {
	batchID := uuid.NewString()
	now := r.now()

	var alerts []model.PendingAlert
	for _, c := range changes {
		if !c.Notifiable() {
			continue
		}
		alerts = append(alerts, model.PendingAlert{
			BatchID:    batchID,
			ListingID:  c.Listing.ID,
			ChangeType: c.Type,
			OldValue:   c.OldValue,
			NewValue:   c.NewValue,
			Site:       c.Listing.Site,
			Name:       c.Listing.Name,
			Price:      c.Listing.Price,
			ImageURL:   c.Listing.ImageURL,
			URL:        c.Listing.URL,
			CreatedAt:  now,
		})
	}
	return alerts
}
