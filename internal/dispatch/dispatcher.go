// Package dispatch drains the alert outbox and delivers notifications
// to subscribers. Delivery is at-least-once: an outbox row is marked
// sent only after every eligible recipient has been attempted, so a
// crash mid-batch re-delivers rather than drops.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"figtracker/internal/channel"
	"figtracker/internal/logging"
	"figtracker/internal/model"
	"figtracker/internal/store"
)

// Dispatcher delivers pending alerts through a channel.
type Dispatcher struct {
	store store.Store
	ch    channel.Channel
	cfg   model.DispatchConfig
	log   *logging.Logger

	// now and retryDelay are swappable for tests.
	now        func() time.Time
	retryDelay time.Duration

	lastPurge time.Time
}

// New creates a Dispatcher.
func New(st store.Store, ch channel.Channel, cfg model.DispatchConfig, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		store:      st,
		ch:         ch,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		retryDelay: 5 * time.Second,
	}
}

// RunOnce drains the outbox a single time. Called on a fixed interval
// by the scheduler.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	stale, err := d.flushStaleBacklog(ctx)
	if err != nil {
		return err
	}
	if !stale {
		if err := d.deliverPending(ctx); err != nil {
			return err
		}
	}
	return d.maybePurge(ctx)
}

// flushStaleBacklog collapses an aged backlog into one digest per
// subscriber instead of flooding them with every individual row. This
// covers the first run after downtime.
func (d *Dispatcher) flushStaleBacklog(ctx context.Context) (bool, error) {
	oldest, err := d.store.OldestPendingCreatedAt(ctx)
	if err != nil {
		return false, fmt.Errorf("checking backlog age: %w", err)
	}
	staleAfter := time.Duration(d.cfg.StaleAfterHours) * time.Hour
	if oldest == nil || d.now().Sub(*oldest) < staleAfter {
		return false, nil
	}

	counts, err := d.store.PendingCountsByType(ctx)
	if err != nil {
		return false, fmt.Errorf("counting backlog: %w", err)
	}

	subs, err := d.store.ActiveSubscribers(ctx)
	if err != nil {
		return false, fmt.Errorf("loading subscribers: %w", err)
	}

	text := renderStaleSummary(counts, d.cfg.DashboardURL)
	deactivated := make(map[int64]bool)
	for _, sub := range subs {
		if err := d.send(ctx, sub.ChatID, "", text); err != nil {
			if channel.IsPermanent(err) {
				d.deactivate(ctx, sub.ChatID, deactivated)
				continue
			}
			d.log.Warn("stale summary to %d failed: %v", sub.ChatID, err)
		}
	}

	n, err := d.store.MarkAllPendingSent(ctx, d.now())
	if err != nil {
		return false, fmt.Errorf("flushing stale backlog: %w", err)
	}
	d.log.Info("flushed %d stale alerts as a summary", n)
	return true, nil
}

// deliverPending sends every pending alert to its eligible recipients,
// batch by batch in enqueue order.
func (d *Dispatcher) deliverPending(ctx context.Context) error {
	alerts, err := d.store.PendingAlerts(ctx)
	if err != nil {
		return fmt.Errorf("loading pending alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	subs, err := d.store.ActiveSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("loading subscribers: %w", err)
	}
	terms, err := d.store.AllWatchTerms(ctx)
	if err != nil {
		return fmt.Errorf("loading watch terms: %w", err)
	}

	for _, batch := range groupByBatch(alerts) {
		if err := d.deliverBatch(ctx, batch, subs, terms); err != nil {
			return err
		}
	}
	return nil
}

// termGroup holds one alert's recipients that share the same matched
// watch keyword. The keyword is empty for subscribers without terms,
// whose message carries no keyword line.
type termGroup struct {
	term string
	subs []model.Subscriber
}

// deliverBatch handles the alerts of one scrape cycle of one store.
// Recipients are grouped by the keyword that matched so each group
// sees which of its watch terms fired. Large batches get a summary
// header so subscribers can see the scale before the individual
// messages arrive.
func (d *Dispatcher) deliverBatch(
	ctx context.Context,
	batch []model.PendingAlert,
	subs []model.Subscriber,
	terms map[int64][]string,
) error {
	groups := make([][]termGroup, len(batch))
	deactivated := make(map[int64]bool)

	for i, a := range batch {
		attrs := d.alertAttributes(ctx, a)
		byTerm := make(map[string]int)
		for _, sub := range subs {
			if !sub.WantsType(a.ChangeType) {
				continue
			}
			term, ok := firstMatchingTerm(terms[sub.ChatID], a.Name, attrs)
			if !ok {
				continue
			}
			gi, seen := byTerm[term]
			if !seen {
				gi = len(groups[i])
				byTerm[term] = gi
				groups[i] = append(groups[i], termGroup{term: term})
			}
			groups[i][gi].subs = append(groups[i][gi].subs, sub)
		}
	}

	if len(batch) >= d.cfg.SummaryThreshold {
		d.sendBatchHeader(ctx, batch, groups, deactivated)
	}

	for i, a := range batch {
		peers, suspicious := d.crossReference(ctx, a)

		for _, g := range groups[i] {
			text := renderAlert(a, g.term, peers, suspicious)
			for _, sub := range g.subs {
				if deactivated[sub.ChatID] {
					continue
				}
				if err := d.send(ctx, sub.ChatID, a.ImageURL, text); err != nil {
					if channel.IsPermanent(err) {
						d.deactivate(ctx, sub.ChatID, deactivated)
						continue
					}
					d.log.Warn("alert %d to %d undelivered: %v", a.ID, sub.ChatID, err)
				}
			}
		}

		if err := d.store.MarkAlertSent(ctx, a.ID, d.now()); err != nil {
			return fmt.Errorf("marking alert %d sent: %w", a.ID, err)
		}
	}
	return nil
}

// sendBatchHeader sends the batch summary to every subscriber that
// will receive at least one alert from this batch.
func (d *Dispatcher) sendBatchHeader(
	ctx context.Context,
	batch []model.PendingAlert,
	groups [][]termGroup,
	deactivated map[int64]bool,
) {
	counts := make(map[model.ChangeType]int)
	for _, a := range batch {
		counts[a.ChangeType]++
	}
	text := renderBatchSummary(batch[0].Site, counts)

	seen := make(map[int64]bool)
	for _, gs := range groups {
		for _, g := range gs {
			for _, sub := range g.subs {
				if seen[sub.ChatID] || deactivated[sub.ChatID] {
					continue
				}
				seen[sub.ChatID] = true
				if err := d.send(ctx, sub.ChatID, "", text); err != nil {
					if channel.IsPermanent(err) {
						d.deactivate(ctx, sub.ChatID, deactivated)
						continue
					}
					d.log.Warn("batch summary to %d failed: %v", sub.ChatID, err)
				}
			}
		}
	}
}

// alertAttributes loads the extracted attributes of the alert's
// listing for watch-term matching. A missing listing degrades to
// name-only matching.
func (d *Dispatcher) alertAttributes(ctx context.Context, a model.PendingAlert) model.Attributes {
	l, err := d.store.GetListingByID(ctx, a.ListingID)
	if err != nil || l == nil {
		return model.Attributes{}
	}
	return l.Attributes
}

// crossReference collects other stores' prices for the alert's
// product, bounded by MaxPeerPrices. The spread of all known prices in
// the group flags probable mismatches.
func (d *Dispatcher) crossReference(ctx context.Context, a model.PendingAlert) ([]model.PeerPrice, bool) {
	key, err := d.store.MatchKeyForListing(ctx, a.ListingID)
	if err != nil || key == "" {
		return nil, false
	}

	peers, err := d.store.PeerPrices(ctx, key, a.ListingID)
	if err != nil {
		d.log.Warn("peer prices for alert %d: %v", a.ID, err)
		return nil, false
	}
	if len(peers) > d.cfg.MaxPeerPrices {
		peers = peers[:d.cfg.MaxPeerPrices]
	}
	if len(peers) == 0 {
		return nil, false
	}

	prices, err := d.store.MatchGroupPrices(ctx, key)
	if err != nil {
		return peers, false
	}
	return peers, suspiciousSpread(prices)
}

// suspiciousSpread reports whether the highest group price is at least
// priceSpreadSuspicionFactor times the lowest.
func suspiciousSpread(prices []int64) bool {
	if len(prices) < 2 {
		return false
	}
	min, max := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return min > 0 && float64(max) >= float64(min)*priceSpreadSuspicionFactor
}

// send delivers one message, retrying a transient failure once and
// falling back from photo to text when the image is rejected.
func (d *Dispatcher) send(ctx context.Context, chatID int64, imageURL, text string) error {
	err := d.sendOnce(ctx, chatID, imageURL, text)
	if err == nil || channel.IsPermanent(err) {
		return err
	}
	if channel.IsTransient(err) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay):
		}
		return d.sendOnce(ctx, chatID, imageURL, text)
	}
	return err
}

func (d *Dispatcher) sendOnce(ctx context.Context, chatID int64, imageURL, text string) error {
	if imageURL != "" {
		err := d.ch.SendPhoto(ctx, chatID, imageURL, text)
		if err == nil || channel.IsPermanent(err) || channel.IsTransient(err) {
			return err
		}
		// A rejected photo (dead URL, unsupported format) still has
		// a deliverable text body.
		d.log.Warn("photo to %d rejected, sending text: %v", chatID, err)
	}
	return d.ch.SendText(ctx, chatID, text)
}

func (d *Dispatcher) deactivate(ctx context.Context, chatID int64, deactivated map[int64]bool) {
	deactivated[chatID] = true
	if err := d.store.DeactivateSubscriber(ctx, chatID); err != nil {
		d.log.Error("deactivating %d: %v", chatID, err)
		return
	}
	d.log.Info("deactivated unreachable subscriber %d", chatID)
}

// maybePurge removes sent outbox rows past retention, at most once a day.
func (d *Dispatcher) maybePurge(ctx context.Context) error {
	if d.now().Sub(d.lastPurge) < 24*time.Hour {
		return nil
	}
	d.lastPurge = d.now()

	cutoff := d.now().AddDate(0, 0, -d.cfg.RetentionDays)
	n, err := d.store.PurgeSentAlertsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purging sent alerts: %w", err)
	}
	if n > 0 {
		d.log.Info("purged %d sent alerts older than %d days", n, d.cfg.RetentionDays)
	}
	return nil
}

// groupByBatch splits alerts into per-batch slices, preserving the
// outbox ordering.
func groupByBatch(alerts []model.PendingAlert) [][]model.PendingAlert {
	var batches [][]model.PendingAlert
	for _, a := range alerts {
		n := len(batches)
		if n == 0 || batches[n-1][0].BatchID != a.BatchID {
			batches = append(batches, []model.PendingAlert{a})
			continue
		}
		batches[n-1] = append(batches[n-1], a)
	}
	return batches
}
