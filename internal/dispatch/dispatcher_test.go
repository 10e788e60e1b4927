package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"figtracker/internal/channel"
	"figtracker/internal/logging"
	"figtracker/internal/model"
	"figtracker/internal/store"
	"figtracker/tests/testutil"
)

type sentMsg struct {
	chatID int64
	text   string
	photo  string
}

// fakeChannel records deliveries and injects failures per recipient.
type fakeChannel struct {
	sent     []sentMsg
	textErr  func(chatID int64) error
	photoErr func(chatID int64) error
}

func (f *fakeChannel) SendText(_ context.Context, chatID int64, text string) error {
	if f.textErr != nil {
		if err := f.textErr(chatID); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, sentMsg{chatID: chatID, text: text})
	return nil
}

func (f *fakeChannel) SendPhoto(_ context.Context, chatID int64, imageURL, caption string) error {
	if f.photoErr != nil {
		if err := f.photoErr(chatID); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, sentMsg{chatID: chatID, text: caption, photo: imageURL})
	return nil
}

func (f *fakeChannel) textsFor(chatID int64) []string {
	var out []string
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func testConfig() model.DispatchConfig {
	return model.DispatchConfig{
		PollIntervalSec:  30,
		StaleAfterHours:  6,
		SummaryThreshold: 10,
		RetentionDays:    7,
		MaxPeerPrices:    4,
	}
}

func newTestDispatcher(t *testing.T, s *store.SQLiteStore, ch channel.Channel, cfg model.DispatchConfig) *Dispatcher {
	t.Helper()
	d := New(s, ch, cfg, logging.New())
	d.retryDelay = 0
	return d
}

func intPtr64(v int64) *int64 { return &v }

func seedListing(t *testing.T, s *store.SQLiteStore, site, localID string, price *int64) int64 {
	t.Helper()
	id, err := s.UpsertListing(context.Background(), model.Listing{
		Site:    site,
		LocalID: localID,
		Name:    "figure " + localID,
		Price:   price,
		Status:  model.StatusAvailable,
		URL:     "https://" + site + "/item/" + localID,
	})
	require.NoError(t, err)
	return id
}

func seedSubscriber(t *testing.T, s *store.SQLiteStore, chatID int64) {
	t.Helper()
	_, err := s.GetOrCreateSubscriber(context.Background(), chatID, fmt.Sprintf("user%d", chatID))
	require.NoError(t, err)
}

func enqueue(t *testing.T, s *store.SQLiteStore, alerts ...model.PendingAlert) {
	t.Helper()
	require.NoError(t, s.EnqueueAlerts(context.Background(), alerts))
}

func TestDeliverAndMarkSentOnce(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", intPtr64(35000))
	seedSubscriber(t, s, 100)
	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
		Site: "store1", Name: "figure p1", Price: intPtr64(35000),
	})

	require.NoError(t, d.RunOnce(ctx))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, int64(100), ch.sent[0].chatID)
	assert.Contains(t, ch.sent[0].text, "New listing")

	// A second poll finds nothing pending.
	require.NoError(t, d.RunOnce(ctx))
	assert.Len(t, ch.sent, 1)
}

func TestOptOutSkipsRecipient(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	seedSubscriber(t, s, 100)
	seedSubscriber(t, s, 200)
	require.NoError(t, s.SetAlertOptIn(ctx, 200, model.ChangeNew, false))

	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
		Site: "store1", Name: "figure p1",
	})

	require.NoError(t, d.RunOnce(ctx))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, int64(100), ch.sent[0].chatID)

	// The row is still marked sent even though one subscriber skipped it.
	pending, err := s.PendingAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWatchTermPartitioning(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	require.NoError(t, s.SaveExtraction(ctx, id,
		model.Attributes{Series: "원신", Character: "푸리나"}, "rules", 0.8))

	seedSubscriber(t, s, 100) // no terms: receives everything
	seedSubscriber(t, s, 200) // matching term
	seedSubscriber(t, s, 300) // non-matching term
	_, err := s.AddWatchTerm(ctx, 200, "푸리나")
	require.NoError(t, err)
	_, err = s.AddWatchTerm(ctx, 300, "miku")
	require.NoError(t, err)

	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
		Site: "store1", Name: "figure p1",
	})

	require.NoError(t, d.RunOnce(ctx))

	// Keyword matchers see which of their terms fired; subscribers
	// without terms get the plain message.
	plain := ch.textsFor(100)
	require.Len(t, plain, 1)
	assert.NotContains(t, plain[0], "🔔")

	matched := ch.textsFor(200)
	require.Len(t, matched, 1)
	assert.Contains(t, matched[0], "🔔 푸리나")

	assert.Empty(t, ch.textsFor(300))
}

func TestPermanentErrorDeactivatesSubscriber(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{
		textErr: func(chatID int64) error {
			if chatID == 100 {
				return &channel.PermanentError{Recipient: chatID, Message: "blocked"}
			}
			return nil
		},
	}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	seedSubscriber(t, s, 100)
	seedSubscriber(t, s, 200)
	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
		Site: "store1", Name: "figure p1",
	})

	require.NoError(t, d.RunOnce(ctx))

	// The reachable subscriber still got their copy.
	assert.Len(t, ch.textsFor(200), 1)

	subs, err := s.ActiveSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(200), subs[0].ChatID)
}

func TestTransientErrorRetriedOnce(t *testing.T) {
	attempts := 0
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{
		textErr: func(int64) error {
			attempts++
			if attempts == 1 {
				return &channel.TransientError{Message: "timeout"}
			}
			return nil
		},
	}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	seedSubscriber(t, s, 100)
	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
		Site: "store1", Name: "figure p1",
	})

	require.NoError(t, d.RunOnce(ctx))

	assert.Equal(t, 2, attempts)
	assert.Len(t, ch.textsFor(100), 1)
}

func TestTransientFailureTwiceSkipsRecipientButMarksSent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{
		textErr: func(int64) error {
			return &channel.TransientError{Message: "down"}
		},
	}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	seedSubscriber(t, s, 100)
	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
		Site: "store1", Name: "figure p1",
	})

	require.NoError(t, d.RunOnce(ctx))

	// Dropped for this recipient; the row does not stay pending forever.
	assert.Empty(t, ch.sent)
	pending, err := s.PendingAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPhotoFallsBackToText(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{
		photoErr: func(int64) error {
			return fmt.Errorf("sendPhoto rejected (400): wrong file identifier")
		},
	}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	seedSubscriber(t, s, 100)
	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
		Site: "store1", Name: "figure p1", ImageURL: "https://store1/dead.jpg",
	})

	require.NoError(t, d.RunOnce(ctx))

	require.Len(t, ch.sent, 1)
	assert.Empty(t, ch.sent[0].photo)
	assert.Contains(t, ch.sent[0].text, "figure p1")
}

func TestStaleBacklogCollapsesToSummary(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{}
	d := newTestDispatcher(t, s, ch, testConfig())
	d.now = func() time.Time { return time.Now().Add(7 * time.Hour) }
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	seedSubscriber(t, s, 100)
	seedSubscriber(t, s, 200)

	var alerts []model.PendingAlert
	for i := 0; i < 500; i++ {
		alerts = append(alerts, model.PendingAlert{
			BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
			Site: "store1", Name: fmt.Sprintf("figure %d", i),
		})
	}
	enqueue(t, s, alerts...)

	require.NoError(t, d.RunOnce(ctx))

	// One digest per subscriber instead of 500 messages each.
	require.Len(t, ch.sent, 2)
	assert.Contains(t, ch.sent[0].text, "500 updates")

	pending, err := s.PendingAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStaleSummaryPermanentErrorDeactivates(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{
		textErr: func(chatID int64) error {
			if chatID == 100 {
				return &channel.PermanentError{Recipient: chatID, Message: "blocked"}
			}
			return nil
		},
	}
	d := newTestDispatcher(t, s, ch, testConfig())
	d.now = func() time.Time { return time.Now().Add(7 * time.Hour) }
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	seedSubscriber(t, s, 100)
	seedSubscriber(t, s, 200)
	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
		Site: "store1", Name: "figure p1",
	})

	require.NoError(t, d.RunOnce(ctx))

	// Only the reachable subscriber got the digest, and the blocked
	// one is no longer active.
	require.Len(t, ch.sent, 1)
	assert.Equal(t, int64(200), ch.sent[0].chatID)

	subs, err := s.ActiveSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(200), subs[0].ChatID)
}

func TestBatchSummaryHeaderAtThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.SummaryThreshold = 3
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{}
	d := newTestDispatcher(t, s, ch, cfg)
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	seedSubscriber(t, s, 100)

	var alerts []model.PendingAlert
	for i := 0; i < 3; i++ {
		alerts = append(alerts, model.PendingAlert{
			BatchID: "b1", ListingID: id, ChangeType: model.ChangeNew,
			Site: "store1", Name: fmt.Sprintf("figure %d", i),
		})
	}
	enqueue(t, s, alerts...)

	require.NoError(t, d.RunOnce(ctx))

	texts := ch.textsFor(100)
	require.Len(t, texts, 4)
	assert.Contains(t, texts[0], "3 updates from store1")
}

func TestCrossReferencePricesInAlert(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	a := seedListing(t, s, "store1", "a", intPtr64(10000))
	b := seedListing(t, s, "store2", "b", intPtr64(9000))
	require.NoError(t, s.ReplaceMatchGroups(ctx, []model.MatchGroup{
		{Key: "jan_4901234567890", ListingIDs: []int64{a, b}, Confidence: 1.0},
	}))

	seedSubscriber(t, s, 100)
	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: a, ChangeType: model.ChangeRestock,
		Site: "store1", Name: "figure a", Price: intPtr64(10000),
	})

	require.NoError(t, d.RunOnce(ctx))

	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0].text, "store2: ₩9,000")
	// 1.11x spread is a normal margin difference, not suspicious.
	assert.NotContains(t, ch.sent[0].text, "⚠️")
}

func TestPriceDropAlertShowsPercentage(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", intPtr64(25000))
	seedSubscriber(t, s, 100)
	enqueue(t, s, model.PendingAlert{
		BatchID: "b1", ListingID: id, ChangeType: model.ChangePrice,
		OldValue: "50000", NewValue: "25000",
		Site: "store1", Name: "figure p1", Price: intPtr64(25000),
	})

	require.NoError(t, d.RunOnce(ctx))

	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0].text, "Price change")
	assert.Contains(t, ch.sent[0].text, "₩50,000 → ₩25,000 (-50.0%)")
}

func TestRetentionPurgeKeepsRecentRows(t *testing.T) {
	s := testutil.NewTestStore(t)
	ch := &fakeChannel{}
	d := newTestDispatcher(t, s, ch, testConfig())
	ctx := context.Background()

	id := seedListing(t, s, "store1", "p1", nil)
	old := time.Now().UTC().AddDate(0, 0, -10)
	enqueue(t, s,
		model.PendingAlert{BatchID: "old", ListingID: id, ChangeType: model.ChangeNew, Site: "store1", Name: "n", CreatedAt: old},
		model.PendingAlert{BatchID: "new", ListingID: id, ChangeType: model.ChangeNew, Site: "store1", Name: "n"},
	)
	pending, err := s.PendingAlerts(ctx)
	require.NoError(t, err)
	require.NoError(t, s.MarkAlertSent(ctx, pending[0].ID, time.Now().UTC()))
	require.NoError(t, s.MarkAlertSent(ctx, pending[1].ID, time.Now().UTC()))

	require.NoError(t, d.RunOnce(ctx))

	var total int
	require.NoError(t, s.DB().GetContext(ctx, &total, "SELECT COUNT(*) FROM pending_alerts"))
	assert.Equal(t, 1, total)
}
