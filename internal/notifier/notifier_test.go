package notifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/signing"
	"github.com/stellar-expert/operations-notifier/internal/storage/memory"
	"github.com/stellar-expert/operations-notifier/pkg/log"
)

type staticSubs []*model.Subscription

func (s staticSubs) GetActiveSubscriptions() []*model.Subscription { return s }

func newTestNotifier(t *testing.T, store *memory.Store, subs staticSubs) (*Notifier, *signing.Signer) {
	t.Helper()
	signer, err := signing.Random()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	n := New(Options{
		Store:         store,
		Subscriptions: subs,
		Signer:        signer,
		Logger:        log.NewLogger(log.WithLevel(log.ErrorLevel)),
		Timeout:       2 * time.Second,
	})
	t.Cleanup(n.Stop)
	return n, signer
}

func seedNotification(t *testing.T, store *memory.Store, url string) *model.Subscription {
	t.Helper()
	ctx := context.Background()
	sub, err := store.CreateSubscription(ctx, &model.Subscription{
		Account:     "GWATCHED",
		ReactionURL: url,
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	_, err = store.CreateNotifications(ctx, []*model.Notification{{
		ID: "10",
		Payload: &model.Operation{
			ID:    "10",
			TypeI: model.OpPayment,
			Type:  "payment",
			TransactionDetails: &model.TransactionDetails{
				Hash:        "txhash",
				PagingToken: "9",
			},
		},
		Subscriptions: []string{sub.ID},
		Created:       time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}
	return sub
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSuccessfulDelivery(t *testing.T) {
	type received struct {
		body      []byte
		signature string
		subHeader string
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			body:      body,
			signature: r.Header.Get(HeaderSignature),
			subHeader: r.Header.Get(HeaderSubscription),
		}
	}))
	defer srv.Close()

	store := memory.New()
	sub := seedNotification(t, store, srv.URL)
	n, signer := newTestNotifier(t, store, staticSubs{sub})

	n.Wake()

	var req received
	select {
	case req = <-got:
	case <-time.After(5 * time.Second):
		t.Fatalf("delivery never arrived")
	}
	if req.subHeader != sub.ID {
		t.Fatalf("wrong subscription header: %q", req.subHeader)
	}
	if err := signer.Verify(req.body, req.signature); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}

	ctx := context.Background()
	waitFor(t, "delivery bookkeeping", func() bool {
		s, err := store.FetchSubscription(ctx, sub.ID)
		return err == nil && s.Sent == 1
	})
	s, _ := store.FetchSubscription(ctx, sub.ID)
	if s.DeliveryFailures != 0 || !s.IgnoreUntil.IsZero() {
		t.Fatalf("success should clear failure state: %+v", s)
	}
	if nt, _ := store.FetchNextNotification(ctx, sub.ID); nt != nil {
		t.Fatalf("notification should be delivered and removed, got %+v", nt)
	}
	if n.InProgress() != 0 {
		t.Fatalf("in-progress set should be empty")
	}
}

func TestFailureAccumulatesBackoff(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := memory.New()
	sub := seedNotification(t, store, srv.URL)
	n, _ := newTestNotifier(t, store, staticSubs{sub})

	before := time.Now()
	n.Wake()

	ctx := context.Background()
	waitFor(t, "first failure", func() bool {
		s, err := store.FetchSubscription(ctx, sub.ID)
		return err == nil && s.DeliveryFailures == 1
	})
	s, _ := store.FetchSubscription(ctx, sub.ID)
	pause := s.IgnoreUntil.Sub(before)
	if pause < time.Second || pause > 3*time.Second {
		t.Fatalf("first backoff pause out of range: %v", pause)
	}
	if nt, _ := store.FetchNextNotification(ctx, sub.ID); nt == nil {
		t.Fatalf("failed notification must stay pending")
	}

	// paused subscriptions are never selected
	calls := attempts.Load()
	n.Wake()
	time.Sleep(100 * time.Millisecond)
	if attempts.Load() != calls {
		t.Fatalf("paused subscription was scheduled again")
	}

	// the retry timer fires after the pause and fails again
	waitFor(t, "second failure", func() bool {
		s, err := store.FetchSubscription(ctx, sub.ID)
		return err == nil && s.DeliveryFailures == 2
	})
}

func TestNoPendingMarksProcessed(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	sub, _ := store.CreateSubscription(ctx, &model.Subscription{
		Account:     "GEMPTY",
		ReactionURL: "https://example.org/hook",
	})
	n, _ := newTestNotifier(t, store, staticSubs{sub})

	n.Wake()
	waitFor(t, "processed flag", func() bool {
		return n.InProgress() == 0 && sub.Processed
	})
}

func TestInProgressExcludedFromScheduling(t *testing.T) {
	store := memory.New()
	sub, _ := store.CreateSubscription(context.Background(), &model.Subscription{
		Account:     "GBUSY",
		ReactionURL: "https://example.org/hook",
	})
	n, _ := newTestNotifier(t, store, staticSubs{sub})

	if got := n.pickEligible(); got == nil || got.ID != sub.ID {
		t.Fatalf("subscription should be eligible, got %v", got)
	}
	// reserved: a second pass must not pick it again
	if got := n.pickEligible(); got != nil {
		t.Fatalf("in-progress subscription selected twice: %v", got)
	}
	n.release(sub.ID)
	if got := n.pickEligible(); got == nil {
		t.Fatalf("released subscription should be eligible again")
	}
	n.release(sub.ID)
}

func TestMarkPendingReschedules(t *testing.T) {
	var deliveries atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveries.Add(1)
	}))
	defer srv.Close()

	store := memory.New()
	ctx := context.Background()
	sub, _ := store.CreateSubscription(ctx, &model.Subscription{
		Account:     "GWATCHED",
		ReactionURL: srv.URL,
	})
	sub.Processed = true
	n, _ := newTestNotifier(t, store, staticSubs{sub})

	// a drained subscription is skipped until new work is flagged
	n.Wake()
	time.Sleep(50 * time.Millisecond)
	if deliveries.Load() != 0 {
		t.Fatalf("processed subscription must not be scheduled")
	}

	_, err := store.CreateNotifications(ctx, []*model.Notification{{
		ID: "20",
		Payload: &model.Operation{
			ID:                 "20",
			TypeI:              model.OpPayment,
			Type:               "payment",
			TransactionDetails: &model.TransactionDetails{Hash: "txhash", PagingToken: "19"},
		},
		Subscriptions: []string{sub.ID},
		Created:       time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}
	n.MarkPending([]string{sub.ID})
	n.Wake()

	waitFor(t, "rescheduled delivery", func() bool {
		s, err := store.FetchSubscription(ctx, sub.ID)
		return err == nil && s.Sent == 1
	})
	if deliveries.Load() != 1 {
		t.Fatalf("expected one delivery, got %d", deliveries.Load())
	}
}

func TestStopWaitsForInFlightDeliveries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	store := memory.New()
	sub := seedNotification(t, store, srv.URL)
	n, _ := newTestNotifier(t, store, staticSubs{sub})

	n.Wake()
	waitFor(t, "delivery in flight", func() bool { return n.InProgress() == 1 })
	n.Stop()

	// Stop returning means the delivery finished its storage writes
	if n.InProgress() != 0 {
		t.Fatalf("Stop returned with deliveries in flight")
	}
	s, err := store.FetchSubscription(context.Background(), sub.ID)
	if err != nil || s.Sent != 1 {
		t.Fatalf("delivery bookkeeping incomplete after Stop: %+v %v", s, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
}

func TestBackoffPauseCubic(t *testing.T) {
	for failures := 1; failures <= 4; failures++ {
		pause := BackoffPause(failures)
		base := time.Duration(failures*failures*failures) * time.Second
		if pause < base || pause >= base+time.Second {
			t.Fatalf("pause for %d failures out of range: %v", failures, pause)
		}
	}
}

func TestStopCancelsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := memory.New()
	sub := seedNotification(t, store, srv.URL)
	n, _ := newTestNotifier(t, store, staticSubs{sub})

	n.Wake()
	ctx := context.Background()
	waitFor(t, "first failure", func() bool {
		s, err := store.FetchSubscription(ctx, sub.ID)
		return err == nil && s.DeliveryFailures == 1
	})
	n.Stop()

	// backoff for one failure is under 2s; give the canceled timer a chance
	time.Sleep(2200 * time.Millisecond)
	if attempts.Load() != 1 {
		t.Fatalf("retry fired after Stop: %d attempts", attempts.Load())
	}
}
