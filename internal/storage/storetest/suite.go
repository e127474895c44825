// Package storetest provides the behavioral conformance suite every storage
// provider must pass. The memory and pebble providers run the identical
// suite, which is what makes them interchangeable at startup.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stellar-expert/operations-notifier/internal/apperrors"
	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/storage"
)

// Factory creates a fresh, empty store for one test.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against the provider under test.
func Run(t *testing.T, factory Factory) {
	t.Run("SubscriptionLifecycle", func(t *testing.T) { testSubscriptionLifecycle(t, factory(t)) })
	t.Run("ActiveFiltering", func(t *testing.T) { testActiveFiltering(t, factory(t)) })
	t.Run("NotificationOrder", func(t *testing.T) { testNotificationOrder(t, factory(t)) })
	t.Run("IdempotentCreate", func(t *testing.T) { testIdempotentCreate(t, factory(t)) })
	t.Run("FanOutDelivery", func(t *testing.T) { testFanOutDelivery(t, factory(t)) })
	t.Run("MonotonicCursor", func(t *testing.T) { testMonotonicCursor(t, factory(t)) })
}

func newSubscription(account string) *model.Subscription {
	return &model.Subscription{
		Account:     account,
		ReactionURL: "https://example.org/hook",
	}
}

func newNotification(id string, subIDs ...string) *model.Notification {
	return &model.Notification{
		ID:            id,
		Payload:       &model.Operation{ID: id, TypeI: model.OpPayment, Type: "payment"},
		Subscriptions: subIDs,
	}
}

func testSubscriptionLifecycle(t *testing.T, store storage.Store) {
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	sub, err := store.CreateSubscription(ctx, newSubscription("GAAA"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.ID == "" {
		t.Fatalf("create should assign an id")
	}
	if sub.Created.IsZero() || sub.Updated.IsZero() {
		t.Fatalf("create should assign timestamps")
	}

	got, err := store.FetchSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Account != "GAAA" {
		t.Fatalf("fetched wrong subscription: %+v", got)
	}

	got.Sent = 5
	got.DeliveryFailures = 2
	if _, err := store.SaveSubscription(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := store.FetchSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if again.Sent != 5 || again.DeliveryFailures != 2 {
		t.Fatalf("save did not persist counters: %+v", again)
	}

	if _, err := store.FetchSubscription(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func testActiveFiltering(t *testing.T, store storage.Store) {
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	active, _ := store.CreateSubscription(ctx, newSubscription("GACTIVE"))
	deleted, _ := store.CreateSubscription(ctx, newSubscription("GDELETED"))
	deleted.Status = model.SubscriptionDeleted
	if _, err := store.SaveSubscription(ctx, deleted); err != nil {
		t.Fatalf("save deleted: %v", err)
	}

	subs, err := store.FetchActiveSubscriptions(ctx)
	if err != nil {
		t.Fatalf("fetch active: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != active.ID {
		t.Fatalf("expected only the active subscription, got %d", len(subs))
	}

	// soft-deleted rows remain individually fetchable
	if _, err := store.FetchSubscription(ctx, deleted.ID); err != nil {
		t.Fatalf("deleted subscription should stay queryable: %v", err)
	}
}

func testNotificationOrder(t *testing.T, store storage.Store) {
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	sub, _ := store.CreateSubscription(ctx, newSubscription("GORDER"))
	batch := []*model.Notification{
		newNotification("100", sub.ID),
		newNotification("101", sub.ID),
		newNotification("102", sub.ID),
	}
	if _, err := store.CreateNotifications(ctx, batch); err != nil {
		t.Fatalf("create notifications: %v", err)
	}

	for _, want := range []string{"100", "101", "102"} {
		n, err := store.FetchNextNotification(ctx, sub.ID)
		if err != nil {
			t.Fatalf("fetch next: %v", err)
		}
		if n == nil || n.ID != want {
			t.Fatalf("expected %s next, got %+v", want, n)
		}
		if err := store.MarkDelivered(ctx, n, sub); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
	}
	if n, _ := store.FetchNextNotification(ctx, sub.ID); n != nil {
		t.Fatalf("expected no pending notifications, got %+v", n)
	}
}

func testIdempotentCreate(t *testing.T, store storage.Store) {
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	sub, _ := store.CreateSubscription(ctx, newSubscription("GDUP"))
	count, err := store.CreateNotifications(ctx, []*model.Notification{newNotification("77", sub.ID)})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if count != 1 {
		t.Fatalf("first insert count = %d, want 1", count)
	}

	// re-ingesting the same operation is a no-op, not an error
	count, err = store.CreateNotifications(ctx, []*model.Notification{newNotification("77", sub.ID)})
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if count != 0 {
		t.Fatalf("duplicate insert count = %d, want 0", count)
	}

	// mixed batch counts only the new row
	count, err = store.CreateNotifications(ctx, []*model.Notification{
		newNotification("77", sub.ID),
		newNotification("78", sub.ID),
	})
	if err != nil {
		t.Fatalf("mixed insert: %v", err)
	}
	if count != 1 {
		t.Fatalf("mixed insert count = %d, want 1", count)
	}
}

func testFanOutDelivery(t *testing.T, store storage.Store) {
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	first, _ := store.CreateSubscription(ctx, newSubscription("GFIRST"))
	second, _ := store.CreateSubscription(ctx, newSubscription("GSECOND"))

	if _, err := store.CreateNotifications(ctx, []*model.Notification{
		newNotification("500", first.ID, second.ID),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := store.FetchNextNotification(ctx, first.ID)
	if err != nil || n == nil {
		t.Fatalf("fetch for first: %v %v", n, err)
	}
	if err := store.MarkDelivered(ctx, n, first); err != nil {
		t.Fatalf("deliver to first: %v", err)
	}

	// first is done, second still pending on the same notification
	if n, _ := store.FetchNextNotification(ctx, first.ID); n != nil {
		t.Fatalf("first should have nothing pending, got %+v", n)
	}
	n, err = store.FetchNextNotification(ctx, second.ID)
	if err != nil || n == nil {
		t.Fatalf("second should still be pending: %v %v", n, err)
	}
	if err := store.MarkDelivered(ctx, n, second); err != nil {
		t.Fatalf("deliver to second: %v", err)
	}
	if n, _ := store.FetchNextNotification(ctx, second.ID); n != nil {
		t.Fatalf("notification should be deleted after last delivery")
	}
}

func testMonotonicCursor(t *testing.T, store storage.Store) {
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	cur, err := store.GetCursor(ctx)
	if err != nil {
		t.Fatalf("get empty cursor: %v", err)
	}
	if cur != "" {
		t.Fatalf("cold store should have no cursor, got %q", cur)
	}

	// tokens exceed int64 range
	const high = "104186647014576128999"
	if err := store.SetCursor(ctx, high); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	// lower and equal tokens are ignored, not errors
	if err := store.SetCursor(ctx, "104186647014576128998"); err != nil {
		t.Fatalf("stale set: %v", err)
	}
	if err := store.SetCursor(ctx, high); err != nil {
		t.Fatalf("equal set: %v", err)
	}
	cur, _ = store.GetCursor(ctx)
	if cur != high {
		t.Fatalf("cursor regressed: %q", cur)
	}

	next := "104186647014576129000"
	if err := store.SetCursor(ctx, next); err != nil {
		t.Fatalf("advance: %v", err)
	}
	cur, _ = store.GetCursor(ctx)
	if cur != next {
		t.Fatalf("cursor did not advance: %q", cur)
	}
}
