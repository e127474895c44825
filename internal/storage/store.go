// Package storage defines the persistence contract the notifier core depends
// on. Any engine may implement Store; the memory and pebblestore packages
// provide the reference and durable implementations with identical semantics.
package storage

import (
	"context"
	"math/big"

	"github.com/stellar-expert/operations-notifier/internal/model"
)

// Store is the persistence boundary for subscriptions, notifications, and the
// ingestion cursor.
//
// Semantics every implementation must satisfy:
//   - CreateNotifications is idempotent under duplicate ids: re-inserting an
//     existing id is a no-op, and the returned count reflects only genuinely
//     new rows.
//   - FetchNextNotification returns pending notifications in insertion order.
//   - MarkDelivered removes the subscription id from the notification's
//     pending set and deletes the notification once the set is empty.
//   - SetCursor accepts only numerically greater tokens; stale writes are
//     silently ignored. The guard lives here, not in callers, so it holds
//     under concurrent writers.
type Store interface {
	// FetchActiveSubscriptions returns all subscriptions with active status.
	FetchActiveSubscriptions(ctx context.Context) ([]*model.Subscription, error)
	// FetchSubscription returns a subscription by id regardless of status.
	// Returns apperrors.ErrNotFound for unknown ids.
	FetchSubscription(ctx context.Context, id string) (*model.Subscription, error)
	// CreateSubscription persists a validated subscription, assigning id and
	// timestamps.
	CreateSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error)
	// SaveSubscription persists mutated subscription state.
	SaveSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error)

	// FetchNextNotification returns the oldest notification still pending for
	// the subscription, or nil when none remain.
	FetchNextNotification(ctx context.Context, subscriptionID string) (*model.Notification, error)
	// CreateNotifications inserts a batch atomically and returns the number
	// of genuinely new rows.
	CreateNotifications(ctx context.Context, notifications []*model.Notification) (int, error)
	// MarkDelivered records a successful delivery for one subscription.
	MarkDelivered(ctx context.Context, notification *model.Notification, sub *model.Subscription) error

	// GetCursor returns the last ingested paging token, or "" when none.
	GetCursor(ctx context.Context) (string, error)
	// SetCursor advances the ingestion cursor. Lower or equal tokens are
	// ignored.
	SetCursor(ctx context.Context, token string) error

	Close() error
}

// CompareTokens compares two paging tokens numerically. Empty tokens compare
// as zero. Tokens exceed int64 range, so comparison uses big integers.
func CompareTokens(a, b string) int {
	return tokenValue(a).Cmp(tokenValue(b))
}

func tokenValue(token string) *big.Int {
	if token == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(token, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
