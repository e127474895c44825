// Package memory implements the reference in-memory storage provider.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellar-expert/operations-notifier/internal/apperrors"
	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/storage"
)

// Store keeps all state in process memory. Used as the default provider and
// as the reference implementation for the storage contract in tests.
type Store struct {
	mu sync.Mutex

	subscriptions map[string]*model.Subscription
	// notifications in insertion order; ids index the slice for dedup
	notifications   []*model.Notification
	notificationIDs map[string]struct{}
	cursor          string
	cursorUpdated   time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		subscriptions:   make(map[string]*model.Subscription),
		notificationIDs: make(map[string]struct{}),
	}
}

var _ storage.Store = (*Store)(nil)

// FetchActiveSubscriptions returns all subscriptions with active status.
func (s *Store) FetchActiveSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Subscription
	for _, sub := range s.subscriptions {
		if sub.Status == model.SubscriptionActive {
			out = append(out, sub)
		}
	}
	return out, nil
}

// FetchSubscription returns a subscription by id regardless of status.
func (s *Store) FetchSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, apperrors.NotFound("subscription " + id)
	}
	return sub, nil
}

// CreateSubscription assigns an id and timestamps and stores the subscription.
func (s *Store) CreateSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now()
	sub.Created = now
	sub.Updated = now
	s.subscriptions[sub.ID] = sub
	return sub, nil
}

// SaveSubscription persists mutated subscription state.
func (s *Store) SaveSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Updated = time.Now()
	s.subscriptions[sub.ID] = sub
	return sub, nil
}

// FetchNextNotification returns the oldest notification pending for the
// subscription, or nil.
func (s *Store) FetchNextNotification(ctx context.Context, subscriptionID string) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.PendingFor(subscriptionID) {
			return n, nil
		}
	}
	return nil, nil
}

// CreateNotifications inserts a batch; duplicate ids are skipped.
func (s *Store) CreateNotifications(ctx context.Context, notifications []*model.Notification) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if _, exists := s.notificationIDs[n.ID]; exists {
			continue
		}
		s.notificationIDs[n.ID] = struct{}{}
		s.notifications = append(s.notifications, n)
		inserted++
	}
	return inserted, nil
}

// MarkDelivered evicts the subscription from the pending set and removes the
// notification once nobody is waiting for it.
func (s *Store) MarkDelivered(ctx context.Context, notification *model.Notification, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID != notification.ID {
			continue
		}
		if n.RemoveSubscription(sub.ID) == 0 {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			delete(s.notificationIDs, n.ID)
		}
		return nil
	}
	return nil
}

// GetCursor returns the last ingested paging token, or "".
func (s *Store) GetCursor(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

// SetCursor advances the cursor; lower or equal tokens are ignored.
func (s *Store) SetCursor(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if storage.CompareTokens(token, s.cursor) <= 0 {
		return nil
	}
	s.cursor = token
	s.cursorUpdated = time.Now()
	return nil
}

// Close is a no-op for the memory provider.
func (s *Store) Close() error { return nil }
