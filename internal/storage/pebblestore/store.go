package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/stellar-expert/operations-notifier/internal/apperrors"
	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/storage"
)

// Store is the durable storage provider backed by Pebble. Rows are encoded
// with msgpack; per-subscription delivery order is maintained through a
// secondary index keyed by an insertion sequence.
type Store struct {
	db *DB

	mu      sync.Mutex
	lastSeq uint64
}

// Open opens (or creates) the durable store in the given data directory.
func Open(opts Options) (*Store, error) {
	db, err := OpenDB(opts)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if meta, err := db.Get(seqMetaKey); err == nil && len(meta) >= 8 {
		s.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return s, nil
}

var _ storage.Store = (*Store)(nil)

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// FetchActiveSubscriptions scans all subscription rows and returns the active
// ones.
func (s *Store) FetchActiveSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: subPrefix,
		UpperBound: PrefixUpperBound(subPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*model.Subscription
	for ok := iter.First(); ok; ok = iter.Next() {
		var sub model.Subscription
		if err := msgpack.Unmarshal(iter.Value(), &sub); err != nil {
			return nil, err
		}
		if sub.Status == model.SubscriptionActive {
			out = append(out, &sub)
		}
	}
	return out, nil
}

// FetchSubscription returns a subscription by id regardless of status.
func (s *Store) FetchSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	raw, err := s.db.Get(SubKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, apperrors.NotFound("subscription " + id)
		}
		return nil, err
	}
	var sub model.Subscription
	if err := msgpack.Unmarshal(raw, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription assigns an id and timestamps and persists the row.
func (s *Store) CreateSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now()
	sub.Created = now
	sub.Updated = now
	return s.writeSubscription(sub)
}

// SaveSubscription persists mutated subscription state.
func (s *Store) SaveSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	sub.Updated = time.Now()
	return s.writeSubscription(sub)
}

func (s *Store) writeSubscription(sub *model.Subscription) (*model.Subscription, error) {
	raw, err := msgpack.Marshal(sub)
	if err != nil {
		return nil, err
	}
	if err := s.db.Set(SubKey(sub.ID), raw); err != nil {
		return nil, err
	}
	return sub, nil
}

// FetchNextNotification walks the subscription's index in insertion order and
// returns the first notification still pending for it.
func (s *Store) FetchNextNotification(ctx context.Context, subscriptionID string) (*model.Notification, error) {
	prefix := NtfIdxPrefix(subscriptionID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		id := string(iter.Value())
		raw, err := s.db.Get(NtfKey(id))
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				// stale index entry; clean up and keep scanning
				_ = s.db.Delete(append([]byte(nil), iter.Key()...))
				continue
			}
			return nil, err
		}
		var n model.Notification
		if err := msgpack.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		if n.PendingFor(subscriptionID) {
			return &n, nil
		}
	}
	return nil, nil
}

// CreateNotifications inserts a batch atomically. Duplicate ids are skipped;
// the returned count reflects only genuinely new rows.
func (s *Store) CreateNotifications(ctx context.Context, notifications []*model.Notification) (int, error) {
	if len(notifications) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	inserted := 0
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if _, err := s.db.Get(NtfKey(n.ID)); err == nil {
			continue // already ingested
		} else if !errors.Is(err, pebble.ErrNotFound) {
			return 0, err
		}
		raw, err := msgpack.Marshal(n)
		if err != nil {
			return 0, err
		}
		if err := b.Set(NtfKey(n.ID), raw, nil); err != nil {
			return 0, err
		}
		for _, subID := range n.Subscriptions {
			s.lastSeq++
			if err := b.Set(NtfIdxKey(subID, s.lastSeq), []byte(n.ID), nil); err != nil {
				return 0, err
			}
		}
		inserted++
	}
	if inserted == 0 {
		return 0, nil
	}

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], s.lastSeq)
	if err := b.Set(seqMetaKey, seqBuf[:], nil); err != nil {
		return 0, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	return inserted, nil
}

// MarkDelivered removes the subscription from the notification's pending set,
// drops the index entry, and deletes the row once the set is empty.
func (s *Store) MarkDelivered(ctx context.Context, notification *model.Notification, sub *model.Subscription) error {
	raw, err := s.db.Get(NtfKey(notification.ID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil
		}
		return err
	}
	var n model.Notification
	if err := msgpack.Unmarshal(raw, &n); err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()

	remaining := n.RemoveSubscription(sub.ID)
	if remaining == 0 {
		if err := b.Delete(NtfKey(n.ID), nil); err != nil {
			return err
		}
	} else {
		updated, err := msgpack.Marshal(&n)
		if err != nil {
			return err
		}
		if err := b.Set(NtfKey(n.ID), updated, nil); err != nil {
			return err
		}
	}
	if key, ok, err := s.findIdxKey(sub.ID, n.ID); err != nil {
		return err
	} else if ok {
		if err := b.Delete(key, nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// findIdxKey locates the index entry pointing at the given notification
// within a subscription's index range.
func (s *Store) findIdxKey(subscriptionID, notificationID string) ([]byte, bool, error) {
	prefix := NtfIdxPrefix(subscriptionID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if string(iter.Value()) == notificationID {
			return append([]byte(nil), iter.Key()...), true, nil
		}
	}
	return nil, false, nil
}

// GetCursor returns the last ingested paging token, or "".
func (s *Store) GetCursor(ctx context.Context) (string, error) {
	raw, err := s.db.Get(cursorKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(raw), nil
}

// SetCursor stores the token if it is numerically greater than the current
// one. Stale tokens are ignored, which keeps the guard safe under concurrent
// writers.
func (s *Store) SetCursor(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.GetCursor(ctx)
	if err != nil {
		return err
	}
	if storage.CompareTokens(token, current) <= 0 {
		return nil
	}
	return s.db.Set(cursorKey, []byte(token))
}
