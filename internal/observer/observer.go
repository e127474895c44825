// Package observer owns the subscription registry and orchestrates the
// ingestion watcher and delivery notifier around it.
package observer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellar-expert/operations-notifier/internal/apperrors"
	"github.com/stellar-expert/operations-notifier/internal/ingest"
	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/notifier"
	"github.com/stellar-expert/operations-notifier/internal/storage"
	"github.com/stellar-expert/operations-notifier/pkg/log"
)

// Options configures an Observer.
type Options struct {
	Store    storage.Store
	Watcher  *ingest.TransactionWatcher
	Notifier *notifier.Notifier
	Logger   log.Logger

	// MaxActiveSubscriptions caps the global number of active subscriptions.
	MaxActiveSubscriptions int
	// MaxUserActiveSubscriptions caps per-owner subscriptions when
	// authorization is enabled.
	MaxUserActiveSubscriptions int
	// AuthorizationEnabled turns on per-owner quota enforcement.
	AuthorizationEnabled bool
}

// Observer keeps the in-memory active subscription list in sync with storage
// and drives the watcher/notifier lifecycle.
type Observer struct {
	store    storage.Store
	watcher  *ingest.TransactionWatcher
	notifier *notifier.Notifier
	logger   log.Logger

	maxActive   int
	maxPerUser  int
	authEnabled bool

	mu            sync.Mutex
	subscriptions []*model.Subscription
	loaded        bool
	loadErr       error
	loading       chan struct{}
	observing     bool
	started       time.Time
}

// New builds an Observer.
func New(opts Options) *Observer {
	return &Observer{
		store:       opts.Store,
		watcher:     opts.Watcher,
		notifier:    opts.Notifier,
		logger:      opts.Logger.WithComponent("observer"),
		maxActive:   opts.MaxActiveSubscriptions,
		maxPerUser:  opts.MaxUserActiveSubscriptions,
		authEnabled: opts.AuthorizationEnabled,
	}
}

// LoadSubscriptions loads the active subscription set from storage. The load
// is memoized; concurrent callers before the first load completes share one
// in-flight fetch. Expired subscriptions are marked and excluded.
func (o *Observer) LoadSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	o.mu.Lock()
	if o.loaded {
		subs := o.snapshotLocked()
		o.mu.Unlock()
		return subs, nil
	}
	if o.loading != nil {
		ch := o.loading
		o.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.loaded {
			return o.snapshotLocked(), nil
		}
		return nil, o.loadErr
	}
	ch := make(chan struct{})
	o.loading = ch
	o.mu.Unlock()

	subs, err := o.store.FetchActiveSubscriptions(ctx)
	var active []*model.Subscription
	if err == nil {
		now := time.Now()
		for _, sub := range subs {
			if sub.IsExpired(now) {
				sub.Status = model.SubscriptionExpired
				if _, serr := o.store.SaveSubscription(ctx, sub); serr != nil {
					o.logger.Error("failed to persist expired subscription",
						log.Str("id", sub.ID), log.Err(serr))
				}
				continue
			}
			active = append(active, sub)
		}
	}

	o.mu.Lock()
	if err == nil {
		o.subscriptions = active
		o.loaded = true
		o.loadErr = nil
	} else {
		o.loadErr = err
	}
	o.loading = nil
	close(ch)
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("observer: load subscriptions: %w", err)
	}
	o.logger.Info("subscriptions loaded", log.Int("count", len(snapshot)))
	return snapshot, nil
}

func (o *Observer) snapshotLocked() []*model.Subscription {
	out := make([]*model.Subscription, len(o.subscriptions))
	copy(out, o.subscriptions)
	return out
}

// GetActiveSubscriptions returns a copy of the in-memory active list. Empty
// until the first load completes.
func (o *Observer) GetActiveSubscriptions() []*model.Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe validates the request, enforces quotas, persists the new
// subscription, and adds it to the active set.
func (o *Observer) Subscribe(ctx context.Context, params *model.SubscriptionParams, owner string) (*model.Subscription, error) {
	sub, err := params.Validate(time.Now())
	if err != nil {
		return nil, err
	}
	if _, err := o.LoadSubscriptions(ctx); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.maxActive > 0 && len(o.subscriptions) >= o.maxActive {
		o.mu.Unlock()
		return nil, apperrors.Capacity("active subscription limit reached")
	}
	if o.authEnabled && owner != "" && o.maxPerUser > 0 {
		owned := 0
		for _, s := range o.subscriptions {
			if s.Pubkey == owner {
				owned++
			}
		}
		if owned >= o.maxPerUser {
			o.mu.Unlock()
			return nil, apperrors.Capacity("subscription limit for user reached")
		}
	}
	o.mu.Unlock()

	sub.Pubkey = owner
	created, err := o.store.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.subscriptions = append(o.subscriptions, created)
	o.mu.Unlock()
	o.logger.Info("subscription created", log.Str("id", created.ID))
	return created, nil
}

// Unsubscribe soft-deletes an active subscription and removes it from the
// active set.
func (o *Observer) Unsubscribe(ctx context.Context, id string) error {
	if _, err := o.LoadSubscriptions(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	idx := -1
	for i, s := range o.subscriptions {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return apperrors.NotFound("subscription " + id)
	}
	sub := o.subscriptions[idx]
	o.subscriptions = append(o.subscriptions[:idx], o.subscriptions[idx+1:]...)
	o.mu.Unlock()

	sub.Status = model.SubscriptionDeleted
	if _, err := o.store.SaveSubscription(ctx, sub); err != nil {
		return err
	}
	o.logger.Info("subscription removed", log.Str("id", id))
	return nil
}

// GetSubscription looks up a subscription, checking the in-memory list first
// and falling back to storage for subscriptions no longer active.
func (o *Observer) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	o.mu.Lock()
	for _, s := range o.subscriptions {
		if s.ID == id {
			o.mu.Unlock()
			return s, nil
		}
	}
	o.mu.Unlock()
	return o.store.FetchSubscription(ctx, id)
}

// Start loads subscriptions and begins watching the transaction feed.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.observing {
		o.mu.Unlock()
		return errors.New("observer: already observing")
	}
	o.observing = true
	o.started = time.Now()
	o.mu.Unlock()

	if _, err := o.LoadSubscriptions(ctx); err != nil {
		o.setObserving(false)
		return err
	}
	if err := o.watcher.Watch(ctx); err != nil {
		o.setObserving(false)
		return err
	}
	// deliveries left over from the previous run
	o.notifier.Wake()
	o.logger.Info("observer started")
	return nil
}

// Stop terminates watching and cancels pending delivery retries.
func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.observing {
		o.mu.Unlock()
		return
	}
	o.observing = false
	o.mu.Unlock()

	o.watcher.StopWatching()
	o.notifier.Stop()
	o.logger.Info("observer stopped")
}

func (o *Observer) setObserving(v bool) {
	o.mu.Lock()
	o.observing = v
	o.mu.Unlock()
}

// Observing reports whether the observer is currently watching the feed.
func (o *Observer) Observing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.observing
}

// SubscriptionCount returns the size of the active set.
func (o *Observer) SubscriptionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subscriptions)
}

// Uptime returns the time since Start, or zero when not observing.
func (o *Observer) Uptime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.observing {
		return 0
	}
	return time.Since(o.started)
}
