package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellar-expert/operations-notifier/internal/horizon"
	"github.com/stellar-expert/operations-notifier/internal/match"
	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/storage"
	"github.com/stellar-expert/operations-notifier/pkg/log"
)

const (
	defaultPageSize     = 200
	defaultFetchRetries = 5
	defaultRetryPause   = 2 * time.Second
)

// SubscriptionSource yields the current set of active subscriptions to match
// incoming operations against.
type SubscriptionSource interface {
	GetActiveSubscriptions() []*model.Subscription
}

// WatcherOptions configures a TransactionWatcher.
type WatcherOptions struct {
	Source        horizon.Source
	Store         storage.Store
	Subscriptions SubscriptionSource
	// OnNotify is invoked after new notifications were stored, carrying the
	// ids of the subscriptions they target so the delivery scheduler can
	// flag and wake them.
	OnNotify func(subIDs []string)
	Logger   log.Logger

	// PageSize bounds historical fetches during fast-forward.
	PageSize int
	// FetchRetries bounds consecutive fast-forward fetch failures before the
	// watcher gives up.
	FetchRetries int
	// RetryPause is the base pause between fetch retries; the actual pause
	// grows linearly with the attempt number.
	RetryPause time.Duration
}

// TransactionWatcher consumes the ordered transaction feed, matches extracted
// operations against active subscriptions, and persists the resulting
// notifications. A single drain loop processes the queue at a time.
type TransactionWatcher struct {
	source horizon.Source
	store  storage.Store
	subs   SubscriptionSource
	notify func(subIDs []string)
	logger log.Logger

	pageSize     int
	fetchRetries int
	retryPause   time.Duration

	mu       sync.Mutex
	queue    []horizon.Transaction
	draining bool
	watching bool
	release  func()
}

// NewWatcher builds a watcher. Zero option fields fall back to defaults.
func NewWatcher(opts WatcherOptions) *TransactionWatcher {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.FetchRetries <= 0 {
		opts.FetchRetries = defaultFetchRetries
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = defaultRetryPause
	}
	return &TransactionWatcher{
		source:       opts.Source,
		store:        opts.Store,
		subs:         opts.Subscriptions,
		notify:       opts.OnNotify,
		logger:       opts.Logger.WithComponent("watcher"),
		pageSize:     opts.PageSize,
		fetchRetries: opts.FetchRetries,
		retryPause:   opts.RetryPause,
	}
}

// SetSubscriptions wires the subscription provider. Must be called before
// the first transaction is processed when the provider was not available at
// construction time.
func (w *TransactionWatcher) SetSubscriptions(s SubscriptionSource) {
	w.mu.Lock()
	w.subs = s
	w.mu.Unlock()
}

// Enqueue appends transactions to the processing queue and drains it.
func (w *TransactionWatcher) Enqueue(txs ...horizon.Transaction) {
	if len(txs) == 0 {
		return
	}
	w.mu.Lock()
	w.queue = append(w.queue, txs...)
	w.mu.Unlock()
	w.ProcessQueue()
}

// ProcessQueue drains the queue in arrival order. Concurrent calls are
// no-ops while a drain is already running.
func (w *TransactionWatcher) ProcessQueue() {
	w.mu.Lock()
	if w.draining {
		w.mu.Unlock()
		return
	}
	w.draining = true
	w.mu.Unlock()

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.draining = false
			w.mu.Unlock()
			return
		}
		tx := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.process(&tx)
	}
}

func (w *TransactionWatcher) process(tx *horizon.Transaction) {
	ctx := context.Background()

	parsed, err := Normalize(tx)
	if err != nil {
		w.logger.Warn("skipping malformed transaction",
			log.Str("hash", tx.Hash), log.Err(err))
		return
	}

	w.mu.Lock()
	subsrc := w.subs
	w.mu.Unlock()
	var subs []*model.Subscription
	if subsrc != nil {
		subs = subsrc.GetActiveSubscriptions()
	}
	var notifications []*model.Notification
	matched := make(map[string]struct{})
	for _, op := range parsed.Operations {
		var pending []string
		for _, sub := range subs {
			if match.Matches(sub, op) {
				pending = append(pending, sub.ID)
				matched[sub.ID] = struct{}{}
			}
		}
		if len(pending) > 0 {
			notifications = append(notifications, &model.Notification{
				ID:            op.ID,
				Payload:       op,
				Subscriptions: pending,
				Created:       time.Now().UTC(),
			})
		}
	}

	if len(notifications) > 0 {
		if _, err := w.store.CreateNotifications(ctx, notifications); err != nil {
			w.logger.Error("failed to persist notifications",
				log.Str("tx", parsed.ID), log.Err(err))
			return
		}
	}
	// cursor persistence failures are logged, never fatal
	if err := w.store.SetCursor(ctx, parsed.Details.PagingToken); err != nil {
		w.logger.Error("failed to persist ingestion cursor",
			log.Str("token", parsed.Details.PagingToken), log.Err(err))
	}
	if len(notifications) > 0 && w.notify != nil {
		subIDs := make([]string, 0, len(matched))
		for id := range matched {
			subIDs = append(subIDs, id)
		}
		w.notify(subIDs)
	}
}

// Watch starts ingestion. With no persisted cursor the watcher goes straight
// to the live stream; otherwise it fast-forwards through the historical feed
// first.
func (w *TransactionWatcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return errors.New("ingest: watcher already active")
	}
	w.watching = true
	w.mu.Unlock()

	cursor, err := w.store.GetCursor(ctx)
	if err != nil {
		w.reset()
		return fmt.Errorf("ingest: read cursor: %w", err)
	}
	if cursor != "" && cursor != "0" {
		if err := w.fastForward(ctx, cursor); err != nil {
			w.reset()
			return err
		}
	}

	release, err := w.source.StreamTransactions(ctx, func(tx horizon.Transaction) {
		w.Enqueue(tx)
	})
	if err != nil {
		w.reset()
		return fmt.Errorf("ingest: open stream: %w", err)
	}
	w.mu.Lock()
	w.release = release
	w.mu.Unlock()
	w.logger.Info("live transaction stream started")
	return nil
}

// fastForward pages through transactions missed while offline. Fetch errors
// are retried with a linearly growing pause; the retry counter resets on
// every successful page.
func (w *TransactionWatcher) fastForward(ctx context.Context, cursor string) error {
	w.logger.Info("fast-forwarding from persisted cursor", log.Str("cursor", cursor))
	attempt := 0
	for {
		page, err := w.source.FetchTransactions(ctx, cursor, w.pageSize, horizon.OrderAsc)
		if err != nil {
			attempt++
			if attempt >= w.fetchRetries {
				return fmt.Errorf("ingest: fast-forward failed after %d attempts: %w", attempt, err)
			}
			w.logger.Warn("historical fetch failed, retrying",
				log.Int("attempt", attempt), log.Err(err))
			select {
			case <-time.After(time.Duration(attempt) * w.retryPause):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		attempt = 0
		if len(page) == 0 {
			return nil
		}
		cursor = page[len(page)-1].PagingToken
		w.Enqueue(page...)
	}
}

// StopWatching releases the live stream.
func (w *TransactionWatcher) StopWatching() {
	w.mu.Lock()
	release := w.release
	w.release = nil
	w.watching = false
	w.mu.Unlock()
	if release != nil {
		release()
	}
}

func (w *TransactionWatcher) reset() {
	w.mu.Lock()
	w.watching = false
	w.mu.Unlock()
}
