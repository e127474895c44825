// Package notifier delivers stored notifications to subscription reaction
// URLs. Deliveries are signed, bounded by a concurrency cap, and retried
// with a cubic backoff after failures.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/signing"
	"github.com/stellar-expert/operations-notifier/internal/storage"
	"github.com/stellar-expert/operations-notifier/pkg/log"
)

// Request headers attached to every delivery.
const (
	HeaderSignature    = signing.SignatureHeader
	HeaderSubscription = "X-Subscription"

	defaultConcurrency = 100
	defaultTimeout     = 10 * time.Second
	defaultUserAgent   = "operations-notifier"
)

// SubscriptionSource yields the active subscriptions eligible for delivery
// scheduling.
type SubscriptionSource interface {
	GetActiveSubscriptions() []*model.Subscription
}

// Options configures a Notifier.
type Options struct {
	Store         storage.Store
	Subscriptions SubscriptionSource
	Signer        *signing.Signer
	Logger        log.Logger

	// Concurrency caps simultaneous in-flight deliveries.
	Concurrency int
	// Timeout bounds each webhook POST.
	Timeout time.Duration
	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// Payload is the JSON body POSTed to a reaction URL.
type Payload struct {
	ID           string                    `json:"id"`
	Subscription string                    `json:"subscription"`
	Type         string                    `json:"type"`
	Created      time.Time                 `json:"created"`
	Sent         time.Time                 `json:"sent"`
	Operation    *model.Operation          `json:"operation"`
	Transaction  *model.TransactionDetails `json:"transaction"`
}

// Notifier schedules and performs webhook deliveries. A subscription id is in
// the in-progress set for the whole duration of one delivery attempt, which
// serializes deliveries per subscription.
type Notifier struct {
	store     storage.Store
	subs      SubscriptionSource
	signer    *signing.Signer
	logger    log.Logger
	client    *http.Client
	userAgent string

	concurrency int
	timeout     time.Duration

	mu         sync.Mutex
	idle       *sync.Cond
	inProgress map[string]struct{}
	// marks counts MarkPending calls per subscription; a delivery that found
	// no pending work only flips Processed when the count is unchanged since
	// it started.
	marks   map[string]uint64
	timers  map[string]*time.Timer
	stopped bool
}

// New builds a Notifier. Zero option fields fall back to defaults.
func New(opts Options) *Notifier {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	n := &Notifier{
		store:       opts.Store,
		subs:        opts.Subscriptions,
		signer:      opts.Signer,
		logger:      opts.Logger.WithComponent("notifier"),
		client:      &http.Client{Timeout: opts.Timeout},
		userAgent:   opts.UserAgent,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		inProgress:  make(map[string]struct{}),
		marks:       make(map[string]uint64),
		timers:      make(map[string]*time.Timer),
	}
	n.idle = sync.NewCond(&n.mu)
	return n
}

// SetSubscriptions wires the subscription provider. Must be called before
// the first scheduling pass when the provider was not available at
// construction time.
func (n *Notifier) SetSubscriptions(s SubscriptionSource) {
	n.mu.Lock()
	n.subs = s
	n.mu.Unlock()
}

// MarkPending flips subscriptions back to unprocessed after new notifications
// were persisted for them. The flag is only ever written under the scheduling
// lock, and bumping the mark counter keeps a concurrent delivery that found an
// empty queue from flipping it back.
func (n *Notifier) MarkPending(subIDs []string) {
	if len(subIDs) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		return
	}
	ids := make(map[string]struct{}, len(subIDs))
	for _, id := range subIDs {
		ids[id] = struct{}{}
	}
	for _, sub := range n.subs.GetActiveSubscriptions() {
		if _, ok := ids[sub.ID]; ok {
			sub.Processed = false
			n.marks[sub.ID]++
		}
	}
}

// Wake runs one scheduling pass, starting deliveries for eligible
// subscriptions until the concurrency cap is reached or none remain.
func (n *Notifier) Wake() {
	for {
		sub := n.pickEligible()
		if sub == nil {
			return
		}
		go n.deliver(sub)
	}
}

// pickEligible reserves a uniformly random subscription that has pending
// work, is not paused by backoff, and is not already being processed.
func (n *Notifier) pickEligible() *model.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped || n.subs == nil || len(n.inProgress) >= n.concurrency {
		return nil
	}
	now := time.Now()
	var eligible []*model.Subscription
	for _, sub := range n.subs.GetActiveSubscriptions() {
		// busy check first: an in-flight delivery owns the subscription's
		// mutable fields until it releases the id
		if _, busy := n.inProgress[sub.ID]; busy {
			continue
		}
		if sub.Processed || sub.Paused(now) {
			continue
		}
		eligible = append(eligible, sub)
	}
	if len(eligible) == 0 {
		return nil
	}
	sub := eligible[rand.Intn(len(eligible))]
	n.inProgress[sub.ID] = struct{}{}
	return sub
}

func (n *Notifier) deliver(sub *model.Subscription) {
	ctx := context.Background()

	n.mu.Lock()
	mark := n.marks[sub.ID]
	n.mu.Unlock()

	notification, err := n.next(ctx, sub)
	if err != nil {
		n.logger.Error("failed to load pending notification",
			log.Str("subscription", sub.ID), log.Err(err))
		n.release(sub.ID)
		return
	}
	if notification == nil {
		n.mu.Lock()
		// a mark bump means the watcher persisted new work after the fetch
		// above missed it; leave the subscription unprocessed in that case
		stale := n.marks[sub.ID] != mark
		if !stale {
			sub.Processed = true
		}
		delete(n.inProgress, sub.ID)
		n.idle.Broadcast()
		n.mu.Unlock()
		if stale {
			n.Wake()
		}
		return
	}

	if err := n.send(ctx, sub, notification); err != nil {
		n.logger.Warn("delivery failed",
			log.Str("subscription", sub.ID),
			log.Str("notification", notification.ID),
			log.Err(err))
		n.handleFailure(ctx, sub)
		return
	}
	n.handleSuccess(ctx, sub, notification)
}

// next serves the oldest pending notification, preferring the in-memory
// cache over a storage round trip.
func (n *Notifier) next(ctx context.Context, sub *model.Subscription) (*model.Notification, error) {
	cache := sub.EnsureCache(model.DefaultCacheCapacity)
	if nt := cache.Peek(); nt != nil {
		return nt, nil
	}
	nt, err := n.store.FetchNextNotification(ctx, sub.ID)
	if err != nil || nt == nil {
		return nil, err
	}
	cache.Add(nt)
	return nt, nil
}

func (n *Notifier) send(ctx context.Context, sub *model.Subscription, nt *model.Notification) error {
	body, err := json.Marshal(Payload{
		ID:           nt.ID,
		Subscription: sub.ID,
		Type:         "operation",
		Created:      nt.Created,
		Sent:         time.Now().UTC(),
		Operation:    nt.Payload,
		Transaction:  nt.Payload.TransactionDetails,
	})
	if err != nil {
		return err
	}
	signature, err := n.signer.Sign(body)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(rctx, http.MethodPost, sub.ReactionURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderSubscription, sub.ID)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("reaction returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) handleSuccess(ctx context.Context, sub *model.Subscription, nt *model.Notification) {
	if err := n.store.MarkDelivered(ctx, nt, sub); err != nil {
		n.logger.Error("failed to mark notification delivered",
			log.Str("notification", nt.ID), log.Err(err))
		n.release(sub.ID)
		return
	}
	sub.EnsureCache(model.DefaultCacheCapacity).Evict(nt.ID)
	sub.DeliveryFailures = 0
	sub.Sent++
	sub.IgnoreUntil = time.Time{}
	if _, err := n.store.SaveSubscription(ctx, sub); err != nil {
		n.logger.Error("failed to persist subscription state",
			log.Str("subscription", sub.ID), log.Err(err))
	}
	n.release(sub.ID)
	// more notifications may be pending for this subscription
	n.Wake()
}

func (n *Notifier) handleFailure(ctx context.Context, sub *model.Subscription) {
	sub.DeliveryFailures++
	pause := BackoffPause(sub.DeliveryFailures)
	sub.IgnoreUntil = time.Now().Add(pause)
	if _, err := n.store.SaveSubscription(ctx, sub); err != nil {
		n.logger.Error("failed to persist subscription state",
			log.Str("subscription", sub.ID), log.Err(err))
	}
	n.release(sub.ID)
	n.scheduleRetry(sub.ID, pause)
}

// BackoffPause returns the delivery pause after n consecutive failures:
// n cubed seconds plus up to one second of jitter.
func BackoffPause(failures int) time.Duration {
	cubed := time.Duration(failures*failures*failures) * time.Second
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return cubed + jitter
}

func (n *Notifier) release(subID string) {
	n.mu.Lock()
	delete(n.inProgress, subID)
	n.idle.Broadcast()
	n.mu.Unlock()
}

// scheduleRetry arms a timer that triggers a scheduling pass once the
// subscription's backoff pause elapses.
func (n *Notifier) scheduleRetry(subID string, pause time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	if t, ok := n.timers[subID]; ok {
		t.Stop()
	}
	n.timers[subID] = time.AfterFunc(pause, func() {
		n.mu.Lock()
		delete(n.timers, subID)
		n.mu.Unlock()
		n.Wake()
	})
}

// Stop cancels all retry timers, prevents further scheduling, and blocks
// until every in-flight delivery has released its subscription. Only after
// Stop returns is it safe to close the backing store.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	for len(n.inProgress) > 0 {
		n.idle.Wait()
	}
}

// InProgress reports the number of deliveries currently in flight.
func (n *Notifier) InProgress() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inProgress)
}
