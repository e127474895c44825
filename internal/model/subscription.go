package model

import (
	"time"
)

// SubscriptionStatus enumerates subscription lifecycle states.
type SubscriptionStatus int

const (
	SubscriptionActive SubscriptionStatus = iota
	SubscriptionDeleted
	SubscriptionExpired
)

// Subscription is a user-registered filter with a webhook destination.
type Subscription struct {
	ID     string             `json:"id" msgpack:"id"`
	Pubkey string             `json:"pubkey,omitempty" msgpack:"pk"`
	Status SubscriptionStatus `json:"status" msgpack:"st"`

	// Filter fields. A subscription matches an operation when every set
	// field matches; at least one must be set at creation.
	Account        string `json:"account,omitempty" msgpack:"ac"`
	Asset          *Asset `json:"asset,omitempty" msgpack:"as"`
	Memo           string `json:"memo,omitempty" msgpack:"me"`
	OperationTypes []int  `json:"operation_types,omitempty" msgpack:"ot"`

	ReactionURL string `json:"reaction_url" msgpack:"ru"`

	// DeliveryFailures counts consecutive failed deliveries; reset to zero
	// on success.
	DeliveryFailures int   `json:"delivery_failures" msgpack:"df"`
	Sent             int64 `json:"sent" msgpack:"sn"`

	// IgnoreUntil pauses delivery scheduling until the given instant.
	IgnoreUntil time.Time  `json:"ignore_until,omitempty" msgpack:"iu"`
	Created     time.Time  `json:"created" msgpack:"cr"`
	Updated     time.Time  `json:"updated" msgpack:"up"`
	Expires     *time.Time `json:"expires,omitempty" msgpack:"ex"`

	// Processed marks a subscription with no pending notifications. The
	// watcher clears it when a new match is persisted.
	Processed bool `json:"-" msgpack:"-"`

	// Pending is the transient per-subscription notification cache, owned
	// exclusively by this subscription. Never persisted.
	Pending *NotificationCache `json:"-" msgpack:"-"`
}

// IsExpired reports whether the subscription expiration date has passed.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.Expires != nil && s.Expires.Before(now)
}

// Paused reports whether delivery is currently suspended by backoff.
func (s *Subscription) Paused(now time.Time) bool {
	return !s.IgnoreUntil.IsZero() && s.IgnoreUntil.After(now)
}

// EnsureCache lazily initializes the pending-notification cache.
func (s *Subscription) EnsureCache(capacity int) *NotificationCache {
	if s.Pending == nil {
		s.Pending = NewNotificationCache(capacity)
	}
	return s.Pending
}
