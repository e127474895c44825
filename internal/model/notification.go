package model

import (
	"time"
)

// Notification is one matched operation fanned out to a set of subscriptions.
// The ID equals the operation ID, so re-ingesting the same transaction never
// produces a duplicate row. The row is deleted once Subscriptions is empty.
type Notification struct {
	ID      string     `json:"id" msgpack:"id"`
	Payload *Operation `json:"payload" msgpack:"pl"`
	// Subscriptions holds ids still pending delivery for this operation.
	Subscriptions []string  `json:"subscriptions" msgpack:"ss"`
	Created       time.Time `json:"created" msgpack:"cr"`
	Updated       time.Time `json:"updated" msgpack:"up"`
}

// RemoveSubscription evicts a subscription id from the pending set and
// reports whether any pending recipients remain.
func (n *Notification) RemoveSubscription(subscriptionID string) (remaining int) {
	out := n.Subscriptions[:0]
	for _, id := range n.Subscriptions {
		if id != subscriptionID {
			out = append(out, id)
		}
	}
	n.Subscriptions = out
	return len(out)
}

// PendingFor reports whether the notification still awaits delivery to the
// given subscription.
func (n *Notification) PendingFor(subscriptionID string) bool {
	for _, id := range n.Subscriptions {
		if id == subscriptionID {
			return true
		}
	}
	return false
}
