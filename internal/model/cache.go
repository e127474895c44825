package model

import (
	"sync"
)

// NotificationCache is a bounded FIFO cache of pending notifications owned by
// a single subscription. The notifier fills it from storage fetches and peeks
// it before the next round trip, evicting entries once delivered. All
// operations are safe for concurrent use.
type NotificationCache struct {
	mu       sync.Mutex
	capacity int
	items    []*Notification
}

// DefaultCacheCapacity bounds per-subscription cache growth under bursts.
const DefaultCacheCapacity = 100

// NewNotificationCache creates a cache bounded to the given capacity.
// Non-positive capacities fall back to DefaultCacheCapacity.
func NewNotificationCache(capacity int) *NotificationCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &NotificationCache{capacity: capacity}
}

// Add appends a notification and reports whether it was cached. Full caches
// reject the add; the notification is still persisted and will be served from
// storage instead.
func (c *NotificationCache) Add(n *Notification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.capacity {
		return false
	}
	c.items = append(c.items, n)
	return true
}

// Peek returns the oldest cached notification without removing it, or nil.
func (c *NotificationCache) Peek() *Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return nil
	}
	return c.items[0]
}

// Evict removes the notification with the given id and reports whether it was
// present.
func (c *NotificationCache) Evict(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of cached notifications.
func (c *NotificationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
