// Package pebblestore implements the durable storage provider on top of
// Pebble. Subscription and notification rows are msgpack-encoded; delivery
// order per subscription is maintained via a sequence-keyed secondary index,
// and the ingestion cursor is guarded for monotonicity inside the provider.
package pebblestore
