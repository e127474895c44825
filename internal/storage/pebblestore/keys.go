package pebblestore

import (
	"encoding/binary"
)

// Keyspace layout. Keys are lexicographically ordered for efficient range
// scans:
//
//	sub/{id}                    - subscription row (msgpack)
//	ntf/{id}                    - notification row (msgpack)
//	ntfidx/{subID}/{seq_be8}    - per-subscription delivery order index,
//	                              value = notification id
//	meta/ntfseq                 - last assigned notification sequence
//	meta/cursor                 - last ingested paging token (raw string)

var (
	subPrefix    = []byte("sub/")
	ntfPrefix    = []byte("ntf/")
	ntfIdxPrefix = []byte("ntfidx/")
	seqMetaKey   = []byte("meta/ntfseq")
	cursorKey    = []byte("meta/cursor")
)

// SubKey builds the subscription row key.
func SubKey(id string) []byte {
	k := make([]byte, 0, len(subPrefix)+len(id))
	k = append(k, subPrefix...)
	k = append(k, id...)
	return k
}

// NtfKey builds the notification row key.
func NtfKey(id string) []byte {
	k := make([]byte, 0, len(ntfPrefix)+len(id))
	k = append(k, ntfPrefix...)
	k = append(k, id...)
	return k
}

// NtfIdxPrefix builds the per-subscription index prefix.
func NtfIdxPrefix(subscriptionID string) []byte {
	k := make([]byte, 0, len(ntfIdxPrefix)+len(subscriptionID)+1)
	k = append(k, ntfIdxPrefix...)
	k = append(k, subscriptionID...)
	k = append(k, '/')
	return k
}

// NtfIdxKey builds the per-subscription index key for one notification.
func NtfIdxKey(subscriptionID string, seq uint64) []byte {
	prefix := NtfIdxPrefix(subscriptionID)
	k := make([]byte, 0, len(prefix)+8)
	k = append(k, prefix...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

// PrefixUpperBound returns the exclusive upper bound for a prefix scan.
func PrefixUpperBound(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}
