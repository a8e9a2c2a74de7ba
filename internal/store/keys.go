package store

import "sync"

// keyPool provides reusable byte slices for building database keys on read
// paths. This reduces allocations on the hot path of database operations.
//
// Write paths must NOT use pooled buffers: badger retains Set/Delete key
// slices by reference until the transaction commits, so releasing a buffer
// back to the pool before commit lets the next key build overwrite a pending
// write's bytes. Write paths build keys as strings and convert, which copies.
var keyPool = sync.Pool{
	New: func() any {
		// Pre-allocate 256 bytes which covers most key sizes:
		// - Prefix (5-10 bytes)
		// - "idx:" (4 bytes)
		// - Index name (up to 20 bytes)
		// - Index value and entity ID (store keys, nanoids)
		return make([]byte, 0, 256)
	},
}

// buildKey constructs a database key from prefix and suffix using a pooled
// buffer. Read-only use (txn.Get) only; callers MUST call releaseKey when
// done with the key.
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0] // Reset length, keep capacity
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// indexKey builds an index key. The entity ID is part of the key so one index
// value can point at many entities; lookups scan the prefix+name+value prefix.
func indexKey(prefix, indexName, value, id string) string {
	return prefix + "idx:" + indexName + ":" + value + ":" + id
}

// releaseKey returns a key buffer to the pool for reuse.
// After calling this, the key slice must not be used.
func releaseKey(key []byte) {
	// Avoids keeping oversized buffers in the pool
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}
