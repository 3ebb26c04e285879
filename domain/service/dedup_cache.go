package service

import (
	"sync"

	"golang.org/x/crypto/blake2b"
)

// dedupFingerprint hashes the fields that identify a NetworkEventMessage
// independent of which hop is currently republishing it, so a wrapper
// relayed through more than one node still collapses to one fingerprint.
func dedupFingerprint(originalNodeID, eventTypeName, payload string) [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(originalNodeID))
	h.Write([]byte{0})
	h.Write([]byte(eventTypeName))
	h.Write([]byte{0})
	h.Write([]byte(payload))
	var out [blake2b.Size256]byte
	copy(out[:], h.Sum(nil))
	return out
}

// dedupCache remembers recently seen event fingerprints so the loop
// prevention layer catches a wrapper relayed back through a third node,
// not just a wrapper that returns to its literal originator. It is a
// fixed-capacity ring rather than a time-expired cache: grounded on the
// teacher's ChannelQueue, whose message buffer is a capacity-bounded
// slice rather than an LRU, generalized here from buffering undelivered
// messages to remembering recently seen ones.
type dedupCache struct {
	mu       sync.Mutex
	capacity int
	order    []([blake2b.Size256]byte)
	seen     map[[blake2b.Size256]byte]struct{}
}

func newDedupCache(capacity int) *dedupCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &dedupCache{
		capacity: capacity,
		seen:     make(map[[blake2b.Size256]byte]struct{}, capacity),
	}
}

// seenBefore reports whether fp was already recorded, and records it if
// not. The oldest fingerprint is evicted once capacity is exceeded.
func (c *dedupCache) seenBefore(fp [blake2b.Size256]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[fp]; ok {
		return true
	}

	c.seen[fp] = struct{}{}
	c.order = append(c.order, fp)
	if len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	return false
}
