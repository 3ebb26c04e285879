package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_SecondSightingIsSuppressed(t *testing.T) {
	c := newDedupCache(10)
	fp := dedupFingerprint("node-a", "conexus.events.StatusEvent", `{"status":"ONLINE"}`)

	assert.False(t, c.seenBefore(fp))
	assert.True(t, c.seenBefore(fp))
}

func TestDedupCache_DistinctPayloadsDoNotCollide(t *testing.T) {
	c := newDedupCache(10)
	a := dedupFingerprint("node-a", "conexus.events.StatusEvent", `{"status":"ONLINE"}`)
	b := dedupFingerprint("node-a", "conexus.events.StatusEvent", `{"status":"OFFLINE"}`)

	assert.False(t, c.seenBefore(a))
	assert.False(t, c.seenBefore(b))
}

func TestDedupCache_EvictsOldestBeyondCapacity(t *testing.T) {
	c := newDedupCache(2)
	first := dedupFingerprint("node-a", "t", "1")
	second := dedupFingerprint("node-a", "t", "2")
	third := dedupFingerprint("node-a", "t", "3")

	assert.False(t, c.seenBefore(first))
	assert.False(t, c.seenBefore(second))
	assert.True(t, c.seenBefore(second), "second is still within capacity and must stay remembered")
	assert.False(t, c.seenBefore(third)) // evicts first, the oldest entry

	assert.False(t, c.seenBefore(first), "first fingerprint was evicted so it is treated as new again")
}
