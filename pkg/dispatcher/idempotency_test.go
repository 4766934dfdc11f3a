package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore_RecordIfNew(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute, 100)

	fresh, err := store.RecordIfNew(t.Context(), "pubsub", "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.RecordIfNew(t.Context(), "pubsub", "evt-1")
	require.NoError(t, err)
	assert.False(t, fresh)

	// Families namespace keys, so the same key is fresh on another family.
	fresh, err = store.RecordIfNew(t.Context(), "runbook", "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestMemoryIdempotencyStore_TTLExpiry(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute, 100)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	fresh, err := store.RecordIfNew(t.Context(), "pubsub", "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	clock = clock.Add(30 * time.Second)
	fresh, err = store.RecordIfNew(t.Context(), "pubsub", "evt-1")
	require.NoError(t, err)
	assert.False(t, fresh)

	// Past the TTL the key is fresh again.
	clock = clock.Add(31 * time.Second)
	fresh, err = store.RecordIfNew(t.Context(), "pubsub", "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestMemoryIdempotencyStore_EvictsOldestAtCapacity(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Hour, 2)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	for _, key := range []string{"a", "b"} {
		fresh, err := store.RecordIfNew(t.Context(), "pubsub", key)
		require.NoError(t, err)
		require.True(t, fresh)
		clock = clock.Add(time.Second)
	}

	fresh, err := store.RecordIfNew(t.Context(), "pubsub", "c")
	require.NoError(t, err)
	assert.True(t, fresh)

	// "b" survived; "a" was the oldest entry and is gone.
	fresh, err = store.RecordIfNew(t.Context(), "pubsub", "b")
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = store.RecordIfNew(t.Context(), "pubsub", "a")
	require.NoError(t, err)
	assert.True(t, fresh)
}
