package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runbookd/runbookd/pkg/persistence"
)

func TestStore_PutGet(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(t.Context(), "run_run-1", []byte(`{"status":"pending"}`)))

	data, err := store.Get(t.Context(), "run_run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"pending"}`, string(data))

	// Overwrite replaces the value.
	require.NoError(t, store.Put(t.Context(), "run_run-1", []byte(`{"status":"completed"}`)))

	data, err = store.Get(t.Context(), "run_run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"completed"}`, string(data))
}

func TestStore_GetMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(t.Context(), "run_ghost")
	assert.ErrorIs(t, err, persistence.ErrKeyNotFound)
}

func TestStore_ListKeysByPrefix(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"run_a", "run_b", "step_a_1"} {
		require.NoError(t, store.Put(t.Context(), key, []byte("{}")))
	}

	keys, err := store.ListKeys(t.Context(), "run_")
	require.NoError(t, err)
	assert.Equal(t, []string{"run_a", "run_b"}, keys)

	keys, err = store.ListKeys(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestNewStore_StripsURLScheme(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore("file://" + dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(t.Context(), "k", []byte("v")))
	require.NoError(t, store.HealthCheck(t.Context()))
	require.NoError(t, store.Close(t.Context()))
}
