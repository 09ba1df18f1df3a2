// Package storetest holds the behaviour every application.Store
// implementation must share. Each backend runs it from its own tests.
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/DanielPopoola/fetchcache/internal/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run expects an empty store.
func Run(t *testing.T, store application.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		v, found, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k1", `{"data":1,"timestamp":1}`))

		v, found, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"data":1,"timestamp":1}`, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k1", "second"))

		v, found, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "second", v)
	})

	t.Run("empty value is stored", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "empty", ""))

		_, found, err := store.Get(ctx, "empty")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "k1"))
		require.NoError(t, store.Delete(ctx, "never-existed"))

		_, found, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("keys and delete many", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "@api_cache_/a_", "1"))
		require.NoError(t, store.Set(ctx, "@api_cache_/b_", "2"))
		require.NoError(t, store.Set(ctx, "auth_token", "secret"))

		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"@api_cache_/a_", "@api_cache_/b_", "auth_token", "empty"}, keys)

		require.NoError(t, store.DeleteMany(ctx, []string{"@api_cache_/a_", "@api_cache_/b_", "empty"}))
		require.NoError(t, store.DeleteMany(ctx, nil))

		keys, err = store.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"auth_token"}, keys)
	})
}
