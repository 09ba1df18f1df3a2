package postgres_test

import (
	"context"
	"testing"

	"github.com/DanielPopoola/fetchcache/internal/infrastructure/persistence/storetest"
	"github.com/DanielPopoola/fetchcache/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	db := testhelpers.SetupTestDatabase(t)
	defer db.Cleanup(t)

	storetest.Run(t, db.Store)
}

func TestStore_EnsureSchemaIsIdempotent(t *testing.T) {
	db := testhelpers.SetupTestDatabase(t)
	defer db.Cleanup(t)

	ctx := context.Background()
	require.NoError(t, db.Store.EnsureSchema(ctx))

	require.NoError(t, db.Store.Set(ctx, "k", "v"))
	require.NoError(t, db.Store.EnsureSchema(ctx))

	v, found, err := db.Store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	db.CleanTables(t)
	_, found, err = db.Store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}
