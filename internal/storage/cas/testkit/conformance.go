// Package testkit holds the behavioral checks every cas.Store backend must
// pass.
package testkit

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/storage/cas"
)

// NewStore returns a fresh, isolated store for one subtest.
type NewStore func(t *testing.T) cas.Store

func RunConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("put then get returns identical bytes", func(t *testing.T) {
		store := newStore(t)
		want := []byte("%PDF-1.4 degree certificate")

		id, err := store.Put(ctx, want)
		require.NoError(t, err)
		wantID, err := cas.CIDFor(want)
		require.NoError(t, err)
		assert.True(t, wantID.Equals(id))

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("put is idempotent", func(t *testing.T) {
		store := newStore(t)
		b := []byte("same bytes")

		first, err := store.Put(ctx, b)
		require.NoError(t, err)
		second, err := store.Put(ctx, b)
		require.NoError(t, err)
		assert.True(t, first.Equals(second))
	})

	t.Run("missing object is not found", func(t *testing.T) {
		store := newStore(t)
		b := []byte("missing")
		id, err := cas.CIDFor(b)
		require.NoError(t, err)

		ok, err := store.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Get(ctx, id)
		assert.ErrorIs(t, err, cas.ErrNotFound)

		_, err = store.Put(ctx, b)
		require.NoError(t, err)
		ok, err = store.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("undefined cid is rejected", func(t *testing.T) {
		store := newStore(t)
		ok, err := store.Has(ctx, cid.Undef)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Get(ctx, cid.Undef)
		assert.Error(t, err)
	})

	t.Run("distinct content gets distinct ids", func(t *testing.T) {
		store := newStore(t)
		a, err := store.Put(ctx, []byte("alpha"))
		require.NoError(t, err)
		b, err := store.Put(ctx, []byte("beta"))
		require.NoError(t, err)
		assert.False(t, a.Equals(b))
	})
}
