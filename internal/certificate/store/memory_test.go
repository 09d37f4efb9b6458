package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/certificate/models"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute).WithClock(func() time.Time { return now })

	_, err := cache.Get(ctx, "CERT-1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, &models.Certificate{CertificateID: "CERT-1", StudentID: "S1"}))
	got, err := cache.Get(ctx, "CERT-1")
	require.NoError(t, err)
	assert.Equal(t, "S1", got.StudentID)

	t.Run("returned record is a copy", func(t *testing.T) {
		got.StudentID = "mutated"
		again, err := cache.Get(ctx, "CERT-1")
		require.NoError(t, err)
		assert.Equal(t, "S1", again.StudentID)
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		now = now.Add(time.Minute)
		_, err := cache.Get(ctx, "CERT-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("delete invalidates", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, &models.Certificate{CertificateID: "CERT-2"}))
		require.NoError(t, cache.Delete(ctx, "CERT-2"))
		_, err := cache.Get(ctx, "CERT-2")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}
