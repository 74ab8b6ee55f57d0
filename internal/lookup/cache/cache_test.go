package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	t.Run("miss", func(t *testing.T) {
		_, ok, err := m.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hit returns a copy", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "k", []byte("value"), time.Minute))
		got, ok, err := m.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		got[0] = 'X'

		again, _, _ := m.Get(ctx, "k")
		assert.Equal(t, "value", string(again))
	})

	t.Run("expired entries are evicted", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "short", []byte("v"), time.Second))
		now = now.Add(2 * time.Second)
		_, ok, err := m.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "forever", []byte("v"), 0))
		now = now.Add(24 * time.Hour)
		_, ok, err := m.Get(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestBolt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	b, err := OpenBolt(path)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "https://issuer.example.org/profile.json", []byte(`{"id":"x"}`), time.Hour))
	require.NoError(t, b.Set(ctx, "short", []byte("v"), time.Minute))

	got, ok, err := b.Get(ctx, "https://issuer.example.org/profile.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"x"}`, string(got))

	now = now.Add(2 * time.Minute)
	_, ok, err = b.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must miss")

	require.NoError(t, b.Close())

	// entries survive reopening the file
	reopened, err := OpenBolt(path)
	require.NoError(t, err)
	defer reopened.Close()
	reopened.now = func() time.Time { return now }
	got, ok, err = reopened.Get(ctx, "https://issuer.example.org/profile.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"x"}`, string(got))
}
