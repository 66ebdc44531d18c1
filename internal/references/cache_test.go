package references

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

func newTestCache(t *testing.T, next Lookup) (*CachedLookup, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedLookup(next, client, time.Minute, nil), mr
}

func TestCachedLookupServesRepeatHitsFromRedis(t *testing.T) {
	material := Entity{Kind: KindMaterial, ID: uuid.New(), Display: "HDPE granules"}
	backend := newMemoryLookup(material)
	cache, mr := newTestCache(t, backend)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cache.Find(ctx, KindMaterial, material.ID)
		require.NoError(t, err)
		assert.Equal(t, material, got)
	}
	assert.Equal(t, 1, backend.callCount())

	key := cacheKey(KindMaterial, material.ID)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestCachedLookupDoesNotCacheMisses(t *testing.T) {
	backend := newMemoryLookup()
	cache, _ := newTestCache(t, backend)
	id := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := cache.Find(context.Background(), KindBox, id)
		require.ErrorIs(t, err, shared.ErrNotFound)
	}
	assert.Equal(t, 2, backend.callCount())
}

func TestCachedLookupBypassesChallans(t *testing.T) {
	challan := Entity{Kind: KindChallan, ID: uuid.New(), Display: "CH-1"}
	backend := newMemoryLookup(challan)
	cache, mr := newTestCache(t, backend)

	for i := 0; i < 2; i++ {
		_, err := cache.Find(context.Background(), KindChallan, challan.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, backend.callCount())
	assert.False(t, mr.Exists(cacheKey(KindChallan, challan.ID)))
}

func TestCachedLookupInvalidate(t *testing.T) {
	box := Entity{Kind: KindBox, ID: uuid.New(), Display: "BX-1"}
	backend := newMemoryLookup(box)
	cache, _ := newTestCache(t, backend)
	ctx := context.Background()

	_, err := cache.Find(ctx, KindBox, box.ID)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, KindBox, box.ID))
	_, err = cache.Find(ctx, KindBox, box.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.callCount())
}

func TestCachedLookupFallsBackWhenRedisDown(t *testing.T) {
	supplier := Entity{Kind: KindSupplier, ID: uuid.New(), Display: "Patel & Sons"}
	backend := newMemoryLookup(supplier)
	cache, mr := newTestCache(t, backend)
	mr.Close()

	got, err := cache.Find(context.Background(), KindSupplier, supplier.ID)
	require.NoError(t, err)
	assert.Equal(t, supplier, got)
}

func TestCachedLookupWithoutClient(t *testing.T) {
	box := Entity{Kind: KindBox, ID: uuid.New(), Display: "BX-2"}
	backend := newMemoryLookup(box)
	cache := NewCachedLookup(backend, nil, 0, nil)

	got, err := cache.Find(context.Background(), KindBox, box.ID)
	require.NoError(t, err)
	assert.Equal(t, box, got)
	require.NoError(t, cache.Invalidate(context.Background(), KindBox, box.ID))
}
