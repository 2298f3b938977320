package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleView struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func TestNewClientPings(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	mr.Close()
	_, err = NewClient(context.Background(), Options{Addr: mr.Addr()})
	assert.Error(t, err)
}

func TestViewCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	cache := NewViewCache[sampleView](c.Client, time.Minute)

	_, ok := cache.Get(ctx, "view:alice")
	assert.False(t, ok)

	cache.Set(ctx, "view:alice", &sampleView{Name: "alice", Count: 3})
	got, ok := cache.Get(ctx, "view:alice")
	require.True(t, ok)
	assert.Equal(t, sampleView{Name: "alice", Count: 3}, *got)
	assert.Equal(t, time.Minute, mr.TTL("view:alice"))

	cache.Delete(ctx, "view:alice")
	_, ok = cache.Get(ctx, "view:alice")
	assert.False(t, ok)
}

func TestViewCacheIgnoresCorruptEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, mr.Set("view:bad", "{not json"))
	_, ok := NewViewCache[sampleView](c.Client, 0).Get(context.Background(), "view:bad")
	assert.False(t, ok)
}
