package hostlist

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ipfs/go-datastore"
	badger4 "github.com/ipfs/go-ds-badger4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock for cache expiry tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func setDatastoreClock(c *DatastoreCache, clk *fakeClock) {
	c.now = clk.now
}

func TestEntryEncoding(t *testing.T) {
	stored := time.Unix(1700000000, 42)
	e, err := decodeEntry(encodeEntry([]byte("0.0.0.0 a.example\n"), stored))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0 a.example\n", string(e.Value))
	assert.True(t, stored.Equal(e.Stored))

	_, err = decodeEntry([]byte{1, 2, 3})
	assert.Error(t, err)
}

// testCache runs the shared Cache contract against c.
func testCache(t *testing.T, c Cache, clk *fakeClock) {
	t.Helper()
	ctx := context.Background()

	_, err := c.Get(ctx, CacheKey, time.Hour)
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Put(ctx, CacheKey, []byte("0.0.0.0 a.example\n")))

	e, err := c.Get(ctx, CacheKey, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0 a.example\n", string(e.Value))
	assert.True(t, clk.now().Equal(e.Stored))

	// Still valid right at the boundary
	clk.advance(time.Hour)
	_, err = c.Get(ctx, CacheKey, time.Hour)
	require.NoError(t, err)

	// Too old for a one hour TTL, fine for a 24 hour one
	clk.advance(time.Second)
	_, err = c.Get(ctx, CacheKey, time.Hour)
	require.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, CacheKey, 24*time.Hour)
	require.NoError(t, err)

	// Overwrite refreshes the timestamp
	require.NoError(t, c.Put(ctx, CacheKey, []byte("0.0.0.0 b.example\n")))
	e, err = c.Get(ctx, CacheKey, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0 b.example\n", string(e.Value))
}

func TestMemoryCache(t *testing.T) {
	clk := newFakeClock()
	c := NewMemoryCache()
	setDatastoreClock(c, clk)
	testCache(t, c, clk)
}

func TestBadgerCache(t *testing.T) {
	ds, err := badger4.NewDatastore(t.TempDir(), nil)
	require.NoError(t, err)
	defer ds.Close()

	clk := newFakeClock()
	c := NewDatastoreCache(ds)
	setDatastoreClock(c, clk)
	testCache(t, c, clk)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clk := newFakeClock()
	c := NewRedisCache(client)
	c.now = clk.now
	testCache(t, c, clk)

	// Keys are namespaced
	assert.True(t, mr.Exists("hostrep:"+CacheKey))
}

func TestRedisCacheUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	c := NewRedisCache(client)
	_, err = c.Get(context.Background(), CacheKey, time.Hour)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestDatastoreCacheCorruptEntry(t *testing.T) {
	ds := datastore.NewMapDatastore()
	require.NoError(t, ds.Put(context.Background(), datastore.NewKey(CacheKey), []byte{0x01}))

	c := NewDatastoreCache(ds)
	_, err := c.Get(context.Background(), CacheKey, time.Hour)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
