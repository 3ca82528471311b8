package hostlist

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/redis/go-redis/v9"
)

// Entry is a cached raw list together with the time it was stored.
type Entry struct {
	Value  []byte
	Stored time.Time
}

// Cache is a keyed store of raw list text. Staleness is decided by the cache:
// Get returns ErrCacheMiss for absent keys and for entries older than maxAge.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string, maxAge time.Duration) (Entry, error)
	Put(ctx context.Context, key string, value []byte) error
}

// stampSize is the length of the stored-at header in front of every value.
const stampSize = 8

func encodeEntry(value []byte, stored time.Time) []byte {
	buf := make([]byte, stampSize+len(value))
	binary.BigEndian.PutUint64(buf, uint64(stored.UnixNano()))
	copy(buf[stampSize:], value)
	return buf
}

func decodeEntry(buf []byte) (Entry, error) {
	if len(buf) < stampSize {
		return Entry{}, fmt.Errorf("cache entry too short: %d bytes", len(buf))
	}
	stored := time.Unix(0, int64(binary.BigEndian.Uint64(buf)))
	return Entry{Value: buf[stampSize:], Stored: stored}, nil
}

// fresh reports whether an entry stored at stored is still within maxAge.
// A negative maxAge never expires.
func fresh(stored, now time.Time, maxAge time.Duration) bool {
	if maxAge < 0 {
		return true
	}
	return now.Sub(stored) <= maxAge
}

// DatastoreCache stores entries in an ipfs datastore. Any backend works:
// the in-memory map, badger on disk or DynamoDB.
type DatastoreCache struct {
	ds  datastore.Datastore
	now func() time.Time
}

// NewDatastoreCache wraps ds. The caller keeps ownership of ds and closes it.
func NewDatastoreCache(ds datastore.Datastore) *DatastoreCache {
	return &DatastoreCache{ds: ds, now: time.Now}
}

// NewMemoryCache returns a process-local cache backed by a synchronized map
// datastore.
func NewMemoryCache() *DatastoreCache {
	return NewDatastoreCache(dssync.MutexWrap(datastore.NewMapDatastore()))
}

// Get implements Cache.
func (c *DatastoreCache) Get(ctx context.Context, key string, maxAge time.Duration) (Entry, error) {
	buf, err := c.ds.Get(ctx, datastore.NewKey(key))
	if errors.Is(err, datastore.ErrNotFound) {
		return Entry{}, ErrCacheMiss
	}
	if err != nil {
		return Entry{}, err
	}

	e, err := decodeEntry(buf)
	if err != nil {
		return Entry{}, err
	}
	if !fresh(e.Stored, c.now(), maxAge) {
		return Entry{}, ErrCacheMiss
	}
	return e, nil
}

// Put implements Cache.
func (c *DatastoreCache) Put(ctx context.Context, key string, value []byte) error {
	return c.ds.Put(ctx, datastore.NewKey(key), encodeEntry(value, c.now()))
}

// RedisCache stores entries in redis, so several hostrep servers can share
// one downloaded copy of the list.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisCache wraps client. Keys are stored under "hostrep:".
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, prefix: "hostrep:", now: time.Now}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string, maxAge time.Duration) (Entry, error) {
	buf, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrCacheMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	e, err := decodeEntry(buf)
	if err != nil {
		return Entry{}, err
	}
	if !fresh(e.Stored, c.now(), maxAge) {
		return Entry{}, ErrCacheMiss
	}
	return e, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, encodeEntry(value, c.now()), 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
