package hostsblock

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ipshipyard/hostrep/hostlist"
)

var errBackendClosed = errors.New("cache backend closed")

// backend is the cache store named by database-type. It is closed when the
// server reloads, so the next setup can open the same badger directory or
// redis server, and reopened if that reload fails.
type backend struct {
	databaseType string
	args         []string

	mu     sync.RWMutex
	cache  hostlist.Cache
	closer io.Closer
}

func openBackend(databaseType string, args []string) (*backend, error) {
	b := &backend{databaseType: databaseType, args: args}
	if err := b.open(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *backend) open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cache != nil {
		return nil
	}
	cache, closer, err := openCache(b.databaseType, b.args)
	if err != nil {
		return err
	}
	b.cache, b.closer = cache, closer
	return nil
}

// Close releases the store. Stores without a closer stay usable.
func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closer == nil {
		return nil
	}
	err := b.closer.Close()
	b.cache, b.closer = nil, nil
	return err
}

// reopen undoes Close after a failed reload.
func (b *backend) reopen() error {
	if err := b.open(); err != nil {
		log.Errorf("reopening %s cache: %v", b.databaseType, err)
		return err
	}
	return nil
}

func (b *backend) Get(ctx context.Context, key string, maxAge time.Duration) (hostlist.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cache == nil {
		return hostlist.Entry{}, errBackendClosed
	}
	return b.cache.Get(ctx, key, maxAge)
}

func (b *backend) Put(ctx context.Context, key string, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cache == nil {
		return errBackendClosed
	}
	return b.cache.Put(ctx, key, value)
}
