package hostlist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// downloads coalesces concurrent cache misses for the same cache and URL
// within this process.
var downloads singleflight.Group

// Config configures a Service. Zero values select the defaults.
type Config struct {
	URL          string        // list location (default: ListURL)
	CachePeriod  time.Duration // max age of a cached copy (default: DefaultCachePeriod)
	FetchTimeout time.Duration // per download (default: DefaultFetchTimeout)
	UserAgent    string        // default: derived from build info
	Cache        Cache         // default: NewMemoryCache()
	Fetcher      Fetcher       // default: NewHTTPFetcher()
}

// Service answers block list membership from a cached copy of the list.
//
// The first failed download latches the Service into an error state. From
// then on every check reports "not blocked" without touching the cache or the
// network. The latch is never cleared; create a new Service to retry.
type Service struct {
	url          string
	cachePeriod  time.Duration
	fetchTimeout time.Duration
	userAgent    string
	cache        Cache
	fetcher      Fetcher

	errorState atomic.Bool
	parsed     atomic.Pointer[parsedList]
}

// parsedList is the last list parsed from the cache, keyed by the time the
// raw text was stored.
type parsedList struct {
	stored time.Time
	list   BlockList
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	s := &Service{
		url:          cfg.URL,
		cachePeriod:  cfg.CachePeriod,
		fetchTimeout: cfg.FetchTimeout,
		userAgent:    cfg.UserAgent,
		cache:        cfg.Cache,
		fetcher:      cfg.Fetcher,
	}
	if s.url == "" {
		s.url = ListURL
	}
	if s.cachePeriod == 0 {
		s.cachePeriod = DefaultCachePeriod
	}
	if s.fetchTimeout == 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}
	if s.userAgent == "" {
		s.userAgent = userAgent()
	}
	if s.cache == nil {
		s.cache = NewMemoryCache()
	}
	if s.fetcher == nil {
		s.fetcher = NewHTTPFetcher()
	}
	return s
}

// URL returns the list location this Service downloads from.
func (s *Service) URL() string {
	return s.url
}

// Errored reports whether a download has failed for this Service.
func (s *Service) Errored() bool {
	return s.errorState.Load()
}

// Retrieve returns the block list, from the cache when it holds a fresh copy
// and from the network otherwise. A successful download is written through
// to the cache.
func (s *Service) Retrieve(ctx context.Context) (BlockList, error) {
	if s.errorState.Load() {
		return nil, ErrFetch
	}

	e, err := s.cache.Get(ctx, CacheKey, s.cachePeriod)
	if err == nil {
		incCacheLookup("hit")
		return s.parse(e), nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Warnf("cache lookup for %s failed, fetching instead: %v", CacheKey, err)
	}
	incCacheLookup("miss")

	key := fmt.Sprintf("%p %s", s.cache, s.url)
	ch := downloads.DoChan(key, func() (any, error) {
		// outlives any one caller; Fetch applies the timeout
		fctx := context.WithoutCancel(ctx)
		// a download that finished since our lookup has already filled the cache
		if e, err := s.cache.Get(fctx, CacheKey, s.cachePeriod); err == nil {
			return e, nil
		}
		return s.download(fctx)
	})

	select {
	case <-ctx.Done():
		// our caller gave up; the download carries on for the others
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrFetch) {
				s.errorState.Store(true)
			}
			return nil, res.Err
		}
		return s.parse(res.Val.(Entry)), nil
	}
}

// download fetches the raw list and stores it in the cache.
func (s *Service) download(ctx context.Context) (Entry, error) {
	res, err := s.fetcher.Fetch(ctx, s.url, s.fetchTimeout, s.userAgent)
	if err != nil {
		incFetch("error")
		log.Errorf("fetching %s: %v", s.url, err)
		return Entry{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	if res.Code != "200" {
		incFetch("bad_status")
		log.Errorf("Unexpected HTTP response code %s from %s", res.Code, s.url)
		return Entry{}, fmt.Errorf("%w: unexpected status code %s", ErrFetch, res.Code)
	}

	if res.Content == nil {
		incFetch("no_content")
		log.Errorf("Received no content from %s", s.url)
		return Entry{}, fmt.Errorf("%w: no content", ErrFetch)
	}

	if err := s.cache.Put(ctx, CacheKey, res.Content); err != nil {
		// the list is still usable for this call
		log.Warnf("storing %s in cache: %v", CacheKey, err)
	}

	incFetch("ok")
	now := time.Now()
	updateLastUpdate(now.Unix())
	return Entry{Value: res.Content, Stored: now}, nil
}

// parse turns a cache entry into a BlockList, reusing the previous result
// when the entry has not changed.
func (s *Service) parse(e Entry) BlockList {
	if p := s.parsed.Load(); p != nil && p.stored.Equal(e.Stored) {
		return p.list
	}

	bl, err := Parse(bytes.NewReader(e.Value))
	if err != nil {
		log.Warnf("parse block list: %v", err)
	}
	s.parsed.Store(&parsedList{stored: e.Stored, list: bl})
	updateEntries(bl.Len())
	return bl
}

// IsBlocked reports whether hostname is on the block list. Every failure
// degrades to false.
func (s *Service) IsBlocked(ctx context.Context, hostname string) bool {
	bl, err := s.Retrieve(ctx)
	if err != nil {
		incLookup("skipped")
		return false
	}

	if bl.Contains(hostname) {
		log.Debugf("Host name %s found in %s block list.", hostname, ListName)
		incLookup("blocked")
		return true
	}

	incLookup("clean")
	return false
}
