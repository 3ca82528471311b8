// Package hostlist answers whether a hostname is on the Steven Black Hosts
// block list. The list is fetched over HTTP, kept in a Cache for a configured
// period, and parsed into a set of lowercase hostnames.
package hostlist

import (
	"errors"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("hostlist")

const (
	// ListName is the human readable name of the block list.
	ListName = "Steven Black Hosts"
	// ListURL is where the block list is published.
	ListURL = "https://raw.githubusercontent.com/StevenBlack/hosts/master/hosts"
	// CacheKey identifies the raw list text in a Cache.
	CacheKey = "stevenblack_hosts"

	// DefaultCachePeriod is how long a cached copy of the list stays valid.
	DefaultCachePeriod = 24 * time.Hour
	// DefaultFetchTimeout bounds a single list download.
	DefaultFetchTimeout = 30 * time.Second
)

var (
	// ErrFetch is returned when the list could not be downloaded: transport
	// failure, a status other than "200" or an absent body.
	ErrFetch = errors.New("block list fetch failed")
	// ErrMalformedLine marks a non-comment line with fewer than two fields.
	ErrMalformedLine = errors.New("malformed block list line")
	// ErrCacheMiss is returned by a Cache when the key is absent or too old.
	ErrCacheMiss = errors.New("cache miss")
)
