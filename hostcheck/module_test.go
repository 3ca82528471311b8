package hostcheck

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipshipyard/hostrep/event"
	"github.com/ipshipyard/hostrep/hostlist"
)

const testList = "# Steven Black hosts\n0.0.0.0 malicious.test\n0.0.0.0 evil.example\n"

// newCachedModule returns a Module whose list is already in the cache.
func newCachedModule(t *testing.T, cfg Config) *Module {
	t.Helper()
	cache := hostlist.NewMemoryCache()
	require.NoError(t, cache.Put(context.Background(), hostlist.CacheKey, []byte(testList)))
	svc := hostlist.NewService(hostlist.Config{
		URL:         "http://127.0.0.1:1/unreachable",
		CachePeriod: cfg.CachePeriod,
		Cache:       cache,
	})
	return New(cfg, svc)
}

func input(typ, data string) event.Event {
	return event.New(typ, data, "sfp_dnsresolve", nil)
}

func TestHandleEventClassification(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		in       event.Event
		wantType string
		wantOK   bool
	}{
		{
			name:     "internet name listed",
			cfg:      DefaultConfig(),
			in:       input("INTERNET_NAME", "malicious.test"),
			wantType: "MALICIOUS_INTERNET_NAME",
			wantOK:   true,
		},
		{
			name:     "affiliate listed",
			cfg:      DefaultConfig(),
			in:       input("AFFILIATE_INTERNET_NAME", "evil.example"),
			wantType: "MALICIOUS_AFFILIATE_INTERNET_NAME",
			wantOK:   true,
		},
		{
			name:     "cohost listed",
			cfg:      DefaultConfig(),
			in:       input("CO_HOSTED_SITE", "evil.example"),
			wantType: "MALICIOUS_COHOST",
			wantOK:   true,
		},
		{
			name:   "affiliate disabled",
			cfg:    Config{CheckAffiliates: false, CheckCohosts: true, CachePeriod: time.Hour},
			in:     input("AFFILIATE_INTERNET_NAME", "evil.example"),
			wantOK: false,
		},
		{
			name:   "cohost disabled",
			cfg:    Config{CheckAffiliates: true, CheckCohosts: false, CachePeriod: time.Hour},
			in:     input("CO_HOSTED_SITE", "evil.example"),
			wantOK: false,
		},
		{
			name:   "unlisted host",
			cfg:    DefaultConfig(),
			in:     input("INTERNET_NAME", "benign.example"),
			wantOK: false,
		},
		{
			name:   "unwatched type",
			cfg:    DefaultConfig(),
			in:     input("IP_ADDRESS", "malicious.test"),
			wantOK: false,
		},
		{
			name:   "subdomain is not a match",
			cfg:    DefaultConfig(),
			in:     input("INTERNET_NAME", "www.malicious.test"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newCachedModule(t, tt.cfg)
			out, ok := m.HandleEvent(context.Background(), tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantType, out.Type)
			assert.Equal(t, ModuleName, out.Module)
			assert.NotEmpty(t, out.ID)
			require.NotNil(t, out.Parent)
			assert.Equal(t, tt.in.ID, out.Parent.ID)
			assert.Equal(t, Describe(tt.in.Data), out.Data)
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t,
		"Steven Black Hosts Blocklist [malicious.test]\n<SFURL>https://raw.githubusercontent.com/StevenBlack/hosts/master/hosts</SFURL>",
		Describe("malicious.test"))
}

func TestAffiliateDisabledThenInternetName(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.CheckAffiliates = false

	// separate scans so the seen set does not interfere
	_, ok := newCachedModule(t, cfg).HandleEvent(ctx, input("AFFILIATE_INTERNET_NAME", "malicious.test"))
	assert.False(t, ok)

	out, ok := newCachedModule(t, cfg).HandleEvent(ctx, input("INTERNET_NAME", "malicious.test"))
	require.True(t, ok)
	assert.Equal(t, "MALICIOUS_INTERNET_NAME", out.Type)
}

func TestHandleEventDeduplicates(t *testing.T) {
	ctx := context.Background()
	m := newCachedModule(t, DefaultConfig())

	_, ok := m.HandleEvent(ctx, input("INTERNET_NAME", "malicious.test"))
	assert.True(t, ok)
	_, ok = m.HandleEvent(ctx, input("INTERNET_NAME", "malicious.test"))
	assert.False(t, ok, "second event for the same host must be dropped")

	// the seen set is keyed on the hostname regardless of type
	_, ok = m.HandleEvent(ctx, input("CO_HOSTED_SITE", "malicious.test"))
	assert.False(t, ok)

	// a disabled category still marks the host as seen
	cfg := DefaultConfig()
	cfg.CheckAffiliates = false
	m = newCachedModule(t, cfg)
	_, ok = m.HandleEvent(ctx, input("AFFILIATE_INTERNET_NAME", "evil.example"))
	assert.False(t, ok)
	_, ok = m.HandleEvent(ctx, input("INTERNET_NAME", "evil.example"))
	assert.False(t, ok)
	assert.Equal(t, 1, m.Checked())
}

func TestHandleEventCaseInsensitiveEndToEnd(t *testing.T) {
	ctx := context.Background()
	cache := hostlist.NewMemoryCache()
	require.NoError(t, cache.Put(ctx, hostlist.CacheKey, []byte("0.0.0.0 malicious.test\n")))
	svc := hostlist.NewService(hostlist.Config{Cache: cache, URL: "http://127.0.0.1:1/"})
	m := New(DefaultConfig(), svc)

	assert.True(t, svc.IsBlocked(ctx, "Malicious.Test"))

	out, ok := m.HandleEvent(ctx, input("INTERNET_NAME", "Malicious.Test"))
	require.True(t, ok)
	assert.Equal(t, "MALICIOUS_INTERNET_NAME", out.Type)
	assert.Contains(t, out.Data, "Malicious.Test")
	assert.True(t, svc.IsBlocked(ctx, "malicious.test"))
}

func TestHandleEventAfterFetchFailure(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx := context.Background()
	svc := hostlist.NewService(hostlist.Config{URL: srv.URL, Cache: hostlist.NewMemoryCache()})
	m := New(DefaultConfig(), svc)

	_, ok := m.HandleEvent(ctx, input("INTERNET_NAME", "malicious.test"))
	assert.False(t, ok)
	assert.True(t, m.Errored())

	for _, h := range []string{"a.example", "b.example", "c.example"} {
		_, ok := m.HandleEvent(ctx, input("INTERNET_NAME", h))
		assert.False(t, ok)
	}
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, 4, m.Checked())
}

func TestHandleEventFetchesOnMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, testList)
	}))
	defer srv.Close()

	svc := hostlist.NewService(hostlist.Config{URL: srv.URL, Cache: hostlist.NewMemoryCache()})
	m := New(DefaultConfig(), svc)

	out, ok := m.HandleEvent(context.Background(), input("CO_HOSTED_SITE", "evil.example"))
	require.True(t, ok)
	assert.Equal(t, "MALICIOUS_COHOST", out.Type)
}

func TestWatchedAndProducedEvents(t *testing.T) {
	m := newCachedModule(t, DefaultConfig())
	assert.Equal(t, []string{"INTERNET_NAME", "AFFILIATE_INTERNET_NAME", "CO_HOSTED_SITE"}, m.WatchedEvents())
	assert.Equal(t, []string{"MALICIOUS_INTERNET_NAME", "MALICIOUS_AFFILIATE_INTERNET_NAME", "MALICIOUS_COHOST"}, m.ProducedEvents())
}
