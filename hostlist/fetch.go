package hostlist

import (
	"context"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"
)

// userAgent returns an identifier for HTTP requests to the list publisher.
func userAgent() string {
	const (
		name       = "hostrep"
		importPath = "github.com/ipshipyard/hostrep"
	)
	version := "unknown"
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			if dep.Path == importPath {
				version = dep.Version
				break
			}
		}
		// Main module
		if version == "unknown" && bi.Main.Path == importPath && bi.Main.Version != "" {
			version = bi.Main.Version
		}
	}
	return name + "/" + version
}

// Response is the outcome of a single fetch. Code is the HTTP status code as
// a decimal string. A nil Content means the body is absent.
type Response struct {
	Code    string
	Content []byte
}

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration, userAgent string) (*Response, error)
}

// HTTPFetcher is a Fetcher over net/http.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a Fetcher using the default transport.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{}}
}

// Fetch implements Fetcher. A 200 response always carries non-nil Content,
// empty when the body was.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, timeout time.Duration, userAgent string) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &Response{Code: strconv.Itoa(resp.StatusCode)}
	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return res, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if body == nil {
		body = []byte{}
	}
	res.Content = body
	return res, nil
}
