package hostsblock

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientAddr returns the address a scan API request came from: the leftmost
// X-Forwarded-For entry when present and valid, RemoteAddr otherwise. The
// result is only logged.
func clientAddr(r *http.Request) (netip.Addr, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return ip, true
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip, true
	}
	return netip.Addr{}, false
}
