package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseTrustedProxies parses CIDR ranges of reverse proxies whose forwarding
// headers may be believed.
func ParseTrustedProxies(cidrs []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", c, err)
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

// ClientIP returns the address used to key per-client state. Forwarded headers
// are only honored when the peer is a trusted proxy.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	remote, ok := parseAddr(r.RemoteAddr)
	if !ok {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !contains(trusted, remote) {
		return remote.String()
	}

	if addr, ok := forwardedFor(r.Header.Get("X-Forwarded-For"), trusted); ok {
		return addr.String()
	}
	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}
	return remote.String()
}

// forwardedFor walks X-Forwarded-For from the right, skipping our own proxies.
// Everything left of the first untrusted hop was written by the client.
func forwardedFor(xff string, trusted []netip.Prefix) (netip.Addr, bool) {
	if xff == "" {
		return netip.Addr{}, false
	}
	var last netip.Addr
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		addr, ok := parseAddr(parts[i])
		if !ok {
			return netip.Addr{}, false
		}
		if !contains(trusted, addr) {
			return addr, true
		}
		last = addr
	}
	return last, last.IsValid()
}

func contains(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseAddr(value string) (netip.Addr, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(v); err == nil {
		v = host
	}
	addr, err := netip.ParseAddr(strings.Trim(v, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
