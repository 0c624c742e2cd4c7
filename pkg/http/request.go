package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig lists the proxy networks whose forwarding headers are believed.
type IPConfig struct {
	TrustedProxies []string // CIDR notation
}

// ExtractClientIP resolves the address recorded in sessions and auth logs.
// X-Forwarded-For and X-Real-IP are honored only when the peer itself sits
// inside a trusted proxy range; otherwise the socket address wins, so a
// direct client cannot spoof its origin with a header.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerAddr(r)

	if config == nil || !fromTrustedProxy(peer, config.TrustedProxies) {
		return peer
	}

	for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if candidate := strings.TrimSpace(part); net.ParseIP(candidate) != nil {
			return candidate
		}
	}

	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}

	return peer
}

// peerAddr strips the port RemoteAddr usually carries.
func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func fromTrustedProxy(addr string, ranges []string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	for _, cidr := range ranges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
