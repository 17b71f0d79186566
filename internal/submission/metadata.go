package submission

import (
	"net"
	"net/netip"
	"strings"
)

// Metadata is the request context captured alongside each submission.
type Metadata struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// ClientIP derives the client address. The socket peer is authoritative
// unless it is a trusted proxy, in which case X-Forwarded-For is walked
// left to right for the first address that is not itself a trusted proxy.
// A spoofed XFF from an untrusted origin is therefore ignored.
func ClientIP(remoteAddr, forwardedFor string, trustedProxies []netip.Prefix) string {
	peer := stripPort(remoteAddr)
	peerAddr, err := netip.ParseAddr(peer)
	if err != nil {
		return peer
	}
	if !inPrefixes(peerAddr, trustedProxies) {
		return peer
	}

	for _, part := range strings.Split(forwardedFor, ",") {
		candidate := strings.TrimSpace(part)
		if candidate == "" {
			continue
		}
		addr, err := netip.ParseAddr(candidate)
		if err != nil {
			continue
		}
		if !inPrefixes(addr, trustedProxies) {
			return addr.String()
		}
	}
	return peer
}

func stripPort(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func inPrefixes(addr netip.Addr, prefixes []netip.Prefix) bool {
	a := addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
