// Package ssrf decides whether a webhook destination URL may be contacted.
//
// In strict mode every address the host resolves to must be public unless
// covered by the operator's allow-list; relaxed mode only enforces the
// scheme. Resolution happens at check time, so a DNS answer that changes
// between check and connect is not caught — callers accept that gap.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Mode selects how much of the policy applies.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeRelaxed Mode = "relaxed"
)

// ParseMode converts a config string into a Mode, defaulting to strict.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, string(ModeRelaxed)) {
		return ModeRelaxed
	}
	return ModeStrict
}

// Resolver is the DNS lookup dependency; *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Policy validates outbound webhook URLs.
type Policy struct {
	mode      Mode
	allowList []netip.Prefix
	resolver  Resolver
}

// New builds a policy. A nil resolver uses net.DefaultResolver.
func New(mode Mode, allowList []netip.Prefix, resolver Resolver) *Policy {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Policy{mode: mode, allowList: allowList, resolver: resolver}
}

// Check returns nil when the URL may be contacted.
func (p *Policy) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed, only http and https", u.Scheme)
	}

	if p.mode == ModeRelaxed {
		return nil
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	addrs, err := p.resolveHost(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}

	for _, addr := range addrs {
		if p.allowed(addr) {
			continue
		}
		if class := privateClass(addr); class != "" {
			return fmt.Errorf("destination %s is in a private or reserved range (%s)", addr, class)
		}
	}
	return nil
}

// resolveHost returns the candidate addresses for host. Literal IPs skip DNS;
// hostnames are normalized through IDNA first so unicode domains resolve the
// same way a browser would.
func (p *Policy) resolveHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, fmt.Errorf("invalid hostname: %w", err)
	}

	addrs, err := p.resolver.LookupNetIP(ctx, "ip", ascii)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses found")
	}
	return addrs, nil
}

func (p *Policy) allowed(addr netip.Addr) bool {
	a := addr.Unmap()
	for _, prefix := range p.allowList {
		if prefix.Contains(a) {
			return true
		}
	}
	return false
}

// Blocked IPv4 ranges beyond what netip classifies directly.
var blockedV4 = []struct {
	prefix netip.Prefix
	name   string
}{
	{netip.MustParsePrefix("100.64.0.0/10"), "carrier-grade NAT"},
	{netip.MustParsePrefix("198.18.0.0/15"), "benchmarking"},
}

// privateClass returns the name of the private/reserved class addr belongs
// to, or "" when the address is public. IPv4-mapped IPv6 addresses are
// judged by their embedded IPv4 address.
func privateClass(addr netip.Addr) string {
	a := addr.Unmap()

	switch {
	case a.IsLoopback():
		return "loopback"
	case a.IsUnspecified():
		return "unspecified"
	case a.IsLinkLocalUnicast(), a.IsLinkLocalMulticast():
		return "link-local"
	case a.IsPrivate():
		return "private"
	}

	if a.Is4() {
		if a == netip.MustParseAddr("255.255.255.255") {
			return "broadcast"
		}
		for _, b := range blockedV4 {
			if b.prefix.Contains(a) {
				return b.name
			}
		}
		return ""
	}

	// fc00::/7 unique-local; IsPrivate covers it, but be explicit for
	// readers auditing the policy.
	if netip.MustParsePrefix("fc00::/7").Contains(a) {
		return "unique-local"
	}
	return ""
}
