// Package ipfilter evaluates a remote address against an ordered
// whitelist/blacklist pattern list, the way wilsonzlin-aero's
// internal/policy package evaluates UDP destinations against CIDR
// allow/deny lists with stdlib net.IPNet rather than a third-party CIDR
// matcher.
package ipfilter

import (
	"net"
	"strings"

	"github.com/signalhub/signalhub/internal/config"
)

// Normalize strips the IPv4-mapped IPv6 prefix ("::ffff:") so CIDR matching
// operates on the 32-bit IPv4 space, and returns the address otherwise
// unchanged.
func Normalize(addr string) string {
	const v4in6 = "::ffff:"
	if strings.HasPrefix(strings.ToLower(addr), v4in6) {
		return addr[len(v4in6):]
	}
	return addr
}

// Allow reports whether addr is admitted by filters, applying whitelist
// precedence then blacklist.
func Allow(addr string, filters []config.IPFilter) bool {
	addr = Normalize(addr)

	hasWhitelist := false
	whitelisted := false
	for _, f := range filters {
		if f.Type != config.FilterWhitelist {
			continue
		}
		hasWhitelist = true
		if matches(addr, f.Pattern) {
			whitelisted = true
		}
	}
	if hasWhitelist && !whitelisted {
		return false
	}

	for _, f := range filters {
		if f.Type == config.FilterBlacklist && matches(addr, f.Pattern) {
			return false
		}
	}

	return true
}

// matches reports whether addr equals pattern literally, or falls inside
// pattern when pattern is an IPv4 CIDR block.
func matches(addr, pattern string) bool {
	if addr == pattern {
		return true
	}

	if !strings.Contains(pattern, "/") {
		return false
	}

	_, network, err := net.ParseCIDR(pattern)
	if err != nil {
		return false
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		// IPv6 literal patterns match only by exact equality.
		return false
	}

	return network.Contains(ip4)
}
