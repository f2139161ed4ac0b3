package netutil

import (
	"net/netip"
	"strings"
)

// MaxUserAgentLength caps the user-agent snapshot stored on a session.
const MaxUserAgentLength = 256

// NormalizeIP accepts a bare IP or a host:port address (including bracketed
// IPv6) and returns the canonical IP portion without zone identifiers. The
// second return reports whether the input parsed as an IP at all.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		return addrPort.Addr().WithZone("").String(), true
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return addr.WithZone("").String(), true
	}
	// Bracketed IPv6 with a non-numeric port, or host:port leftovers.
	host := raw
	if strings.HasPrefix(raw, "[") {
		if end := strings.LastIndex(raw, "]"); end > 0 {
			host = raw[1:end]
		}
	} else if idx := strings.LastIndex(raw, ":"); idx > 0 && strings.Count(raw, ":") == 1 {
		host = raw[:idx]
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.WithZone("").String(), true
	}
	return raw, false
}

// TruncateUserAgent trims overly long user agents to MaxUserAgentLength runes
// without splitting a multi-byte character.
func TruncateUserAgent(ua string) string {
	runes := []rune(ua)
	if len(runes) <= MaxUserAgentLength {
		return ua
	}
	return string(runes[:MaxUserAgentLength])
}
