package identity

import (
	"net/http"
	"net/netip"
	"strings"
)

// UnknownIP is the placeholder used when no proxy header carries a client IP.
const UnknownIP = "unknown"

// RFC1918 private ranges. Addresses in these ranges are likely NAT'd and
// shared by many distinct devices.
var sharedNetworks = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// ClientIP extracts the client IP from proxy headers in priority order:
// X-Forwarded-For (first entry), X-Real-IP, CF-Connecting-IP. The service
// always sits behind a trusted proxy, so there is no RemoteAddr fallback;
// a request with none of these headers yields UnknownIP.
func ClientIP(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		// client, proxy1, proxy2, ... - first entry is the origin
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := h.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if cf := h.Get("CF-Connecting-IP"); cf != "" {
		return strings.TrimSpace(cf)
	}
	return UnknownIP
}

// IsSharedNetwork reports whether ip falls in an RFC1918 private range.
// Unparseable addresses (including UnknownIP) are not shared.
func IsSharedNetwork(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return false
	}
	for _, prefix := range sharedNetworks {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// networkPrefix keeps only the first two octets of an IPv4 address, the
// granularity used for shared-network identifiers where the full IP would
// lump unrelated devices behind one NAT together.
func networkPrefix(ip string) string {
	parts := strings.SplitN(ip, ".", 3)
	if len(parts) < 3 {
		return ip
	}
	return parts[0] + "." + parts[1]
}
