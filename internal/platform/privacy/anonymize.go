// Package privacy masks personal data before it reaches operational logs.
// The access ledger keeps the full client address; logs only ever see the
// network prefix.
package privacy

import "net/netip"

// AnonymizeIP masks IPv4 to /24 and IPv6 to /48. Empty input yields "unknown",
// unparseable input yields "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// MaskID keeps the first four characters of an identifier for log correlation.
func MaskID(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	return id[:4] + "****"
}
