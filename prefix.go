package routed

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// ipToU32 converts an IPv4 address to its big-endian 32-bit integer form.
func ipToU32(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

// u32ToIP is the inverse of ipToU32.
func u32ToIP(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// parseDotted parses a dotted-quad string into an IPv4 address, rejecting
// anything that isn't a 4-octet address (no IPv6, no hostnames).
func parseDotted(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("invalid address %q: not IPv4", s)
	}
	return addr, nil
}

// dotted renders addr in dotted-quad form.
func dotted(addr netip.Addr) string {
	return addr.String()
}

// maskToCIDR counts the leading one-bits of a contiguous netmask.
func maskToCIDR(mask netip.Addr) int {
	return cidrOfU32(ipToU32(mask))
}

func cidrOfU32(mask uint32) int {
	n := 0
	for i := 31; i >= 0; i-- {
		if mask&(1<<uint(i)) == 0 {
			break
		}
		n++
	}
	return n
}

// cidrToMask is the inverse of maskToCIDR: it builds the netmask address for
// a prefix length in 0..=32.
func cidrToMask(cidr int) netip.Addr {
	return u32ToIP(maskU32(cidr))
}

func maskU32(cidr int) uint32 {
	if cidr <= 0 {
		return 0
	}
	if cidr >= 32 {
		return 0xffffffff
	}
	return ^uint32(0) << uint(32-cidr)
}

// ipRange returns the low and high addresses covered by network/mask, i.e.
// low = network AND mask, high = low OR NOT mask.
func ipRange(network, mask netip.Addr) (low, high uint32) {
	n := ipToU32(network)
	m := ipToU32(mask)
	low = n & m
	high = low | ^m
	return low, high
}

// lpmLength counts the number of leading identical bits between addr and
// network, ignoring any mask — this is a raw bit-prefix comparison, not a
// masked comparison.
func lpmLength(addr, network netip.Addr) int {
	a := ipToU32(addr)
	n := ipToU32(network)
	x := a ^ n
	if x == 0 {
		return 32
	}
	count := 0
	for i := 31; i >= 0; i-- {
		if x&(1<<uint(i)) != 0 {
			break
		}
		count++
	}
	return count
}

// covers reports whether (addr AND mask) == (network AND mask).
func covers(addr, network, mask netip.Addr) bool {
	m := ipToU32(mask)
	return ipToU32(addr)&m == ipToU32(network)&m
}

// wellFormed reports whether mask is a contiguous run of one-bits and
// network is already masked (network == network AND mask).
func wellFormed(network, mask netip.Addr) bool {
	m := ipToU32(mask)
	n := ipToU32(network)
	// mask must be contiguous ones followed by contiguous zeros.
	inverted := ^m
	if inverted&(inverted+1) != 0 {
		return false
	}
	return n&m == n
}

// ourAddr returns the /24 of neighbor with the fourth octet set to 1, per
// the handshake addressing rule.
func ourAddr(neighbor netip.Addr) netip.Addr {
	b := neighbor.As4()
	b[3] = 1
	return netip.AddrFrom4(b)
}
