package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference sorts addresses so the most reachable comes first:
// IPv4 private and public, then global IPv6, ULA, link-local, and last
// loopback. Model servers usually sit on a lab LAN, so IPv4 leads.
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	// Make a copy to avoid modifying the original slice
	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	if ip.To16() == nil {
		return 99
	}
	switch {
	case ip.IsLoopback():
		return 80
	case ip.IsMulticast():
		return 90
	case ip.To4() != nil:
		return 0
	case ip.IsGlobalUnicast() && !isUniqueLocal(ip):
		return 1
	case isUniqueLocal(ip):
		return 2
	case ip.IsLinkLocalUnicast():
		return 3
	}
	return 10
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address (ULA).
// ULA range: fc00::/7 (fc00:: to fdff::)
func isUniqueLocal(ip net.IP) bool {
	if ip.To4() != nil {
		return false
	}
	ip = ip.To16()
	if ip == nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}
