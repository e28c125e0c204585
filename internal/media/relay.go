package media

import (
	"net"
	"strings"
)

// Cloudflare WARP, Tailscale and carrier grade NAT hand out addresses from
// 100.64.0.0/10; direct paths from there rarely work.
var cgnatBlock = mustCIDR("100.64.0.0/10")

var tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether an active interface looks like a
// restrictive VPN or CGNAT link, in which case TURN should carry the call.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if looksTunneled(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if inCGNAT(addrIP(addr)) {
				return true
			}
		}
	}
	return false
}

func looksTunneled(name string) bool {
	name = strings.ToLower(name)
	for _, marker := range tunnelMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func inCGNAT(ip net.IP) bool {
	return ip != nil && cgnatBlock.Contains(ip)
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}

func mustCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return block
}
