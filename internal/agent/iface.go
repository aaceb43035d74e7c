package agent

import (
	"fmt"
	"net"
	"runtime"
	"strings"

	"tsnetmon/internal/shared"
)

// detectInterface finds the Tailscale interface and its IPv4 address.
// The well-known per-OS name is preferred; otherwise any interface with an
// address in the CGNAT block qualifies. Monitoring cannot run without one,
// so the caller treats an error here as fatal.
func detectInterface() (name, ip string, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", "", fmt.Errorf("list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if !matchesWellKnownName(iface.Name) {
			continue
		}
		if addr := tailscaleAddr(iface); addr != "" {
			return iface.Name, addr, nil
		}
	}

	// Fallback: scan for any interface holding a 100.* address.
	for _, iface := range ifaces {
		if addr := tailscaleAddr(iface); addr != "" {
			return iface.Name, addr, nil
		}
	}

	return "", "", fmt.Errorf("no tailscale interface found (is tailscale running?)")
}

// lookupInterface resolves a configured interface name to its CGNAT address.
func lookupInterface(name string) (string, string, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return "", "", fmt.Errorf("interface %s: %w", name, err)
	}
	addr := tailscaleAddr(*iface)
	if addr == "" {
		return "", "", fmt.Errorf("interface %s has no tailscale address", name)
	}
	return name, addr, nil
}

func matchesWellKnownName(name string) bool {
	if runtime.GOOS == "windows" {
		return strings.Contains(strings.ToLower(name), strings.ToLower(shared.InterfaceWindows))
	}
	return name == shared.InterfaceLinux
}

func tailscaleAddr(iface net.Interface) string {
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil {
			continue
		}
		if strings.HasPrefix(v4.String(), shared.TailscaleIPPrefix) {
			return v4.String()
		}
	}
	return ""
}
