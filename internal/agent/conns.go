package agent

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tsnetmon/internal/shared"
)

// sockTuple is one raw row from the OS connection table.
type sockTuple struct {
	LocalIP    string
	RemoteIP   string
	RemotePort int
	State      string
}

const resolveTimeout = 2 * time.Second

// collectPeers reads the connection table and reduces it to one entry per
// remote Tailscale peer. A denied or unreadable table yields an empty list,
// never an error: the measurement loop must keep running without it.
func collectPeers(ctx context.Context, localIP string) []shared.ConnectionInfo {
	socks, err := readSockets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("connection table unavailable, skipping peers this tick")
		return nil
	}

	return aggregatePeers(socks, localIP, func(ip string) string {
		return resolveHostname(ctx, ip)
	})
}

// aggregatePeers groups tuples by remote IP. Only sockets whose local end
// is the monitored IP and whose remote end is in the Tailscale range count.
// Representative port is the smallest observed; representative state is
// ESTABLISHED when present, else the lexicographically smallest state.
func aggregatePeers(socks []sockTuple, localIP string, resolve func(ip string) string) []shared.ConnectionInfo {
	type peerAgg struct {
		ports  map[int]struct{}
		states map[string]struct{}
	}

	byIP := make(map[string]*peerAgg)
	for _, s := range socks {
		if s.LocalIP != localIP {
			continue
		}
		if !strings.HasPrefix(s.RemoteIP, shared.TailscaleIPPrefix) {
			continue
		}
		agg, ok := byIP[s.RemoteIP]
		if !ok {
			agg = &peerAgg{ports: map[int]struct{}{}, states: map[string]struct{}{}}
			byIP[s.RemoteIP] = agg
		}
		agg.ports[s.RemotePort] = struct{}{}
		if s.State != "" {
			agg.states[s.State] = struct{}{}
		}
	}

	peers := make([]shared.ConnectionInfo, 0, len(byIP))
	for ip, agg := range byIP {
		var hostname string
		if resolve != nil {
			hostname = resolve(ip)
		}
		peers = append(peers, shared.ConnectionInfo{
			IP:       ip,
			Hostname: hostname,
			Bytes:    0, // per-socket byte counts are not exposed by the OS
			Port:     minPort(agg.ports),
			State:    pickState(agg.states),
		})
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].IP < peers[j].IP })
	return peers
}

func minPort(ports map[int]struct{}) int {
	min := 0
	for p := range ports {
		if min == 0 || p < min {
			min = p
		}
	}
	return min
}

func pickState(states map[string]struct{}) string {
	if _, ok := states["ESTABLISHED"]; ok {
		return "ESTABLISHED"
	}
	picked := ""
	for s := range states {
		if picked == "" || s < picked {
			picked = s
		}
	}
	return picked
}

// resolveHostname is a best-effort reverse lookup; any failure yields "".
func resolveHostname(ctx context.Context, ip string) string {
	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(rctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
