package agent

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

// Kernel TCP state codes as they appear in /proc/net/tcp (field 4).
var tcpStates = map[string]string{
	"01": "ESTABLISHED",
	"02": "SYN_SENT",
	"03": "SYN_RECV",
	"04": "FIN_WAIT1",
	"05": "FIN_WAIT2",
	"06": "TIME_WAIT",
	"07": "CLOSE",
	"08": "CLOSE_WAIT",
	"09": "LAST_ACK",
	"0A": "LISTEN",
	"0B": "CLOSING",
}

// readSockets reads the kernel connection table. Both the v4 and v6
// tables are scanned; v4-mapped v6 sockets come out as dotted quads.
func readSockets(_ context.Context) ([]sockTuple, error) {
	var socks []sockTuple
	var lastErr error

	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		f, err := os.Open(path)
		if err != nil {
			lastErr = err
			continue
		}
		rows, err := parseProcNetTCP(f)
		f.Close()
		if err != nil {
			lastErr = err
			continue
		}
		socks = append(socks, rows...)
	}

	if socks == nil && lastErr != nil {
		return nil, lastErr
	}
	return socks, nil
}

// parseProcNetTCP parses the /proc/net/tcp[6] format:
//
//	sl  local_address rem_address   st ...
//	 0: 0100007F:1F90 00000000:0000 0A ...
func parseProcNetTCP(r io.Reader) ([]sockTuple, error) {
	var socks []sockTuple

	scanner := bufio.NewScanner(r)
	scanner.Scan() // header line

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}

		localIP, _, err := parseHexAddr(fields[1])
		if err != nil {
			continue
		}
		remoteIP, remotePort, err := parseHexAddr(fields[2])
		if err != nil {
			continue
		}

		state := tcpStates[strings.ToUpper(fields[3])]
		socks = append(socks, sockTuple{
			LocalIP:    localIP,
			RemoteIP:   remoteIP,
			RemotePort: remotePort,
			State:      state,
		})
	}
	return socks, scanner.Err()
}

// parseHexAddr decodes "0100007F:1F90" style addresses. IPv4 addresses are
// one little-endian 32-bit word; IPv6 addresses are four of them.
func parseHexAddr(s string) (string, int, error) {
	ipHex, portHex, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed address %q", s)
	}

	port, err := strconv.ParseInt(portHex, 16, 32)
	if err != nil {
		return "", 0, err
	}

	raw, err := hex.DecodeString(ipHex)
	if err != nil {
		return "", 0, err
	}

	var ip net.IP
	switch len(raw) {
	case 4:
		ip = net.IPv4(raw[3], raw[2], raw[1], raw[0])
	case 16:
		ip = make(net.IP, 16)
		for w := 0; w < 4; w++ {
			for b := 0; b < 4; b++ {
				ip[w*4+b] = raw[w*4+3-b]
			}
		}
	default:
		return "", 0, fmt.Errorf("unexpected address length %d", len(raw))
	}

	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return ip.String(), int(port), nil
}
