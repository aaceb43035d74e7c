package agent

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

func readCounters(iface string) (ifaceCounters, error) {
	f, err := os.Open("/proc/net/dev")
	if err != nil {
		return ifaceCounters{}, err
	}
	defer f.Close()
	return parseProcNetDev(f, iface)
}

// parseProcNetDev picks one interface row out of /proc/net/dev. Receive
// bytes/packets are fields 1-2 after the name, transmit bytes/packets are
// fields 9-10.
func parseProcNetDev(r io.Reader, iface string) (ifaceCounters, error) {
	scanner := bufio.NewScanner(r)
	// two header lines
	for i := 0; i < 2 && scanner.Scan(); i++ {
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		name, rest, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) != iface {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) < 10 {
			return ifaceCounters{}, fmt.Errorf("short /proc/net/dev row for %s", iface)
		}

		return ifaceCounters{
			BytesRecv:   parseUint(fields[0]),
			PacketsRecv: parseUint(fields[1]),
			BytesSent:   parseUint(fields[8]),
			PacketsSent: parseUint(fields[9]),
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return ifaceCounters{}, err
	}
	return ifaceCounters{}, fmt.Errorf("interface %s not present in /proc/net/dev", iface)
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
