package agent

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os/exec"
	"strconv"
	"strings"
)

// readSockets shells out to netstat; Windows has no /proc equivalent and
// the native API needs elevated IP helper calls.
func readSockets(ctx context.Context) ([]sockTuple, error) {
	cmd := exec.CommandContext(ctx, "netstat", "-n", "-p", "TCP")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return parseNetstat(&out), nil
}

// parseNetstat handles lines of the form:
//
//	TCP    100.64.0.1:52736    100.64.0.5:22    ESTABLISHED
func parseNetstat(out *bytes.Buffer) []sockTuple {
	var socks []sockTuple

	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != "TCP" {
			continue
		}

		localIP, _, err := net.SplitHostPort(fields[1])
		if err != nil {
			continue
		}
		remoteIP, portStr, err := net.SplitHostPort(fields[2])
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}

		socks = append(socks, sockTuple{
			LocalIP:    localIP,
			RemoteIP:   remoteIP,
			RemotePort: port,
			State:      fields[3],
		})
	}
	return socks
}
