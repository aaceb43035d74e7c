package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const procNetTCPSample = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 01004064:0016 05004064:C738 01 00000000:00000000 00:00000000 00000000     0        0 12345 1 0000000000000000 100 0 0 10 0
   1: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 12346 1 0000000000000000 100 0 0 10 0
`

func TestParseProcNetTCP(t *testing.T) {
	socks, err := parseProcNetTCP(strings.NewReader(procNetTCPSample))
	require.NoError(t, err)
	require.Len(t, socks, 2)

	require.Equal(t, "100.64.0.1", socks[0].LocalIP)
	require.Equal(t, "100.64.0.5", socks[0].RemoteIP)
	require.Equal(t, 0xC738, socks[0].RemotePort)
	require.Equal(t, "ESTABLISHED", socks[0].State)

	require.Equal(t, "127.0.0.1", socks[1].LocalIP)
	require.Equal(t, "LISTEN", socks[1].State)
}

func TestParseHexAddr(t *testing.T) {
	ip, port, err := parseHexAddr("0100007F:0050")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ip)
	require.Equal(t, 80, port)

	// v4-mapped v6 comes back as a dotted quad
	ip, port, err = parseHexAddr("0000000000000000FFFF000001004064:0016")
	require.NoError(t, err)
	require.Equal(t, "100.64.0.1", ip)
	require.Equal(t, 22, port)

	_, _, err = parseHexAddr("garbage")
	require.Error(t, err)
}

const procNetDevSample = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 1234567    8901    0    0    0     0          0         0  1234567    8901    0    0    0     0       0          0
tailscale0: 5000000   40000    0    0    0     0          0         0  2500000   20000    0    0    0     0       0          0
`

func TestParseProcNetDev(t *testing.T) {
	c, err := parseProcNetDev(strings.NewReader(procNetDevSample), "tailscale0")
	require.NoError(t, err)
	require.Equal(t, uint64(5000000), c.BytesRecv)
	require.Equal(t, uint64(40000), c.PacketsRecv)
	require.Equal(t, uint64(2500000), c.BytesSent)
	require.Equal(t, uint64(20000), c.PacketsSent)

	_, err = parseProcNetDev(strings.NewReader(procNetDevSample), "eth0")
	require.Error(t, err)
}
