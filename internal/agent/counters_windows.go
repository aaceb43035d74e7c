package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
)

// readCounters asks PowerShell for the adapter statistics. The CIM adapter
// counters are cumulative since boot, same contract as /proc/net/dev.
func readCounters(iface string) (ifaceCounters, error) {
	script := fmt.Sprintf(
		`Get-NetAdapterStatistics -Name '%s' | Select-Object SentBytes,ReceivedBytes,SentUnicastPackets,ReceivedUnicastPackets | ConvertTo-Json -Compress`,
		iface,
	)

	cmd := exec.Command("powershell.exe", "-NoProfile", "-NonInteractive", "-Command", script)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ifaceCounters{}, err
	}

	var stats struct {
		SentBytes              uint64
		ReceivedBytes          uint64
		SentUnicastPackets     uint64
		ReceivedUnicastPackets uint64
	}
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &stats); err != nil {
		return ifaceCounters{}, fmt.Errorf("parse adapter statistics: %w", err)
	}

	return ifaceCounters{
		BytesSent:   stats.SentBytes,
		BytesRecv:   stats.ReceivedBytes,
		PacketsSent: stats.SentUnicastPackets,
		PacketsRecv: stats.ReceivedUnicastPackets,
	}, nil
}
