// Package hostconfig implements the §6.7 host-config file codec: a
// read-parse-install path (Install, which reconciles through
// hst.ReloadFromConfig and does not compare entry counts), a write
// path (ReplaceConfigFile) that refuses to overwrite the on-disk file
// when that file's entry count disagrees with the live Host Status
// Table, plus a bbolt-backed snapshot of the last successfully
// installed config.
package hostconfig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/holger24/AFD-sub006/internal/hst"
)

// fields, whitespace-separated, one host per line:
//   host_id alias real_hostname0,real_hostname1 protocol allowed_transfers max_errors host_status toggle_str
//
// Blank lines and lines starting with '#' are ignored.
const fieldCount = 7

// Parse reads a host-config file and returns one hst.ConfigHost per
// non-comment line, in file order (ReloadFromConfig relies on that
// order to preserve insertion order for new hosts).
func Parse(r io.Reader) ([]hst.ConfigHost, error) {
	var hosts []hst.ConfigHost
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		h, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("hostconfig: line %d: %w", lineNo, err)
		}
		hosts = append(hosts, h)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("hostconfig: scan: %w", err)
	}
	return hosts, nil
}

func parseLine(line string) (hst.ConfigHost, error) {
	fields := strings.Fields(line)
	if len(fields) < fieldCount {
		return hst.ConfigHost{}, fmt.Errorf("want %d fields, got %d: %q", fieldCount, len(fields), line)
	}

	hostID, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return hst.ConfigHost{}, fmt.Errorf("bad host_id %q: %w", fields[0], err)
	}
	alias := fields[1]

	realHosts := strings.SplitN(fields[2], ",", 2)
	var rh [2]string
	rh[0] = realHosts[0]
	if len(realHosts) > 1 {
		rh[1] = realHosts[1]
	}

	protocol, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return hst.ConfigHost{}, fmt.Errorf("bad protocol %q: %w", fields[3], err)
	}
	allowed, err := strconv.ParseUint(fields[4], 10, 8)
	if err != nil {
		return hst.ConfigHost{}, fmt.Errorf("bad allowed_transfers %q: %w", fields[4], err)
	}
	maxErrors, err := strconv.ParseUint(fields[5], 10, 32)
	if err != nil {
		return hst.ConfigHost{}, fmt.Errorf("bad max_errors %q: %w", fields[5], err)
	}
	status, err := strconv.ParseUint(fields[6], 0, 32) // accepts 0x-prefixed bitsets
	if err != nil {
		return hst.ConfigHost{}, fmt.Errorf("bad host_status %q: %w", fields[6], err)
	}

	var toggleStr string
	if len(fields) > fieldCount {
		toggleStr = fields[fieldCount]
	}

	return hst.ConfigHost{
		HostID:           uint32(hostID),
		HostAlias:        alias,
		HostToggleStr:    toggleStr,
		RealHostname:     rh,
		Protocol:         uint32(protocol),
		AllowedTransfers: uint8(allowed),
		MaxErrors:        uint32(maxErrors),
		HostStatus:       hst.HostStatus(status),
	}, nil
}

// Write serializes hosts back to the §6.7 text format, one line per
// host in the given order; ReplaceConfigFile uses it to write the new
// file.
func Write(w io.Writer, hosts []hst.ConfigHost) error {
	bw := bufio.NewWriter(w)
	for _, h := range hosts {
		toggle := h.HostToggleStr
		if toggle == "" {
			toggle = "-"
		}
		if _, err := fmt.Fprintf(bw, "%d %s %s,%s %d %d %d %d %s\n",
			h.HostID, h.HostAlias, h.RealHostname[0], h.RealHostname[1],
			h.Protocol, h.AllowedTransfers, h.MaxErrors, uint32(h.HostStatus), toggle); err != nil {
			return fmt.Errorf("hostconfig: write: %w", err)
		}
	}
	return bw.Flush()
}
