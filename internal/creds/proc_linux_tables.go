package creds

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// tcpStateListen is the LISTEN state column value in /proc/net/tcp.
const tcpStateListen = "0A"

// procListeningPorts resolves the pid's listening TCP ports from /proc: the
// pid's socket fd inodes intersected with LISTEN rows of the kernel TCP
// tables. Needs no child process, but can fail on permissions — callers
// fall back to ss.
func procListeningPorts(pid int) ([]int, error) {
	inodes, err := socketInodes(pid)
	if err != nil {
		return nil, err
	}
	if len(inodes) == 0 {
		return nil, nil
	}

	var ports []int
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		raw, err := os.ReadFile(table)
		if err != nil {
			continue
		}
		ports = append(ports, listenPorts(string(raw), inodes)...)
	}
	return ports, nil
}

func socketInodes(pid int) (map[string]bool, error) {
	fdDir := filepath.Join("/proc", strconv.Itoa(pid), "fd")
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fdDir, err)
	}

	inodes := make(map[string]bool)
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(fdDir, e.Name()))
		if err != nil {
			continue
		}
		if rest, ok := strings.CutPrefix(target, "socket:["); ok {
			inodes[strings.TrimSuffix(rest, "]")] = true
		}
	}
	return inodes, nil
}

// listenPorts scans one /proc/net/tcp table. Rows look like:
//
//	sl  local_address rem_address   st ... inode
//	0: 0100007F:A472 00000000:0000 0A ... 123456
//
// The local port is the hex field after the colon in local_address.
func listenPorts(table string, inodes map[string]bool) []int {
	var ports []int
	lines := strings.Split(table, "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		if fields[3] != tcpStateListen || !inodes[fields[9]] {
			continue
		}
		i := strings.LastIndex(fields[1], ":")
		if i < 0 {
			continue
		}
		port, err := strconv.ParseInt(fields[1][i+1:], 16, 32)
		if err != nil || port <= 0 {
			continue
		}
		ports = append(ports, int(port))
	}
	return ports
}
