package creds

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// Process is one language-server candidate.
type Process struct {
	PID         int
	CommandLine string
}

// Inspector abstracts the two per-OS surfaces credential resolution touches:
// the process table and the socket tables. Each platform has its own idioms
// for them; tests substitute a fake. The API key read is not part of this
// interface — the Resolver takes it as a separate function.
type Inspector interface {
	// LanguageServers lists running language-server processes with their
	// full command lines, excluding the current process.
	LanguageServers(ctx context.Context) ([]Process, error)

	// ListeningPorts lists TCP ports the pid is listening on.
	ListeningPorts(ctx context.Context, pid int) ([]int, error)
}

func newInspector() Inspector {
	switch runtime.GOOS {
	case "windows":
		return windowsInspector{}
	default:
		return posixInspector{}
	}
}

// serverBinaryMatch selects language-server binaries by name substring
// ("language_server_macos_arm", "language_server_linux_x64", ...).
const serverBinaryMatch = "language_server"

// posixInspector covers Linux and macOS. Process enumeration goes through
// go-ps (which reads the platform process table without shelling out);
// command lines and socket tables need per-OS reads.
type posixInspector struct{}

func (posixInspector) LanguageServers(ctx context.Context) ([]Process, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("process table: %w", err)
	}

	self := os.Getpid()
	var out []Process
	for _, p := range procs {
		if p.Pid() == self || !strings.Contains(p.Executable(), serverBinaryMatch) {
			continue
		}
		line, err := commandLine(ctx, p.Pid())
		if err != nil || line == "" {
			continue
		}
		out = append(out, Process{PID: p.Pid(), CommandLine: line})
	}
	return out, nil
}

func commandLine(ctx context.Context, pid int) (string, error) {
	if runtime.GOOS == "linux" {
		raw, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
		if err == nil {
			return strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", " ")), nil
		}
		// fall through to ps below
	}
	out, err := exec.CommandContext(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "command=").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (posixInspector) ListeningPorts(ctx context.Context, pid int) ([]int, error) {
	if runtime.GOOS == "linux" {
		if ports, err := procListeningPorts(pid); err == nil && len(ports) > 0 {
			return ports, nil
		}
		return ssListeningPorts(ctx, pid)
	}
	return lsofListeningPorts(ctx, pid)
}

// lsofListeningPorts parses `lsof -a -p <pid> -i -P -n` LISTEN rows, e.g.
// "language_ 812 user 23u IPv4 ... TCP 127.0.0.1:42100 (LISTEN)".
func lsofListeningPorts(ctx context.Context, pid int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "lsof", "-a", "-p", strconv.Itoa(pid), "-i", "-P", "-n").Output()
	if err != nil {
		return nil, fmt.Errorf("lsof: %w", err)
	}
	var ports []int
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "LISTEN") {
			continue
		}
		fields := strings.Fields(line)
		for _, f := range fields {
			i := strings.LastIndex(f, ":")
			if i < 0 {
				continue
			}
			if p, err := strconv.Atoi(f[i+1:]); err == nil && p > 0 {
				ports = append(ports, p)
			}
		}
	}
	return ports, nil
}

// ssListeningPorts is the Linux fallback when /proc is unreadable.
func ssListeningPorts(ctx context.Context, pid int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "ss", "-tlnp").Output()
	if err != nil {
		return nil, fmt.Errorf("ss: %w", err)
	}
	needle := fmt.Sprintf("pid=%d", pid)
	var ports []int
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, needle) {
			continue
		}
		fields := strings.Fields(line)
		// Local address is the 4th column ("127.0.0.1:42100").
		if len(fields) < 4 {
			continue
		}
		addr := fields[3]
		i := strings.LastIndex(addr, ":")
		if i < 0 {
			continue
		}
		if p, err := strconv.Atoi(addr[i+1:]); err == nil && p > 0 {
			ports = append(ports, p)
		}
	}
	return ports, nil
}

// windowsInspector shells out to wmic and netstat, the closest equivalents
// of the process and socket tables.
type windowsInspector struct{}

func (windowsInspector) LanguageServers(ctx context.Context) ([]Process, error) {
	out, err := exec.CommandContext(ctx, "wmic", "process", "get", "ProcessId,CommandLine", "/format:csv").Output()
	if err != nil {
		return nil, fmt.Errorf("wmic: %w", err)
	}
	self := os.Getpid()
	var procs []Process
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, serverBinaryMatch) {
			continue
		}
		// CSV rows are Node,CommandLine,ProcessId.
		i := strings.LastIndex(line, ",")
		if i < 0 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(line[i+1:]))
		if err != nil || pid == self {
			continue
		}
		cmd := line[:i]
		if j := strings.Index(cmd, ","); j >= 0 {
			cmd = cmd[j+1:]
		}
		procs = append(procs, Process{PID: pid, CommandLine: cmd})
	}
	return procs, nil
}

func (windowsInspector) ListeningPorts(ctx context.Context, pid int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano", "-p", "tcp").Output()
	if err != nil {
		return nil, fmt.Errorf("netstat: %w", err)
	}
	pidStr := strconv.Itoa(pid)
	var ports []int
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		// Proto LocalAddress ForeignAddress State PID
		if len(fields) < 5 || fields[3] != "LISTENING" || fields[4] != pidStr {
			continue
		}
		i := strings.LastIndex(fields[1], ":")
		if i < 0 {
			continue
		}
		if p, err := strconv.Atoi(fields[1][i+1:]); err == nil && p > 0 {
			ports = append(ports, p)
		}
	}
	return ports, nil
}
