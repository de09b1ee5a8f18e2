package security

import (
	"os"
	"strconv"
	"strings"
)

// RuntimeInfo is what the validator observed about the process and its
// kernel at startup.
type RuntimeInfo struct {
	EUID int
	GID  int

	// GVisor reports whether a gVisor user-space kernel was detected.
	GVisor bool

	// SeccompMode is the Seccomp field of /proc/self/status:
	// 0 disabled, 1 strict, 2 filter.
	SeccompMode int

	NoNewPrivs bool

	// CapBnd is the capability bounding set bitmask.
	CapBnd uint64
}

// DetectRuntime inspects /proc for the current isolation state.
// Fields default to their unsafe values when /proc is unreadable, so a
// broken environment fails validation instead of passing it.
func DetectRuntime() RuntimeInfo {
	info := RuntimeInfo{
		EUID:   os.Geteuid(),
		GID:    os.Getegid(),
		CapBnd: ^uint64(0),
	}

	if data, err := os.ReadFile("/proc/version"); err == nil {
		info.GVisor = strings.Contains(string(data), "gVisor")
	}

	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return info
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "Seccomp":
			if v, err := strconv.Atoi(fields[1]); err == nil {
				info.SeccompMode = v
			}
		case "NoNewPrivs":
			info.NoNewPrivs = fields[1] == "1"
		case "CapBnd":
			if v, err := strconv.ParseUint(fields[1], 16, 64); err == nil {
				info.CapBnd = v
			}
		}
	}
	return info
}
