// Package security gates farm startup on the sandbox environment being
// actually locked down. Validation failures are fatal: the farm must
// refuse to process jobs rather than run them under weaker isolation.
package security

import (
	"time"

	"prooffarm/internal/farm/model"
)

// SecurityConfig declares the isolation posture the farm requires.
// The defaults are the production posture; operators may only tighten
// them further, and the validator rejects configurations that loosen
// the mandatory settings.
type SecurityConfig struct {
	// RequireIsolatedRuntime demands a user-space kernel (gVisor)
	// between sandboxed code and the host kernel.
	RequireIsolatedRuntime bool `yaml:"requireIsolatedRuntime"`

	// RequireSeccomp demands an active seccomp filter.
	RequireSeccomp bool `yaml:"requireSeccomp"`

	// RequireNoNewPrivileges demands the no_new_privs flag.
	RequireNoNewPrivileges bool `yaml:"requireNoNewPrivileges"`

	// RequireNonRoot refuses to run with euid 0.
	RequireNonRoot bool `yaml:"requireNonRoot"`

	// RunAsUID and RunAsGID are the identity sandboxed processes map to.
	RunAsUID int `yaml:"runAsUID"`
	RunAsGID int `yaml:"runAsGID"`

	ReadOnlyRootFS      bool `yaml:"readOnlyRootFS"`
	DropAllCapabilities bool `yaml:"dropAllCapabilities"`
	DisallowPrivileged  bool `yaml:"disallowPrivileged"`
	NetworkIsolation    bool `yaml:"networkIsolation"`

	Limits model.ResourceLimits `yaml:"limits"`

	Scan ScanConfig `yaml:"scan"`
}

// ScanConfig bounds the pre-start vulnerability scan.
type ScanConfig struct {
	Enabled bool `yaml:"enabled"`

	// Command is the external scanner invocation, e.g.
	// ["trivy", "rootfs", "--format", "json", "/"].
	Command []string `yaml:"command"`

	MaxCritical int           `yaml:"maxCritical"`
	MaxHigh     int           `yaml:"maxHigh"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultSecurityConfig returns the mandatory production posture:
// isolated runtime, seccomp, non-root uid/gid 1000, read-only rootfs,
// all capabilities dropped, network isolated, and the default sandbox
// resource limits.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		RequireIsolatedRuntime: true,
		RequireSeccomp:         true,
		RequireNoNewPrivileges: true,
		RequireNonRoot:         true,
		RunAsUID:               1000,
		RunAsGID:               1000,
		ReadOnlyRootFS:         true,
		DropAllCapabilities:    true,
		DisallowPrivileged:     true,
		NetworkIsolation:       true,
		Limits:                 model.DefaultResourceLimits(),
		Scan: ScanConfig{
			Enabled:     false,
			MaxCritical: 0,
			MaxHigh:     5,
			Timeout:     300 * time.Second,
		},
	}
}
