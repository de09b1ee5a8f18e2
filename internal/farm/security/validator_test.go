package security

import (
	"context"
	"fmt"
	"testing"
	"time"

	appErr "prooffarm/pkg/errors"
)

// goodRuntime is an environment that satisfies the default posture.
func goodRuntime() RuntimeInfo {
	return RuntimeInfo{
		EUID:        1000,
		GID:         1000,
		GVisor:      true,
		SeccompMode: 2,
		NoNewPrivs:  true,
		CapBnd:      0,
	}
}

type staticScanner struct {
	report ScanReport
	err    error
	delay  time.Duration
}

func (s *staticScanner) Scan(ctx context.Context) (ScanReport, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ScanReport{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.report, s.err
}

func TestValidatePasses(t *testing.T) {
	v := NewValidator(DefaultSecurityConfig(), nil, goodRuntime)
	if err := v.Validate(context.Background()); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
}

func TestValidateRuntimeFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RuntimeInfo)
		code   appErr.ErrorCode
	}{
		{"no gvisor", func(i *RuntimeInfo) { i.GVisor = false }, appErr.RuntimeNotIsolated},
		{"running as root", func(i *RuntimeInfo) { i.EUID = 0 }, appErr.RunningAsRoot},
		{"seccomp disabled", func(i *RuntimeInfo) { i.SeccompMode = 0 }, appErr.SeccompDisabled},
		{"no_new_privs unset", func(i *RuntimeInfo) { i.NoNewPrivs = false }, appErr.SecurityValidationFailed},
		{"capabilities retained", func(i *RuntimeInfo) { i.CapBnd = 0x1fffffffff }, appErr.CapabilitiesNotDropped},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := goodRuntime()
			tc.mutate(&info)
			v := NewValidator(DefaultSecurityConfig(), nil, func() RuntimeInfo { return info })
			err := v.Validate(context.Background())
			if !appErr.Is(err, tc.code) {
				t.Fatalf("expected code %d, got %v", tc.code, err)
			}
		})
	}
}

func TestValidateConfigFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SecurityConfig)
	}{
		{"root uid", func(c *SecurityConfig) { c.RunAsUID = 0 }},
		{"writable rootfs", func(c *SecurityConfig) { c.ReadOnlyRootFS = false }},
		{"capabilities kept", func(c *SecurityConfig) { c.DropAllCapabilities = false }},
		{"privileged allowed", func(c *SecurityConfig) { c.DisallowPrivileged = false }},
		{"network open", func(c *SecurityConfig) { c.NetworkIsolation = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultSecurityConfig()
			tc.mutate(&cfg)
			// Disabling DropAllCapabilities also relaxes the runtime
			// CapBnd check, so failures here must come from config.
			v := NewValidator(cfg, nil, goodRuntime)
			err := v.Validate(context.Background())
			if !appErr.Is(err, appErr.SecurityValidationFailed) {
				t.Fatalf("expected SecurityValidationFailed, got %v", err)
			}
		})
	}
}

func TestValidateZeroLimitFails(t *testing.T) {
	fields := []func(*SecurityConfig){
		func(c *SecurityConfig) { c.Limits.CPUCores = 0 },
		func(c *SecurityConfig) { c.Limits.MemoryBytes = 0 },
		func(c *SecurityConfig) { c.Limits.DiskBytes = 0 },
		func(c *SecurityConfig) { c.Limits.NetworkBytesPerSec = 0 },
		func(c *SecurityConfig) { c.Limits.ProcessLimit = 0 },
		func(c *SecurityConfig) { c.Limits.FileDescriptorLim = 0 },
	}
	for i, mutate := range fields {
		t.Run(fmt.Sprintf("field_%d", i), func(t *testing.T) {
			cfg := DefaultSecurityConfig()
			mutate(&cfg)
			v := NewValidator(cfg, nil, goodRuntime)
			err := v.Validate(context.Background())
			if !appErr.Is(err, appErr.InvalidResourceLimits) {
				t.Fatalf("expected InvalidResourceLimits, got %v", err)
			}
		})
	}
}

func TestValidateScanThresholds(t *testing.T) {
	cfg := DefaultSecurityConfig()
	cfg.Scan.Enabled = true

	v := NewValidator(cfg, &staticScanner{report: ScanReport{Critical: 1}}, goodRuntime)
	if err := v.Validate(context.Background()); !appErr.Is(err, appErr.ScanThresholdExceeded) {
		t.Fatalf("expected ScanThresholdExceeded for criticals, got %v", err)
	}

	v = NewValidator(cfg, &staticScanner{report: ScanReport{High: 6}}, goodRuntime)
	if err := v.Validate(context.Background()); !appErr.Is(err, appErr.ScanThresholdExceeded) {
		t.Fatalf("expected ScanThresholdExceeded for highs, got %v", err)
	}

	v = NewValidator(cfg, &staticScanner{report: ScanReport{High: 5}}, goodRuntime)
	if err := v.Validate(context.Background()); err != nil {
		t.Fatalf("expected scan at threshold to pass, got %v", err)
	}
}

func TestValidateScanTimeout(t *testing.T) {
	cfg := DefaultSecurityConfig()
	cfg.Scan.Enabled = true
	cfg.Scan.Timeout = 10 * time.Millisecond

	v := NewValidator(cfg, &staticScanner{delay: time.Second}, goodRuntime)
	err := v.Validate(context.Background())
	if !appErr.Is(err, appErr.ScanFailed) {
		t.Fatalf("expected ScanFailed on timeout, got %v", err)
	}
}

func TestValidateScanWithoutScanner(t *testing.T) {
	cfg := DefaultSecurityConfig()
	cfg.Scan.Enabled = true
	v := NewValidator(cfg, nil, goodRuntime)
	if err := v.Validate(context.Background()); !appErr.Is(err, appErr.ScanFailed) {
		t.Fatalf("expected ScanFailed when scanner missing, got %v", err)
	}
}
