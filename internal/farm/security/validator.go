package security

import (
	"context"
	"errors"

	"go.uber.org/zap"

	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/logger"
)

// Validator checks the runtime environment, the declared configuration
// and the resource limits before the farm is allowed to start.
type Validator struct {
	cfg      SecurityConfig
	scanner  Scanner
	detector func() RuntimeInfo
}

// NewValidator creates a startup validator. scanner may be nil when
// scanning is disabled; detector nil means DetectRuntime.
func NewValidator(cfg SecurityConfig, scanner Scanner, detector func() RuntimeInfo) *Validator {
	if detector == nil {
		detector = DetectRuntime
	}
	return &Validator{cfg: cfg, scanner: scanner, detector: detector}
}

// Validate runs all checks in order and returns the first failure.
// Any error here is fatal: the caller must exit instead of starting
// the worker pool.
func (v *Validator) Validate(ctx context.Context) error {
	info := v.detector()

	if err := v.validateRuntime(info); err != nil {
		return err
	}
	if err := v.validateConfig(); err != nil {
		return err
	}
	if err := v.validateLimits(); err != nil {
		return err
	}
	if err := v.runScan(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "security validation passed",
		zap.Bool("gvisor", info.GVisor),
		zap.Int("seccomp_mode", info.SeccompMode),
		zap.Int("euid", info.EUID))
	return nil
}

func (v *Validator) validateRuntime(info RuntimeInfo) error {
	if v.cfg.RequireIsolatedRuntime && !info.GVisor {
		return appErr.Newf(appErr.RuntimeNotIsolated, "gVisor runtime required but not detected")
	}
	if v.cfg.RequireNonRoot && info.EUID == 0 {
		return appErr.Newf(appErr.RunningAsRoot, "farm must not run as root (euid=0)")
	}
	if v.cfg.RequireSeccomp && info.SeccompMode == 0 {
		return appErr.Newf(appErr.SeccompDisabled, "seccomp required but disabled")
	}
	if v.cfg.RequireNoNewPrivileges && !info.NoNewPrivs {
		return appErr.Newf(appErr.SecurityValidationFailed, "no_new_privs required but not set")
	}
	if v.cfg.DropAllCapabilities && info.CapBnd != 0 {
		return appErr.Newf(appErr.CapabilitiesNotDropped, "capability bounding set is not empty: %#x", info.CapBnd)
	}
	return nil
}

func (v *Validator) validateConfig() error {
	if v.cfg.RunAsUID == 0 || v.cfg.RunAsGID == 0 {
		return appErr.Newf(appErr.SecurityValidationFailed, "sandbox uid/gid must be non-root")
	}
	if !v.cfg.ReadOnlyRootFS {
		return appErr.Newf(appErr.SecurityValidationFailed, "read-only root filesystem is mandatory")
	}
	if !v.cfg.DropAllCapabilities {
		return appErr.Newf(appErr.SecurityValidationFailed, "dropping all capabilities is mandatory")
	}
	if !v.cfg.DisallowPrivileged {
		return appErr.Newf(appErr.SecurityValidationFailed, "privileged sandboxes are forbidden")
	}
	if !v.cfg.NetworkIsolation {
		return appErr.Newf(appErr.SecurityValidationFailed, "network isolation is mandatory")
	}
	return nil
}

func (v *Validator) validateLimits() error {
	l := v.cfg.Limits
	if l.CPUCores <= 0 {
		return appErr.Newf(appErr.InvalidResourceLimits, "cpu limit must be positive")
	}
	if l.MemoryBytes <= 0 {
		return appErr.Newf(appErr.InvalidResourceLimits, "memory limit must be positive")
	}
	if l.DiskBytes <= 0 {
		return appErr.Newf(appErr.InvalidResourceLimits, "disk limit must be positive")
	}
	if l.NetworkBytesPerSec <= 0 {
		return appErr.Newf(appErr.InvalidResourceLimits, "network limit must be positive")
	}
	if l.ProcessLimit <= 0 {
		return appErr.Newf(appErr.InvalidResourceLimits, "process limit must be positive")
	}
	if l.FileDescriptorLim <= 0 {
		return appErr.Newf(appErr.InvalidResourceLimits, "file descriptor limit must be positive")
	}
	return nil
}

func (v *Validator) runScan(ctx context.Context) error {
	if !v.cfg.Scan.Enabled {
		return nil
	}
	if v.scanner == nil {
		return appErr.Newf(appErr.ScanFailed, "scanning enabled but no scanner configured")
	}

	scanCtx := ctx
	if v.cfg.Scan.Timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, v.cfg.Scan.Timeout)
		defer cancel()
	}

	report, err := v.scanner.Scan(scanCtx)
	if err != nil {
		if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
			return appErr.Wrapf(err, appErr.ScanFailed, "security scan timed out")
		}
		if appErr.Is(err, appErr.ScanFailed) {
			return err
		}
		return appErr.Wrapf(err, appErr.ScanFailed, "security scan failed")
	}

	if report.Critical > v.cfg.Scan.MaxCritical {
		return appErr.Newf(appErr.ScanThresholdExceeded,
			"found %d critical vulnerabilities (max %d)", report.Critical, v.cfg.Scan.MaxCritical)
	}
	if report.High > v.cfg.Scan.MaxHigh {
		return appErr.Newf(appErr.ScanThresholdExceeded,
			"found %d high vulnerabilities (max %d)", report.High, v.cfg.Scan.MaxHigh)
	}
	logger.Info(ctx, "security scan passed",
		zap.Int("critical", report.Critical),
		zap.Int("high", report.High),
		zap.Int("medium", report.Medium),
		zap.Int("low", report.Low))
	return nil
}
