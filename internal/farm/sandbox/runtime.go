// Package sandbox runs untrusted proof checks inside isolated
// sandboxes and owns the per-job sandbox lifecycle.
package sandbox

import (
	"context"
	"time"

	"prooffarm/internal/farm/model"
)

// SandboxSpec describes the sandbox a job runs in.
type SandboxSpec struct {
	JobID string

	// WorkDir is the host directory staged with the code bundle and
	// proof source. The runtime makes it visible at /workspace.
	WorkDir string

	Limits model.ResourceLimits

	// Hardening knobs. The security validator refuses to start the farm
	// unless the configuration keeps all of these on.
	DisableNetwork bool
	ReadOnlyRoot   bool
	NoexecTmp      bool

	// UID and GID the sandboxed process maps to. Never 0.
	UID int
	GID int
}

// ExecResult reports one command run inside a sandbox.
type ExecResult struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	CPUSeconds      float64
	WallTime        time.Duration
	MemoryPeakBytes int64
	OOMKilled       bool
	TimedOut        bool
}

// Runtime provisions and drives sandboxes. Implementations must make
// Stop and Remove safe to call on sandboxes that already exited.
type Runtime interface {
	// Create provisions a sandbox and returns its id.
	Create(ctx context.Context, spec SandboxSpec) (string, error)

	// CopyInto copies a host path into the sandbox at destPath.
	CopyInto(ctx context.Context, id, srcPath, destPath string) error

	// Exec runs a command inside the sandbox, bounded by timeout.
	// A non-zero exit code is reported in ExecResult, not as an error.
	Exec(ctx context.Context, id string, cmd []string, timeout time.Duration) (ExecResult, error)

	// Stop terminates everything running in the sandbox.
	Stop(ctx context.Context, id string) error

	// Remove releases the sandbox's resources.
	Remove(ctx context.Context, id string) error
}
