//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"prooffarm/pkg/utils/logger"
)

const defaultOutputMaxBytes int64 = 64 * 1024

// RuntimeConfig controls the native Linux sandbox runtime.
type RuntimeConfig struct {
	// BaseDir holds per-sandbox directories on the host.
	BaseDir string `yaml:"baseDir"`

	// CgroupRoot is the cgroup v2 directory sandboxes are created under.
	CgroupRoot string `yaml:"cgroupRoot"`

	// HelperPath is the sandbox-init binary executed inside the
	// namespaces.
	HelperPath string `yaml:"helperPath"`

	// SeccompProfile is the JSON allowlist loaded by sandbox-init.
	SeccompProfile string `yaml:"seccompProfile"`

	EnableCgroup     bool `yaml:"enableCgroup"`
	EnableNamespaces bool `yaml:"enableNamespaces"`
	EnableSeccomp    bool `yaml:"enableSeccomp"`

	OutputMaxBytes int64 `yaml:"outputMaxBytes"`
}

type linuxRuntime struct {
	cfg RuntimeConfig

	mu        sync.Mutex
	sandboxes map[string]*sandboxEntry
}

type sandboxEntry struct {
	spec       SandboxSpec
	dir        string
	cgroupPath string
	lastPID    int
}

// NewRuntime creates the native Linux sandbox runtime.
func NewRuntime(cfg RuntimeConfig) (Runtime, error) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Join(os.TempDir(), "prooffarm-sandboxes")
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if cfg.OutputMaxBytes <= 0 {
		cfg.OutputMaxBytes = defaultOutputMaxBytes
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroup is enabled")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0750); err != nil {
		return nil, fmt.Errorf("create sandbox base dir: %w", err)
	}
	return &linuxRuntime{
		cfg:       cfg,
		sandboxes: make(map[string]*sandboxEntry),
	}, nil
}

func (r *linuxRuntime) Create(ctx context.Context, spec SandboxSpec) (string, error) {
	if spec.JobID == "" {
		return "", fmt.Errorf("job id is required")
	}
	if spec.UID == 0 || spec.GID == 0 {
		return "", fmt.Errorf("sandbox must not run as root")
	}

	id := uuid.NewString()
	dir := filepath.Join(r.cfg.BaseDir, id)
	for _, sub := range []string{"workspace", "tmp", "io"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0750); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("create sandbox dir: %w", err)
		}
	}

	entry := &sandboxEntry{spec: spec, dir: dir}
	if r.cfg.EnableCgroup {
		cgroupPath, err := createSandboxCgroup(r.cfg.CgroupRoot, id)
		if err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("create cgroup: %w", err)
		}
		if err := applyCgroupLimits(cgroupPath, spec.Limits); err != nil {
			_ = os.RemoveAll(cgroupPath)
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("apply cgroup limits: %w", err)
		}
		entry.cgroupPath = cgroupPath
	}

	r.mu.Lock()
	r.sandboxes[id] = entry
	r.mu.Unlock()
	return id, nil
}

func (r *linuxRuntime) CopyInto(ctx context.Context, id, srcPath, destPath string) error {
	entry, err := r.lookup(id)
	if err != nil {
		return err
	}
	dest, err := entry.hostPath(destPath)
	if err != nil {
		return err
	}
	return copyTree(srcPath, dest)
}

func (r *linuxRuntime) Exec(ctx context.Context, id string, cmd []string, timeout time.Duration) (ExecResult, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return ExecResult{}, err
	}
	if len(cmd) == 0 {
		return ExecResult{}, fmt.Errorf("command is required")
	}

	stdoutPath := filepath.Join(entry.dir, "io", "stdout.log")
	stderrPath := filepath.Join(entry.dir, "io", "stderr.log")

	req := initRequest{
		WorkDir:       filepath.Join(entry.dir, "workspace"),
		Cmd:           cmd,
		StdoutPath:    stdoutPath,
		StderrPath:    stderrPath,
		TmpDir:        filepath.Join(entry.dir, "tmp"),
		ReadOnlyRoot:  entry.spec.ReadOnlyRoot,
		NoexecTmp:     entry.spec.NoexecTmp,
		EnableSeccomp: r.cfg.EnableSeccomp,
		EnableNs:      r.cfg.EnableNamespaces,
		Seccomp:       r.cfg.SeccompProfile,
		Limits: initLimits{
			CPUSeconds:    cpuRlimitSeconds(timeout, entry.spec.Limits.CPUCores),
			ProcessLimit:  entry.spec.Limits.ProcessLimit,
			FileDescLimit: entry.spec.Limits.FileDescriptorLim,
			OutputBytes:   entry.spec.Limits.DiskBytes,
		},
	}

	stdinPipe, err := jsonToPipe(req)
	if err != nil {
		return ExecResult{}, fmt.Errorf("encode init request: %w", err)
	}
	defer stdinPipe.Close()

	helper := exec.CommandContext(ctx, r.cfg.HelperPath)
	helper.SysProcAttr = buildSysProcAttr(entry.spec, r.cfg.EnableNamespaces)
	helper.Stdin = stdinPipe

	var helperStderr bytes.Buffer
	helper.Stderr = &helperStderr

	start := time.Now()
	if err := helper.Start(); err != nil {
		return ExecResult{}, fmt.Errorf("start helper: %w", err)
	}

	r.mu.Lock()
	entry.lastPID = helper.Process.Pid
	r.mu.Unlock()

	if r.cfg.EnableCgroup {
		if err := addProcessToCgroup(entry.cgroupPath, helper.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed",
				zap.String("cgroup", entry.cgroupPath), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var timer <-chan time.Time
		if timeout > 0 {
			timer = time.After(timeout)
		}
		select {
		case <-ctx.Done():
			killProcessGroup(helper.Process.Pid)
		case <-timer:
			timedOut.Store(true)
			killProcessGroup(helper.Process.Pid)
		case <-done:
		}
	}()

	waitErr := helper.Wait()
	close(done)

	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Warn(ctx, "sandbox helper failed", zap.String("stderr", helperStderr.String()))
	}

	res := ExecResult{
		ExitCode:        exitCodeFromErr(waitErr, helper.ProcessState),
		Stdout:          readLimitedFile(stdoutPath, r.cfg.OutputMaxBytes),
		Stderr:          readLimitedFile(stderrPath, r.cfg.OutputMaxBytes),
		CPUSeconds:      cpuSeconds(helper.ProcessState),
		WallTime:        time.Since(start),
		MemoryPeakBytes: memoryPeakBytes(entry.cgroupPath, helper.ProcessState),
		OOMKilled:       wasOomKilled(entry.cgroupPath),
		TimedOut:        timedOut.Load(),
	}
	if res.TimedOut && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res, nil
}

func (r *linuxRuntime) Stop(ctx context.Context, id string) error {
	entry, err := r.lookup(id)
	if err != nil {
		return err
	}
	if entry.cgroupPath != "" {
		if err := killCgroup(entry.cgroupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("kill cgroup: %w", err)
		}
		return nil
	}
	if entry.lastPID > 0 {
		killProcessGroup(entry.lastPID)
	}
	return nil
}

func (r *linuxRuntime) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	entry, ok := r.sandboxes[id]
	delete(r.sandboxes, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	var firstErr error
	if entry.cgroupPath != "" {
		if err := os.RemoveAll(entry.cgroupPath); err != nil {
			firstErr = fmt.Errorf("remove cgroup: %w", err)
		}
	}
	if err := os.RemoveAll(entry.dir); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("remove sandbox dir: %w", err)
	}
	return firstErr
}

func (r *linuxRuntime) lookup(id string) (*sandboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sandboxes[id]
	if !ok {
		return nil, fmt.Errorf("sandbox %s not found", id)
	}
	return entry, nil
}

// hostPath maps a sandbox-visible path like /workspace to the host
// directory backing it.
func (e *sandboxEntry) hostPath(p string) (string, error) {
	clean := filepath.Clean(p)
	switch {
	case clean == "/workspace" || strings.HasPrefix(clean, "/workspace/"):
		return filepath.Join(e.dir, "workspace", strings.TrimPrefix(clean, "/workspace")), nil
	case clean == "/tmp" || strings.HasPrefix(clean, "/tmp/"):
		return filepath.Join(e.dir, "tmp", strings.TrimPrefix(clean, "/tmp")), nil
	default:
		return "", fmt.Errorf("path %s is outside the sandbox", p)
	}
}

func copyTree(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return copyFile(src, dest, info.Mode())
	}
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0750)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(p, target, fi.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// cpuRlimitSeconds is the RLIMIT_CPU backstop behind the cgroup cpu
// controller: wall timeout times the core quota, rounded up.
func cpuRlimitSeconds(timeout time.Duration, cores float64) int64 {
	if timeout <= 0 {
		return 0
	}
	if cores <= 0 {
		cores = 1
	}
	return int64(timeout.Seconds()*cores) + 1
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func cpuSeconds(state *os.ProcessState) float64 {
	if state == nil {
		return 0
	}
	return state.UserTime().Seconds() + state.SystemTime().Seconds()
}

func readLimitedFile(path string, maxBytes int64) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}

func jsonToPipe(req initRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}

func buildSysProcAttr(spec SandboxSpec, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC | syscall.CLONE_NEWUSER)
	if spec.DisableNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: spec.UID,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: spec.GID,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}

// initRequest is the contract with cmd/sandbox-init, sent as JSON on
// the helper's stdin.
type initRequest struct {
	WorkDir       string     `json:"WorkDir"`
	Cmd           []string   `json:"Cmd"`
	Env           []string   `json:"Env"`
	StdoutPath    string     `json:"StdoutPath"`
	StderrPath    string     `json:"StderrPath"`
	TmpDir        string     `json:"TmpDir"`
	ReadOnlyRoot  bool       `json:"ReadOnlyRoot"`
	NoexecTmp     bool       `json:"NoexecTmp"`
	EnableSeccomp bool       `json:"EnableSeccomp"`
	EnableNs      bool       `json:"EnableNs"`
	Seccomp       string     `json:"Seccomp"`
	Limits        initLimits `json:"Limits"`
}

type initLimits struct {
	CPUSeconds    int64 `json:"CPUSeconds"`
	ProcessLimit  int64 `json:"ProcessLimit"`
	FileDescLimit int64 `json:"FileDescLimit"`
	OutputBytes   int64 `json:"OutputBytes"`
}
