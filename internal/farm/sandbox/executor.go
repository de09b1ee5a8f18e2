package sandbox

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"prooffarm/internal/common/storage"
	"prooffarm/internal/farm/compiler"
	"prooffarm/internal/farm/model"
	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/logger"
)

// ExecutorConfig controls the per-job sandbox pipeline.
type ExecutorConfig struct {
	// WorkspaceRoot is where per-job host workspaces are staged.
	WorkspaceRoot string `yaml:"workspaceRoot"`

	// BundleBucket and BundlePrefix locate code bundles in the object
	// store, keyed by theorem content hash.
	BundleBucket string `yaml:"bundleBucket"`
	BundlePrefix string `yaml:"bundlePrefix"`

	// ProofFileName is the file the generated proof source is written to
	// inside the workspace.
	ProofFileName string `yaml:"proofFileName"`

	// BuildCmd prepares the workspace inside the sandbox. CheckCmd
	// verifies the generated proof.
	BuildCmd []string `yaml:"buildCmd"`
	CheckCmd []string `yaml:"checkCmd"`

	BuildTimeout   time.Duration `yaml:"buildTimeout"`
	ExecTimeout    time.Duration `yaml:"execTimeout"`
	CleanupTimeout time.Duration `yaml:"cleanupTimeout"`

	Limits model.ResourceLimits `yaml:"limits"`

	RunAsUID int `yaml:"runAsUID"`
	RunAsGID int `yaml:"runAsGID"`
}

func (c *ExecutorConfig) setDefaults() {
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = filepath.Join(os.TempDir(), "prooffarm")
	}
	if c.BundlePrefix == "" {
		c.BundlePrefix = "bundles"
	}
	if c.ProofFileName == "" {
		c.ProofFileName = "Proof.lean"
	}
	if len(c.BuildCmd) == 0 {
		c.BuildCmd = []string{"lake", "build"}
	}
	if len(c.CheckCmd) == 0 {
		c.CheckCmd = []string{"lake", "env", "lean", "Proof.lean"}
	}
	if c.BuildTimeout == 0 {
		c.BuildTimeout = 2 * time.Minute
	}
	if c.ExecTimeout == 0 {
		c.ExecTimeout = 5 * time.Minute
	}
	if c.CleanupTimeout == 0 {
		c.CleanupTimeout = 30 * time.Second
	}
	if c.Limits == (model.ResourceLimits{}) {
		c.Limits = model.DefaultResourceLimits()
	}
	if c.RunAsUID == 0 {
		c.RunAsUID = 1000
	}
	if c.RunAsGID == 0 {
		c.RunAsGID = 1000
	}
}

// Executor drives one job through the sandbox pipeline:
// generate proof, stage workspace, create sandbox, mount code, build,
// check, clean up. Cleanup runs exactly once per created sandbox, on
// every path, with its own timeout.
type Executor struct {
	rt       Runtime
	store    storage.ObjectStorage
	compiler compiler.TheoremCompiler
	cfg      ExecutorConfig
	observer StateObserver
}

// NewExecutor creates an executor. store may be nil when jobs carry no
// code bundle; compiler and rt are required.
func NewExecutor(rt Runtime, store storage.ObjectStorage, tc compiler.TheoremCompiler, cfg ExecutorConfig) (*Executor, error) {
	if rt == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "sandbox runtime is required")
	}
	if tc == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "theorem compiler is required")
	}
	cfg.setDefaults()
	return &Executor{rt: rt, store: store, compiler: tc, cfg: cfg}, nil
}

// SetObserver installs a lifecycle observer. Must be called before the
// executor starts processing jobs.
func (e *Executor) SetObserver(obs StateObserver) {
	e.observer = obs
}

func (e *Executor) observe(jobID string, state State) {
	if e.observer != nil {
		e.observer(jobID, state)
	}
}

// Execute runs one job to completion and returns its artifact.
// Job-level failures come back as coded errors; the caller decides how
// to report them.
func (e *Executor) Execute(ctx context.Context, job model.Job) (*model.ProofArtifact, error) {
	start := time.Now()

	proofSrc, err := e.compiler.GenerateProof(ctx, job.Theorem, job.Options)
	if err != nil {
		if appErr.GetCode(err) != appErr.InternalServerError && appErr.GetCode(err) != appErr.InvalidParams {
			return nil, err
		}
		return nil, appErr.Wrapf(err, appErr.ProofGenerationError, "generate proof")
	}

	workDir := filepath.Join(e.cfg.WorkspaceRoot, job.ID)
	if err := os.MkdirAll(workDir, 0750); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxSystemError, "create workspace")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn(ctx, "remove workspace failed", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	if e.store != nil && job.Theorem.ContentSHA256 != "" {
		key := path.Join(e.cfg.BundlePrefix, job.Theorem.ContentSHA256+".tar.zst")
		dest := filepath.Join(workDir, "bundle.tar.zst")
		if err := e.store.DownloadToFile(ctx, e.cfg.BundleBucket, key, dest); err != nil {
			return nil, appErr.Wrapf(err, appErr.DownloadFailed, "download code bundle")
		}
	}

	if err := os.WriteFile(filepath.Join(workDir, e.cfg.ProofFileName), []byte(proofSrc), 0640); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxSystemError, "write proof source")
	}

	spec := SandboxSpec{
		JobID:          job.ID,
		WorkDir:        workDir,
		Limits:         e.cfg.Limits,
		DisableNetwork: true,
		ReadOnlyRoot:   true,
		NoexecTmp:      true,
		UID:            e.cfg.RunAsUID,
		GID:            e.cfg.RunAsGID,
	}

	id, err := e.rt.Create(ctx, spec)
	if err != nil {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Wrapf(err, appErr.SandboxCreationFailed, "create sandbox")
	}
	e.observe(job.ID, StateCreated)

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			// Detached from the job context so cleanup still runs after
			// cancellation or timeout.
			cctx, cancel := context.WithTimeout(context.Background(), e.cfg.CleanupTimeout)
			defer cancel()
			if err := e.rt.Stop(cctx, id); err != nil {
				logger.Warn(cctx, "sandbox stop failed", zap.String("sandbox_id", id), zap.Error(err))
			}
			if err := e.rt.Remove(cctx, id); err != nil {
				logger.Warn(cctx, "sandbox remove failed", zap.String("sandbox_id", id), zap.Error(err))
			}
			e.observe(job.ID, StateCleanedUp)
		})
	}
	defer cleanup()

	if err := e.rt.CopyInto(ctx, id, workDir, "/workspace"); err != nil {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Wrapf(err, appErr.MountFailed, "mount code bundle")
	}
	e.observe(job.ID, StateCodeMounted)

	buildRes, err := e.rt.Exec(ctx, id, e.cfg.BuildCmd, e.cfg.BuildTimeout)
	// The runtime kills the helper and returns a normal result when the
	// job context expires mid-run, so the context is consulted before
	// the exit code.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Wrapf(ctx.Err(), appErr.JobTimeout, "build timed out")
	}
	if err != nil {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Wrapf(err, appErr.BuildFailed, "build")
	}
	if buildRes.TimedOut {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Newf(appErr.BuildFailed, "build timed out")
	}
	if buildRes.ExitCode != 0 {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Newf(appErr.BuildFailed, "build exited %d", buildRes.ExitCode).WithDetail("stderr", buildRes.Stderr)
	}
	e.observe(job.ID, StateBuilt)

	checkTimeout := e.cfg.ExecTimeout
	if job.Options.TimeoutSeconds > 0 {
		checkTimeout = time.Duration(job.Options.TimeoutSeconds) * time.Second
	}
	runRes, err := e.rt.Exec(ctx, id, e.cfg.CheckCmd, checkTimeout)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Wrapf(ctx.Err(), appErr.JobTimeout, "proof check timed out")
	}
	if err != nil {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Wrapf(err, appErr.ExecutionFailed, "proof check")
	}
	if runRes.TimedOut {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Newf(appErr.JobTimeout, "proof check timed out")
	}
	if runRes.OOMKilled {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Newf(appErr.ResourceLimitExceeded, "proof check killed by memory limit")
	}
	if runRes.ExitCode != 0 {
		e.observe(job.ID, StateFailed)
		return nil, appErr.Newf(appErr.ExecutionFailed, "proof check exited %d", runRes.ExitCode).WithDetail("stderr", runRes.Stderr)
	}
	e.observe(job.ID, StateExecuted)

	memPeak := buildRes.MemoryPeakBytes
	if runRes.MemoryPeakBytes > memPeak {
		memPeak = runRes.MemoryPeakBytes
	}
	artifact := &model.ProofArtifact{
		ID:          uuid.NewString(),
		TheoremID:   job.Theorem.ID,
		InvariantID: job.Theorem.SourceInvariantID,
		Status:      model.ProofStatusSuccess,
		ProofCode:   proofSrc,
		Output:      runRes.Stdout,
		DurationMS:  time.Since(start).Milliseconds(),
		ResourceUsage: model.ResourceUsage{
			CPUSeconds:  buildRes.CPUSeconds + runRes.CPUSeconds,
			MemoryBytes: memPeak,
		},
		AttemptedAt: start,
		Strategy:    job.Options.Strategy,
	}
	return artifact, nil
}
