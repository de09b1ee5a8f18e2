package sandbox

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"prooffarm/internal/farm/model"
	appErr "prooffarm/pkg/errors"
)

type fakeRuntime struct {
	mu sync.Mutex

	createErr error
	copyErr   error
	execErr   error
	// execResults are returned in order, one per Exec call.
	execResults []ExecResult
	// execFn, when set, replaces the canned results entirely.
	execFn func(ctx context.Context, cmd []string) (ExecResult, error)

	createCalls int
	copyCalls   int
	execCalls   [][]string
	stopCalls   int
	removeCalls int
}

func (f *fakeRuntime) Create(ctx context.Context, spec SandboxSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "sb-1", nil
}

func (f *fakeRuntime) CopyInto(ctx context.Context, id, srcPath, destPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyCalls++
	return f.copyErr
}

func (f *fakeRuntime) Exec(ctx context.Context, id string, cmd []string, timeout time.Duration) (ExecResult, error) {
	f.mu.Lock()
	f.execCalls = append(f.execCalls, cmd)
	idx := len(f.execCalls) - 1
	fn := f.execFn
	execErr := f.execErr
	var res ExecResult
	hasRes := false
	if idx < len(f.execResults) {
		res = f.execResults[idx]
		hasRes = true
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, cmd)
	}
	if execErr != nil {
		return ExecResult{}, execErr
	}
	if hasRes {
		return res, nil
	}
	return ExecResult{ExitCode: 0}, nil
}

func (f *fakeRuntime) Stop(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	return nil
}

type fakeCompiler struct {
	src string
	err error

	calls int
}

func (f *fakeCompiler) GenerateProof(ctx context.Context, theorem model.Theorem, options model.ProofOptions) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.src, nil
}

func (f *fakeCompiler) Ping(ctx context.Context) error { return nil }

func testJob() model.Job {
	return model.Job{
		ID: "job-1",
		Theorem: model.Theorem{
			ID:        "thm-1",
			Name:      "add_comm",
			Statement: "a + b = b + a",
		},
		Priority:  model.PriorityNormal,
		CreatedAt: time.Now(),
	}
}

func newTestExecutor(t *testing.T, rt *fakeRuntime, tc *fakeCompiler) (*Executor, *[]State) {
	t.Helper()
	exec, err := NewExecutor(rt, nil, tc, ExecutorConfig{WorkspaceRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	states := &[]State{}
	exec.SetObserver(func(jobID string, s State) {
		*states = append(*states, s)
	})
	return exec, states
}

func assertCleanupOnce(t *testing.T, rt *fakeRuntime) {
	t.Helper()
	if rt.stopCalls != 1 {
		t.Fatalf("expected 1 stop call, got %d", rt.stopCalls)
	}
	if rt.removeCalls != 1 {
		t.Fatalf("expected 1 remove call, got %d", rt.removeCalls)
	}
}

func TestExecuteSuccess(t *testing.T) {
	rt := &fakeRuntime{
		execResults: []ExecResult{
			{ExitCode: 0, CPUSeconds: 1.5, MemoryPeakBytes: 100},
			{ExitCode: 0, Stdout: "proof ok", CPUSeconds: 2.5, MemoryPeakBytes: 200},
		},
	}
	tc := &fakeCompiler{src: "theorem add_comm : a + b = b + a := by ring"}
	exec, states := newTestExecutor(t, rt, tc)

	artifact, err := exec.Execute(context.Background(), testJob())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if artifact == nil || artifact.Status != model.ProofStatusSuccess {
		t.Fatalf("expected successful artifact, got %+v", artifact)
	}
	if artifact.Output != "proof ok" {
		t.Fatalf("expected check output, got %q", artifact.Output)
	}
	if artifact.ResourceUsage.CPUSeconds != 4.0 {
		t.Fatalf("expected summed cpu seconds, got %v", artifact.ResourceUsage.CPUSeconds)
	}
	if artifact.ResourceUsage.MemoryBytes != 200 {
		t.Fatalf("expected peak memory 200, got %d", artifact.ResourceUsage.MemoryBytes)
	}
	assertCleanupOnce(t, rt)

	want := []State{StateCreated, StateCodeMounted, StateBuilt, StateExecuted, StateCleanedUp}
	if fmt.Sprint(*states) != fmt.Sprint(want) {
		t.Fatalf("unexpected state sequence: %v", *states)
	}
}

func TestExecuteBuildFailureCleansUpOnce(t *testing.T) {
	rt := &fakeRuntime{
		execResults: []ExecResult{{ExitCode: 1, Stderr: "missing dependency"}},
	}
	exec, states := newTestExecutor(t, rt, &fakeCompiler{src: "proof"})

	_, err := exec.Execute(context.Background(), testJob())
	if !appErr.Is(err, appErr.BuildFailed) {
		t.Fatalf("expected BuildFailed, got %v", err)
	}
	if len(rt.execCalls) != 1 {
		t.Fatalf("check must not run after build failure, got %d exec calls", len(rt.execCalls))
	}
	assertCleanupOnce(t, rt)
	last := (*states)[len(*states)-1]
	if last != StateCleanedUp {
		t.Fatalf("cleanup must be terminal, got %v", last)
	}
}

func TestExecuteCheckFailureCleansUpOnce(t *testing.T) {
	rt := &fakeRuntime{
		execResults: []ExecResult{
			{ExitCode: 0},
			{ExitCode: 2, Stderr: "proof incomplete"},
		},
	}
	exec, _ := newTestExecutor(t, rt, &fakeCompiler{src: "proof"})

	_, err := exec.Execute(context.Background(), testJob())
	if !appErr.Is(err, appErr.ExecutionFailed) {
		t.Fatalf("expected ExecutionFailed, got %v", err)
	}
	assertCleanupOnce(t, rt)
}

func TestExecuteCheckTimeout(t *testing.T) {
	rt := &fakeRuntime{
		execResults: []ExecResult{
			{ExitCode: 0},
			{ExitCode: -1, TimedOut: true},
		},
	}
	exec, _ := newTestExecutor(t, rt, &fakeCompiler{src: "proof"})

	_, err := exec.Execute(context.Background(), testJob())
	if !appErr.Is(err, appErr.JobTimeout) {
		t.Fatalf("expected JobTimeout, got %v", err)
	}
	assertCleanupOnce(t, rt)
}

func TestExecuteJobContextExpiryIsTimeout(t *testing.T) {
	// When the job context ends mid-run the real runtime kills the
	// helper and reports a plain non-zero exit with a nil error; the
	// executor must still classify that as a timeout.
	rt := &fakeRuntime{execFn: func(ctx context.Context, cmd []string) (ExecResult, error) {
		<-ctx.Done()
		return ExecResult{ExitCode: -1}, nil
	}}
	exec, states := newTestExecutor(t, rt, &fakeCompiler{src: "proof"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := exec.Execute(ctx, testJob())
	if !appErr.Is(err, appErr.JobTimeout) {
		t.Fatalf("expected JobTimeout, got %v", err)
	}
	assertCleanupOnce(t, rt)
	last := (*states)[len(*states)-1]
	if last != StateCleanedUp {
		t.Fatalf("cleanup must be terminal, got %v", last)
	}
}

func TestExecuteCreateFailureSkipsCleanup(t *testing.T) {
	rt := &fakeRuntime{createErr: fmt.Errorf("no space")}
	exec, _ := newTestExecutor(t, rt, &fakeCompiler{src: "proof"})

	_, err := exec.Execute(context.Background(), testJob())
	if !appErr.Is(err, appErr.SandboxCreationFailed) {
		t.Fatalf("expected SandboxCreationFailed, got %v", err)
	}
	if rt.stopCalls != 0 || rt.removeCalls != 0 {
		t.Fatalf("cleanup must not run for a sandbox that was never created: stops=%d removes=%d",
			rt.stopCalls, rt.removeCalls)
	}
}

func TestExecuteCompilerFailureSkipsSandbox(t *testing.T) {
	rt := &fakeRuntime{}
	exec, _ := newTestExecutor(t, rt, &fakeCompiler{err: appErr.Newf(appErr.CompilerUnavailable, "down")})

	_, err := exec.Execute(context.Background(), testJob())
	if !appErr.Is(err, appErr.CompilerUnavailable) {
		t.Fatalf("expected CompilerUnavailable, got %v", err)
	}
	if rt.createCalls != 0 {
		t.Fatalf("sandbox must not be created when proof generation fails, got %d creates", rt.createCalls)
	}
}

func TestExecuteOOMKilled(t *testing.T) {
	rt := &fakeRuntime{
		execResults: []ExecResult{
			{ExitCode: 0},
			{ExitCode: -1, OOMKilled: true},
		},
	}
	exec, _ := newTestExecutor(t, rt, &fakeCompiler{src: "proof"})

	_, err := exec.Execute(context.Background(), testJob())
	if !appErr.Is(err, appErr.ResourceLimitExceeded) {
		t.Fatalf("expected ResourceLimitExceeded, got %v", err)
	}
	assertCleanupOnce(t, rt)
}
