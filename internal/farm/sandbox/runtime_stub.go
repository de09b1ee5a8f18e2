//go:build !linux

package sandbox

import (
	"context"
	"fmt"
	"time"
)

// RuntimeConfig controls the native Linux sandbox runtime. On other
// platforms it exists only so configuration still parses.
type RuntimeConfig struct {
	BaseDir          string `yaml:"baseDir"`
	CgroupRoot       string `yaml:"cgroupRoot"`
	HelperPath       string `yaml:"helperPath"`
	SeccompProfile   string `yaml:"seccompProfile"`
	EnableCgroup     bool   `yaml:"enableCgroup"`
	EnableNamespaces bool   `yaml:"enableNamespaces"`
	EnableSeccomp    bool   `yaml:"enableSeccomp"`
	OutputMaxBytes   int64  `yaml:"outputMaxBytes"`
}

type stubRuntime struct{}

// NewRuntime returns a runtime that refuses every operation; the
// sandbox only runs on linux.
func NewRuntime(cfg RuntimeConfig) (Runtime, error) {
	return &stubRuntime{}, nil
}

func (s *stubRuntime) Create(ctx context.Context, spec SandboxSpec) (string, error) {
	return "", fmt.Errorf("sandbox runtime is only supported on linux")
}

func (s *stubRuntime) CopyInto(ctx context.Context, id, srcPath, destPath string) error {
	return fmt.Errorf("sandbox runtime is only supported on linux")
}

func (s *stubRuntime) Exec(ctx context.Context, id string, cmd []string, timeout time.Duration) (ExecResult, error) {
	return ExecResult{}, fmt.Errorf("sandbox runtime is only supported on linux")
}

func (s *stubRuntime) Stop(ctx context.Context, id string) error {
	return fmt.Errorf("sandbox runtime is only supported on linux")
}

func (s *stubRuntime) Remove(ctx context.Context, id string) error {
	return fmt.Errorf("sandbox runtime is only supported on linux")
}
