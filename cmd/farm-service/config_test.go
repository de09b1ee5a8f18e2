package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	appErr "prooffarm/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "farm_service.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
kafka:
  brokers: ["localhost:9092"]
compiler:
  baseURL: "http://localhost:9000"
redis:
  addr: "localhost:6379"
`

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := LoadAppConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %s", cfg.Server.ListenAddr)
	}
	if cfg.QueueSize != 1000 {
		t.Fatalf("unexpected queue size: %d", cfg.QueueSize)
	}
	if cfg.Status.KeyPrefix != "farm:job" || cfg.Status.TTL != 24*time.Hour {
		t.Fatalf("unexpected status defaults: %+v", cfg.Status)
	}
	if !cfg.Security.RequireNonRoot || !cfg.Security.NetworkIsolation {
		t.Fatalf("security defaults must be strict: %+v", cfg.Security)
	}
	if cfg.Logger.Level != "info" || cfg.Logger.Format != "json" {
		t.Fatalf("unexpected logger defaults: %+v", cfg.Logger)
	}
}

func TestLoadAppConfigOverrides(t *testing.T) {
	cfg, err := LoadAppConfig(writeConfig(t, minimalConfig+`
server:
  listenAddr: ":9999"
queueSize: 50
pool:
  workers: 8
security:
  runAsUID: 2000
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Fatalf("override not applied: %s", cfg.Server.ListenAddr)
	}
	if cfg.QueueSize != 50 || cfg.Pool.Workers != 8 {
		t.Fatalf("overrides not applied: %d %d", cfg.QueueSize, cfg.Pool.Workers)
	}
	if cfg.Security.RunAsUID != 2000 {
		t.Fatalf("security override not applied: %d", cfg.Security.RunAsUID)
	}
}

func TestLoadAppConfigRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing brokers", `
compiler:
  baseURL: "http://localhost:9000"
redis:
  addr: "localhost:6379"
`},
		{"missing compiler", `
kafka:
  brokers: ["localhost:9092"]
redis:
  addr: "localhost:6379"
`},
		{"missing redis", `
kafka:
  brokers: ["localhost:9092"]
compiler:
  baseURL: "http://localhost:9000"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadAppConfig(writeConfig(t, tc.body))
			if !appErr.Is(err, appErr.InvalidParams) {
				t.Fatalf("expected InvalidParams, got %v", err)
			}
		})
	}
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	_, err := LoadAppConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
}
