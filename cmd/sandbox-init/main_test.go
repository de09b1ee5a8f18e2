//go:build linux

package main

import (
	"strings"
	"testing"

	seccomp "github.com/seccomp/libseccomp-golang"
)

func TestDecodeRequestRoundtrip(t *testing.T) {
	body := `{
		"WorkDir": "/workspace",
		"Cmd": ["lake", "build"],
		"TmpDir": "/tmp/sb",
		"ReadOnlyRoot": true,
		"NoexecTmp": true,
		"EnableSeccomp": true,
		"EnableNs": true,
		"Seccomp": "/etc/prooffarm/seccomp.json",
		"Limits": {"CPUSeconds": 11, "ProcessLimit": 100, "FileDescLimit": 1024, "OutputBytes": 65536}
	}`
	req, err := decodeRequest(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.WorkDir != "/workspace" || len(req.Cmd) != 2 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Limits.CPUSeconds != 11 || req.Limits.FileDescLimit != 1024 {
		t.Fatalf("unexpected limits: %+v", req.Limits)
	}
	if err := validateRequest(req); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRequestRejectsIncomplete(t *testing.T) {
	if err := validateRequest(initRequest{WorkDir: "/workspace"}); err == nil {
		t.Fatal("request without a command must be rejected")
	}
	if err := validateRequest(initRequest{Cmd: []string{"lake", "build"}}); err == nil {
		t.Fatal("request without a workdir must be rejected")
	}
}

func TestParseSeccompAction(t *testing.T) {
	cases := []struct {
		in      string
		want    seccomp.ScmpAction
		wantErr bool
	}{
		{"SCMP_ACT_ALLOW", seccomp.ActAllow, false},
		{"scmp_act_allow", seccomp.ActAllow, false},
		{"SCMP_ACT_ERRNO", seccomp.ActErrno, false},
		{"SCMP_ACT_KILL", seccomp.ActKillProcess, false},
		{"SCMP_ACT_KILL_PROCESS", seccomp.ActKillProcess, false},
		{"SCMP_ACT_TRACE", 0, true},
	}
	for _, tc := range cases {
		got, err := parseSeccompAction(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBuildEnvDefaultsPath(t *testing.T) {
	env := buildEnv(nil)
	if len(env) != 1 || !strings.HasPrefix(env[0], "PATH=") {
		t.Fatalf("expected PATH default, got %v", env)
	}
	custom := buildEnv([]string{"LEAN_PATH=/opt/lean"})
	if len(custom) != 1 || custom[0] != "LEAN_PATH=/opt/lean" {
		t.Fatalf("expected caller env preserved, got %v", custom)
	}
}
