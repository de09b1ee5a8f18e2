package security

import (
	"context"
	"encoding/json"
	"os/exec"

	appErr "prooffarm/pkg/errors"
)

// ScanReport summarizes vulnerabilities found in the sandbox image.
type ScanReport struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Scanner produces a vulnerability report for the sandbox image.
type Scanner interface {
	Scan(ctx context.Context) (ScanReport, error)
}

// CommandScanner shells out to an external scanner that prints a JSON
// ScanReport on stdout.
type CommandScanner struct {
	Command []string
}

// NewCommandScanner creates a scanner around the given command line.
func NewCommandScanner(command []string) (*CommandScanner, error) {
	if len(command) == 0 {
		return nil, appErr.Newf(appErr.InvalidParams, "scanner command is required")
	}
	return &CommandScanner{Command: command}, nil
}

// Scan runs the scanner command and parses its report.
func (s *CommandScanner) Scan(ctx context.Context) (ScanReport, error) {
	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return ScanReport{}, appErr.Wrapf(err, appErr.ScanFailed, "scanner command failed")
	}
	var report ScanReport
	if err := json.Unmarshal(out, &report); err != nil {
		return ScanReport{}, appErr.Wrapf(err, appErr.ScanFailed, "parse scanner output")
	}
	return report, nil
}
