// Package model defines the proof farm's job and result types.
package model

import (
	"time"
)

// JobPriority orders jobs in the queue. Higher values run first.
type JobPriority int

const (
	PriorityLow      JobPriority = 0
	PriorityNormal   JobPriority = 1
	PriorityHigh     JobPriority = 2
	PriorityCritical JobPriority = 3
)

// String returns the lowercase name of the priority.
func (p JobPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// ParsePriority maps an integer wire value to a JobPriority.
// Unknown values fall back to Normal.
func ParsePriority(v int) JobPriority {
	switch v {
	case 0:
		return PriorityLow
	case 1:
		return PriorityNormal
	case 2:
		return PriorityHigh
	case 3:
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// Theorem is the statement a job must prove.
type Theorem struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Statement         string `json:"statement"`
	ContentSHA256     string `json:"content_sha256"`
	SourceInvariantID string `json:"source_invariant_id,omitempty"`
}

// ProofOptions control how a proof is generated.
type ProofOptions struct {
	Strategy       string `json:"strategy,omitempty"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Job is one unit of proof-generation work.
// A job is owned by the queue until dequeued, then by exactly one worker
// until its result is emitted.
type Job struct {
	ID        string       `json:"id"`
	Theorem   Theorem      `json:"theorem"`
	Options   ProofOptions `json:"options"`
	Priority  JobPriority  `json:"priority"`
	CreatedAt time.Time    `json:"created_at"`

	// Deadline is the absolute time after which the job must not be
	// started. Nil means no deadline.
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Expired reports whether the job's deadline has passed at the given time.
func (j *Job) Expired(now time.Time) bool {
	return j.Deadline != nil && now.After(*j.Deadline)
}

// ResourceUsage records resources consumed by one job.
type ResourceUsage struct {
	CPUSeconds   float64 `json:"cpu_seconds"`
	MemoryBytes  int64   `json:"memory_bytes"`
	DiskBytes    int64   `json:"disk_bytes"`
	NetworkBytes int64   `json:"network_bytes"`
}

// ProofStatus is the terminal state of a proof attempt.
type ProofStatus string

const (
	ProofStatusSuccess ProofStatus = "success"
	ProofStatusFailed  ProofStatus = "failed"
)

// ProofArtifact is the output of a successful (or attempted) proof run.
type ProofArtifact struct {
	ID            string        `json:"id"`
	TheoremID     string        `json:"theorem_id"`
	InvariantID   string        `json:"invariant_id,omitempty"`
	Status        ProofStatus   `json:"status"`
	ProofCode     string        `json:"proof_code,omitempty"`
	Output        string        `json:"output,omitempty"`
	Logs          []string      `json:"logs,omitempty"`
	DurationMS    int64         `json:"duration_ms"`
	ResourceUsage ResourceUsage `json:"resource_usage"`
	AttemptedAt   time.Time     `json:"attempted_at"`
	Strategy      string        `json:"strategy,omitempty"`
}

// JobResult is the immutable outcome of one processed job.
type JobResult struct {
	JobID         string         `json:"job_id"`
	Success       bool           `json:"success"`
	DurationMS    int64          `json:"duration_ms"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ResourceUsage ResourceUsage  `json:"resource_usage"`
	Artifact      *ProofArtifact `json:"artifact,omitempty"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// JobStatus is the externally visible lifecycle of a job.
type JobStatus string

const (
	StatusPending  JobStatus = "pending"
	StatusRunning  JobStatus = "running"
	StatusFinished JobStatus = "finished"
	StatusFailed   JobStatus = "failed"
)

// JobStatusRecord is what the status repository stores per job.
type JobStatusRecord struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Priority     string    `json:"priority"`
	TheoremID    string    `json:"theorem_id,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
	ReceivedAt   int64     `json:"received_at"`
	FinishedAt   int64     `json:"finished_at,omitempty"`
}
