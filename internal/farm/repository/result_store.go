package repository

import (
	"context"
	"database/sql"
	"errors"

	"prooffarm/internal/common/db"
	"prooffarm/internal/farm/model"
	appErr "prooffarm/pkg/errors"
)

// ResultStore durably mirrors final job results.
type ResultStore interface {
	Save(ctx context.Context, result model.JobResult) error
	Get(ctx context.Context, jobID string) (model.JobResult, error)
}

// MySQLResultStore persists final results in the job_results table.
type MySQLResultStore struct {
	db db.Database
}

// NewMySQLResultStore creates a MySQL-backed result store.
func NewMySQLResultStore(database db.Database) (*MySQLResultStore, error) {
	if database == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "database is required")
	}
	return &MySQLResultStore{db: database}, nil
}

// Save upserts the final result row for a job.
func (s *MySQLResultStore) Save(ctx context.Context, result model.JobResult) error {
	if result.JobID == "" {
		return appErr.Newf(appErr.InvalidParams, "job id is required")
	}
	artifactID := ""
	if result.Artifact != nil {
		artifactID = result.Artifact.ID
	}
	const query = `
		INSERT INTO job_results
			(job_id, success, duration_ms, error_message, artifact_id, cpu_seconds, memory_bytes, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			success = VALUES(success),
			duration_ms = VALUES(duration_ms),
			error_message = VALUES(error_message),
			artifact_id = VALUES(artifact_id),
			cpu_seconds = VALUES(cpu_seconds),
			memory_bytes = VALUES(memory_bytes),
			finished_at = VALUES(finished_at)`
	_, err := s.db.Exec(ctx, query,
		result.JobID,
		result.Success,
		result.DurationMS,
		result.ErrorMessage,
		artifactID,
		result.ResourceUsage.CPUSeconds,
		result.ResourceUsage.MemoryBytes,
		result.FinishedAt,
	)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "save job result")
	}
	return nil
}

// Get returns the stored result row for a job, without the artifact
// payload (that lives in object storage).
func (s *MySQLResultStore) Get(ctx context.Context, jobID string) (model.JobResult, error) {
	if jobID == "" {
		return model.JobResult{}, appErr.Newf(appErr.InvalidParams, "job id is required")
	}
	const query = `
		SELECT job_id, success, duration_ms, error_message, cpu_seconds, memory_bytes, finished_at
		FROM job_results WHERE job_id = ?`
	var result model.JobResult
	err := s.db.QueryRow(ctx, query, jobID).Scan(
		&result.JobID,
		&result.Success,
		&result.DurationMS,
		&result.ErrorMessage,
		&result.ResourceUsage.CPUSeconds,
		&result.ResourceUsage.MemoryBytes,
		&result.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.JobResult{}, appErr.Newf(appErr.RecordNotFound, "result for job %s not found", jobID)
		}
		return model.JobResult{}, appErr.Wrapf(err, appErr.DatabaseError, "get job result")
	}
	return result, nil
}
