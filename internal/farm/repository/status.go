// Package repository persists job status, results and result events.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"prooffarm/internal/common/cache"
	"prooffarm/internal/farm/model"
	appErr "prooffarm/pkg/errors"
)

const (
	defaultStatusKeyPrefix = "farm:job"
	defaultStatusTTL       = 24 * time.Hour
)

// StatusRepository tracks the externally visible job lifecycle:
// pending, running, finished, failed.
type StatusRepository interface {
	Save(ctx context.Context, record model.JobStatusRecord) error
	Get(ctx context.Context, jobID string) (model.JobStatusRecord, error)
}

// RedisStatusRepository stores status records in redis with a TTL.
type RedisStatusRepository struct {
	cache     cache.Cache
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStatusRepository creates a redis-backed status repository.
// Empty prefix and zero ttl use the defaults.
func NewRedisStatusRepository(c cache.Cache, keyPrefix string, ttl time.Duration) (*RedisStatusRepository, error) {
	if c == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "cache is required")
	}
	if keyPrefix == "" {
		keyPrefix = defaultStatusKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &RedisStatusRepository{cache: c, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (r *RedisStatusRepository) key(jobID string) string {
	return r.keyPrefix + ":" + jobID
}

// Save writes the status record, refreshing the TTL.
func (r *RedisStatusRepository) Save(ctx context.Context, record model.JobStatusRecord) error {
	if record.JobID == "" {
		return appErr.Newf(appErr.InvalidParams, "job id is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode status record")
	}
	if err := r.cache.Set(ctx, r.key(record.JobID), string(data), r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheSetFailed, "save job status")
	}
	return nil
}

// Get returns the status record for a job, or JobNotFound.
func (r *RedisStatusRepository) Get(ctx context.Context, jobID string) (model.JobStatusRecord, error) {
	if jobID == "" {
		return model.JobStatusRecord{}, appErr.Newf(appErr.InvalidParams, "job id is required")
	}
	raw, err := r.cache.Get(ctx, r.key(jobID))
	if err != nil {
		return model.JobStatusRecord{}, appErr.Wrapf(err, appErr.CacheError, "get job status")
	}
	if raw == "" {
		return model.JobStatusRecord{}, appErr.Newf(appErr.JobNotFound, "job %s not found", jobID)
	}
	var record model.JobStatusRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return model.JobStatusRecord{}, appErr.Wrapf(err, appErr.InternalServerError, "decode status record")
	}
	return record, nil
}
