// Package collector drains the worker pool's results channel and fans
// results out to storage, status, durable rows and events.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"prooffarm/internal/common/storage"
	"prooffarm/internal/farm/model"
	"prooffarm/internal/farm/repository"
	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/logger"
)

const defaultArtifactPrefix = "artifacts"

// Config controls result collection.
type Config struct {
	ArtifactBucket string `yaml:"artifactBucket"`
	ArtifactPrefix string `yaml:"artifactPrefix"`
}

// Stats is a snapshot of the collector's counters.
type Stats struct {
	Processed     int64 `json:"processed"`
	Succeeded     int64 `json:"succeeded"`
	Failed        int64 `json:"failed"`
	AvgDurationMS int64 `json:"avg_duration_ms"`
}

// Collector consumes job results. Persistence failures are logged and
// never stop the loop: losing one artifact upload must not take the
// farm down.
type Collector struct {
	cfg       Config
	status    repository.StatusRepository
	store     storage.ObjectStorage
	results   repository.ResultStore
	publisher repository.ResultPublisher
	enc       *zstd.Encoder

	processed       atomic.Int64
	succeeded       atomic.Int64
	failed          atomic.Int64
	totalDurationMS atomic.Int64
}

// New creates a collector. Each sink may be nil; nil sinks are skipped.
func New(cfg Config, status repository.StatusRepository, store storage.ObjectStorage, results repository.ResultStore, publisher repository.ResultPublisher) (*Collector, error) {
	if cfg.ArtifactPrefix == "" {
		cfg.ArtifactPrefix = defaultArtifactPrefix
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create zstd encoder")
	}
	return &Collector{
		cfg:       cfg,
		status:    status,
		store:     store,
		results:   results,
		publisher: publisher,
		enc:       enc,
	}, nil
}

// Run consumes results until the channel closes or ctx is canceled.
func (c *Collector) Run(ctx context.Context, results <-chan model.JobResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			c.handle(ctx, res)
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Collector) Stats() Stats {
	processed := c.processed.Load()
	stats := Stats{
		Processed: processed,
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
	}
	if processed > 0 {
		stats.AvgDurationMS = c.totalDurationMS.Load() / processed
	}
	return stats
}

func (c *Collector) handle(ctx context.Context, res model.JobResult) {
	c.processed.Add(1)
	c.totalDurationMS.Add(res.DurationMS)
	if res.Success {
		c.succeeded.Add(1)
	} else {
		c.failed.Add(1)
	}

	if res.Success && res.Artifact != nil && c.store != nil {
		if err := c.uploadArtifact(ctx, res.Artifact); err != nil {
			logger.Error(ctx, "artifact upload failed",
				zap.String("job_id", res.JobID),
				zap.String("artifact_id", res.Artifact.ID),
				zap.Error(err))
		}
	}

	if c.status != nil {
		status := model.StatusFinished
		if !res.Success {
			status = model.StatusFailed
		}
		record := model.JobStatusRecord{
			JobID:        res.JobID,
			Status:       status,
			ErrorMessage: res.ErrorMessage,
			DurationMS:   res.DurationMS,
			FinishedAt:   res.FinishedAt.Unix(),
		}
		if err := c.status.Save(ctx, record); err != nil {
			logger.Error(ctx, "status save failed", zap.String("job_id", res.JobID), zap.Error(err))
		}
	}

	if c.results != nil {
		if err := c.results.Save(ctx, res); err != nil {
			logger.Error(ctx, "result row save failed", zap.String("job_id", res.JobID), zap.Error(err))
		}
	}

	if c.publisher != nil {
		if err := c.publisher.PublishResult(ctx, res); err != nil {
			logger.Error(ctx, "result event publish failed", zap.String("job_id", res.JobID), zap.Error(err))
		}
	}

	logger.Info(ctx, "result collected",
		zap.String("job_id", res.JobID),
		zap.Bool("success", res.Success),
		zap.Int64("duration_ms", res.DurationMS))
}

func (c *Collector) uploadArtifact(ctx context.Context, artifact *model.ProofArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode artifact")
	}
	compressed := c.enc.EncodeAll(data, nil)
	key := path.Join(c.cfg.ArtifactPrefix, artifact.ID+".json.zst")

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.store.PutObject(uploadCtx, c.cfg.ArtifactBucket, key,
		bytes.NewReader(compressed), int64(len(compressed)), "application/zstd"); err != nil {
		return appErr.Wrapf(err, appErr.UploadFailed, "upload artifact")
	}
	return nil
}
