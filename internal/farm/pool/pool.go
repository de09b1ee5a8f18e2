// Package pool runs the farm's worker loops: dequeue, execute, emit.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"prooffarm/internal/farm/model"
	"prooffarm/internal/farm/queue"
	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/contextkey"
	"prooffarm/pkg/utils/logger"
)

const (
	defaultWorkers        = 4
	defaultResultBuffer   = 100
	defaultIdleWait       = 100 * time.Millisecond
	defaultMaxJobDuration = 5 * time.Minute

	// resultDrainGrace is how long a worker keeps trying to deliver a
	// finished result after shutdown begins, so in-flight work is not
	// thrown away while the collector drains.
	resultDrainGrace = time.Second
)

// JobExecutor runs one job to completion. Implemented by
// sandbox.Executor.
type JobExecutor interface {
	Execute(ctx context.Context, job model.Job) (*model.ProofArtifact, error)
}

// Config controls the worker pool.
type Config struct {
	Workers int `yaml:"workers"`

	// ResultBuffer is the capacity of the results channel. Workers block
	// when the collector falls this far behind.
	ResultBuffer int `yaml:"resultBuffer"`

	// IdleWait is how long a worker sleeps when the queue is empty.
	IdleWait time.Duration `yaml:"idleWait"`

	// MaxJobDuration bounds one job end to end. On expiry the job
	// context is canceled and the sandbox torn down.
	MaxJobDuration time.Duration `yaml:"maxJobDuration"`
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.ResultBuffer <= 0 {
		c.ResultBuffer = defaultResultBuffer
	}
	if c.IdleWait <= 0 {
		c.IdleWait = defaultIdleWait
	}
	if c.MaxJobDuration <= 0 {
		c.MaxJobDuration = defaultMaxJobDuration
	}
}

// WorkerPool owns N workers pulling from a shared job queue. The queue
// itself is shared with the intake side; the pool only consumes.
type WorkerPool struct {
	cfg      Config
	queue    *queue.JobQueue
	executor JobExecutor

	results chan model.JobResult
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	running atomic.Bool
	active  atomic.Int32
}

// New creates a worker pool consuming from q.
func New(q *queue.JobQueue, executor JobExecutor, cfg Config) (*WorkerPool, error) {
	if q == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "job queue is required")
	}
	if executor == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "executor is required")
	}
	cfg.setDefaults()
	return &WorkerPool{
		cfg:      cfg,
		queue:    q,
		executor: executor,
		results:  make(chan model.JobResult, cfg.ResultBuffer),
	}, nil
}

// Results is the channel job outcomes are emitted on. It is closed
// after Stop returns.
func (p *WorkerPool) Results() <-chan model.JobResult {
	return p.results
}

// Start spawns the worker loops. Workers observe ctx: canceling it has
// the same effect as Stop.
func (p *WorkerPool) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return appErr.New(appErr.PoolAlreadyStarted)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx, i)
	}
	logger.Info(ctx, "worker pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Duration("max_job_duration", p.cfg.MaxJobDuration))
	return nil
}

// Stop cancels all workers, waits for in-flight jobs to finish and
// closes the results channel.
func (p *WorkerPool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.cancel()
	p.wg.Wait()
	close(p.results)
	logger.Info(context.Background(), "worker pool stopped")
}

// QueueDepth reports jobs waiting in the queue.
func (p *WorkerPool) QueueDepth() int {
	return p.queue.Size()
}

// ActiveWorkers reports workers currently running a job.
func (p *WorkerPool) ActiveWorkers() int {
	return int(p.active.Load())
}

// IsRunning reports whether the pool has been started and not stopped.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	wctx := context.WithValue(ctx, contextkey.WorkerID, id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, ok := p.queue.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.IdleWait):
			}
			continue
		}

		p.active.Add(1)
		result := p.process(wctx, job)
		p.active.Add(-1)

		select {
		case p.results <- result:
		case <-ctx.Done():
			select {
			case p.results <- result:
			case <-time.After(resultDrainGrace):
				logger.Warn(wctx, "dropping result on shutdown", zap.String("job_id", job.ID))
			}
			return
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, job model.Job) model.JobResult {
	jctx := context.WithValue(ctx, contextkey.JobID, job.ID)

	if job.Expired(time.Now()) {
		logger.Warn(jctx, "job deadline exceeded before start",
			zap.Time("deadline", *job.Deadline))
		return model.JobResult{
			JobID:        job.ID,
			Success:      false,
			ErrorMessage: appErr.DeadlineExceeded.Message(),
			FinishedAt:   time.Now(),
		}
	}

	jobCtx, cancel := context.WithTimeout(jctx, p.cfg.MaxJobDuration)
	defer cancel()

	start := time.Now()
	artifact, err := p.executor.Execute(jobCtx, job)
	duration := time.Since(start)

	if err != nil {
		logger.Warn(jctx, "job failed",
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.Int("code", int(appErr.GetCode(err))),
			zap.Error(err))
		return model.JobResult{
			JobID:        job.ID,
			Success:      false,
			DurationMS:   duration.Milliseconds(),
			ErrorMessage: err.Error(),
			FinishedAt:   time.Now(),
		}
	}

	logger.Info(jctx, "job finished",
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.String("artifact_id", artifact.ID))
	return model.JobResult{
		JobID:         job.ID,
		Success:       true,
		DurationMS:    duration.Milliseconds(),
		ResourceUsage: artifact.ResourceUsage,
		Artifact:      artifact,
		FinishedAt:    time.Now(),
	}
}
