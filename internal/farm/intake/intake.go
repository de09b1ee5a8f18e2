// Package intake feeds the in-memory job queue from the job topic.
package intake

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"prooffarm/internal/common/mq"
	"prooffarm/internal/farm/model"
	"prooffarm/internal/farm/queue"
	"prooffarm/internal/farm/repository"
	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/logger"
)

// Config controls the job intake subscription.
type Config struct {
	Topic         string `yaml:"topic"`
	ConsumerGroup string `yaml:"consumerGroup"`

	// MaxRetries and RetryDelay bound requeue attempts when the queue
	// is full; after that the message goes to DeadLetterTopic.
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
}

func (c *Config) setDefaults() {
	if c.Topic == "" {
		c.Topic = "proof-jobs"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.DeadLetterTopic == "" {
		c.DeadLetterTopic = c.Topic + ".dlq"
	}
}

// Intake decodes job messages and enqueues them. Malformed messages
// are dropped with a log line; a full queue is a retryable failure so
// the broker redelivers with backoff and finally dead-letters.
type Intake struct {
	consumer mq.Consumer
	queue    *queue.JobQueue
	status   repository.StatusRepository
	cfg      Config
}

// New creates a job intake. status may be nil.
func New(consumer mq.Consumer, q *queue.JobQueue, status repository.StatusRepository, cfg Config) (*Intake, error) {
	if consumer == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "consumer is required")
	}
	if q == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "job queue is required")
	}
	cfg.setDefaults()
	return &Intake{consumer: consumer, queue: q, status: status, cfg: cfg}, nil
}

// Start registers the subscription. Consumption begins when the
// underlying consumer is started.
func (i *Intake) Start(ctx context.Context) error {
	opts := &mq.SubscribeOptions{
		ConsumerGroup:   i.cfg.ConsumerGroup,
		MaxRetries:      i.cfg.MaxRetries,
		RetryDelay:      i.cfg.RetryDelay,
		DeadLetterTopic: i.cfg.DeadLetterTopic,
	}
	return i.consumer.SubscribeWithOptions(ctx, i.cfg.Topic, i.HandleMessage, opts)
}

// HandleMessage processes one job message.
func (i *Intake) HandleMessage(ctx context.Context, msg *mq.Message) error {
	var job model.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		logger.Warn(ctx, "dropping malformed job message",
			zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if job.ID == "" {
		logger.Warn(ctx, "dropping job message without id",
			zap.String("message_id", msg.ID))
		return nil
	}
	job.Priority = model.ParsePriority(int(job.Priority))
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := i.queue.Enqueue(job); err != nil {
		if appErr.Is(err, appErr.QueueFull) {
			logger.Warn(ctx, "queue full, message will be redelivered",
				zap.String("job_id", job.ID),
				zap.Int("queue_depth", i.queue.Size()))
			return err
		}
		logger.Warn(ctx, "dropping unqueueable job",
			zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	if i.status != nil {
		record := model.JobStatusRecord{
			JobID:      job.ID,
			Status:     model.StatusPending,
			Priority:   job.Priority.String(),
			TheoremID:  job.Theorem.ID,
			ReceivedAt: time.Now().Unix(),
		}
		if err := i.status.Save(ctx, record); err != nil {
			logger.Warn(ctx, "pending status save failed",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	logger.Info(ctx, "job enqueued",
		zap.String("job_id", job.ID),
		zap.String("priority", job.Priority.String()),
		zap.Int("queue_depth", i.queue.Size()))
	return nil
}
