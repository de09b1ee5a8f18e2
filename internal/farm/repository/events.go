package repository

import (
	"context"
	"encoding/json"
	"strconv"

	"prooffarm/internal/common/mq"
	"prooffarm/internal/farm/model"
	appErr "prooffarm/pkg/errors"
)

// ResultPublisher announces final job results to downstream consumers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result model.JobResult) error
}

// KafkaResultPublisher publishes result events to a Kafka topic.
type KafkaResultPublisher struct {
	producer mq.Producer
	topic    string
}

// NewKafkaResultPublisher creates a Kafka-backed result publisher.
func NewKafkaResultPublisher(producer mq.Producer, topic string) (*KafkaResultPublisher, error) {
	if producer == nil {
		return nil, appErr.Newf(appErr.InvalidParams, "producer is required")
	}
	if topic == "" {
		return nil, appErr.Newf(appErr.InvalidParams, "topic is required")
	}
	return &KafkaResultPublisher{producer: producer, topic: topic}, nil
}

// PublishResult emits one result event keyed by job id.
func (p *KafkaResultPublisher) PublishResult(ctx context.Context, result model.JobResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode result event")
	}
	msg := mq.NewMessage(body)
	msg.ID = result.JobID
	msg.SetHeader("x-job-success", strconv.FormatBool(result.Success))
	if err := p.producer.Publish(ctx, p.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "publish result event")
	}
	return nil
}
