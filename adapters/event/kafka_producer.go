package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/config"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const (
	TopicVideoEvents = "video.events"

	headerEventType = "event_type"
	headerOrigin    = "origin"
)

// KafkaProducerClient mirrors every video event onto the video.events topic,
// keyed by video id so a consumer sees one asset's events in order.
type KafkaProducerClient struct {
	VideoEventsWriter *kafka.Writer
	origin            string
	logger            logger.Logger
}

func NewKafkaProducerClient(cfg config.Config, log logger.Logger) (*KafkaProducerClient, error) {
	brokers := cfg.Kafka.Brokers
	if len(brokers) == 0 {
		return nil, fmt.Errorf("config Kafka brokers not found")
	}

	c := &KafkaProducerClient{origin: uuid.NewString(), logger: log}
	c.VideoEventsWriter = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        TopicVideoEvents,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("Failed to deliver video events to Kafka", err, zap.Int("count", len(messages)))
			}
		},
	}

	log.Info("Initialize Kafka Producer successfully.", zap.String("topic", TopicVideoEvents))
	return c, nil
}

func (c *KafkaProducerClient) PublishVideoEvent(ctx context.Context, evt video.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal video event: %w", err)
	}
	return c.VideoEventsWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.VideoID.String()),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(evt.Type)},
			{Key: headerOrigin, Value: []byte(c.origin)},
		},
	})
}

// Publish satisfies service.EventPublisher. The writer is async so this
// never waits on the broker.
func (c *KafkaProducerClient) Publish(ctx context.Context, evt video.Event) {
	if err := c.PublishVideoEvent(ctx, evt); err != nil {
		c.logger.Error("Failed to publish Kafka video event", err,
			zap.String("video_id", evt.VideoID.String()), zap.String("event_type", string(evt.Type)))
	}
}

// Origin identifies this process on every message it writes.
func (c *KafkaProducerClient) Origin() string { return c.origin }

func (c *KafkaProducerClient) Close() {
	if c.VideoEventsWriter != nil {
		if err := c.VideoEventsWriter.Close(); err != nil {
			c.logger.Error("Failed to close Kafka writer", err)
		}
	}
	c.logger.Info("Closed Kafka Producers")
}
