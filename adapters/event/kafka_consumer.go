package event

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/config"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const (
	defaultHandleAttempts = 5
	defaultRetryInterval  = 500 * time.Millisecond
)

// EventHandler processes one decoded video event. A returned error is
// retried with backoff; once the attempts run out the event is logged and
// committed so the partition keeps moving.
type EventHandler func(ctx context.Context, evt video.Event) error

type KafkaConsumer struct {
	reader     *kafka.Reader
	skipOrigin string
	logger     logger.Logger

	maxAttempts   int
	retryInterval time.Duration
}

// NewKafkaConsumer reads video.events as part of groupID. Messages written
// by skipOrigin are committed without being handled.
func NewKafkaConsumer(cfg config.Config, groupID, skipOrigin string, log logger.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       TopicVideoEvents,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return &KafkaConsumer{
		reader:        reader,
		skipOrigin:    skipOrigin,
		logger:        log.With(zap.String("group_id", groupID)),
		maxAttempts:   defaultHandleAttempts,
		retryInterval: defaultRetryInterval,
	}
}

// Run blocks until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context, handle EventHandler) error {
	c.logger.Info("Consumer listening", zap.String("topic", TopicVideoEvents))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to read message from Kafka", err)
			continue
		}

		if c.skipOrigin != "" && headerValue(msg, headerOrigin) == c.skipOrigin {
			c.commit(ctx, msg)
			continue
		}

		var evt video.Event
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			c.logger.Warn("Skipping undecodable event", zap.String("key", string(msg.Key)), zap.Error(err))
			c.commit(ctx, msg)
			continue
		}

		if err := c.handleWithRetry(ctx, evt, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Dropping video event after retries", err,
				zap.String("video_id", evt.VideoID.String()),
				zap.String("event_type", string(evt.Type)),
				zap.Int64("offset", msg.Offset),
			)
		}
		c.commit(ctx, msg)
	}
}

// handleWithRetry calls handle up to maxAttempts times with exponential
// backoff between attempts. It gives up early when ctx ends.
func (c *KafkaConsumer) handleWithRetry(ctx context.Context, evt video.Event, handle EventHandler) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 20 * c.retryInterval
	b.MaxElapsedTime = 0

	attempts := max(c.maxAttempts, 1)
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	return backoff.RetryNotify(func() error {
		return handle(ctx, evt)
	}, policy, func(err error, wait time.Duration) {
		c.logger.Warn("Video event handler failed, retrying",
			zap.String("video_id", evt.VideoID.String()),
			zap.String("event_type", string(evt.Type)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

func (c *KafkaConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.Error("Failed to commit message", err, zap.Int64("offset", msg.Offset))
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
