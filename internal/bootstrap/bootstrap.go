// Package bootstrap builds the adapters shared by the API server and the
// processing worker from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/khoahotran/pulse-media/adapters/event"
	"github.com/khoahotran/pulse-media/adapters/media_storage"
	"github.com/khoahotran/pulse-media/adapters/persistence"
	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/config"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

// Closers runs cleanup funcs in reverse registration order.
type Closers []func()

func (c *Closers) Add(fn func()) { *c = append(*c, fn) }

func (c Closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// VideoRepository uses Postgres when a DSN is configured and falls back to
// process memory otherwise.
func VideoRepository(cfg config.Config, log logger.Logger, closers *Closers) (video.Repository, error) {
	if cfg.DB.DSN == "" {
		log.Warn("db.dsn not set, videos are kept in memory only")
		return persistence.NewMemoryVideoRepo(), nil
	}
	pool, err := persistence.NewPostgresPool(cfg, log)
	if err != nil {
		return nil, err
	}
	closers.Add(pool.Close)
	return persistence.NewPostgresVideoRepo(pool, log), nil
}

// ProcessingLock uses Redis when an address is configured, which is required
// once more than one process schedules work.
func ProcessingLock(cfg config.Config, log logger.Logger, closers *Closers) (service.ProcessingLock, error) {
	if cfg.Redis.Addr == "" {
		log.Warn("redis.addr not set, processing lock is per process")
		return persistence.NewMemoryProcessingLock(), nil
	}
	rdb, err := persistence.NewRedisClient(cfg, log)
	if err != nil {
		return nil, err
	}
	closers.Add(func() {
		if err := rdb.Close(); err != nil {
			log.Error("Failed to close Redis client", err)
		}
	})
	return persistence.NewRedisProcessingLock(rdb, log), nil
}

// Storage opens the payload directory. The local thumbnail store shares it
// and is returned separately so the server can serve it.
func Storage(cfg config.Config) (*media_storage.LocalStore, *media_storage.LocalThumbnails, error) {
	payloads, err := media_storage.NewLocalStore(cfg.Storage.Root)
	if err != nil {
		return nil, nil, err
	}
	return payloads, media_storage.NewLocalThumbnails(payloads), nil
}

func ThumbnailStore(cfg config.Config, local *media_storage.LocalThumbnails, log logger.Logger) (service.ThumbnailStore, error) {
	switch cfg.Thumbnails.Provider {
	case config.ThumbnailsLocal, "":
		return local, nil
	case config.ThumbnailsCloudinary:
		return media_storage.NewCloudinaryAdapter(cfg, log)
	case config.ThumbnailsMinio:
		return media_storage.NewMinioAdapter(cfg, log)
	}
	return nil, fmt.Errorf("unknown thumbnails.provider %q", cfg.Thumbnails.Provider)
}

// KafkaProducer returns nil when no brokers are configured.
func KafkaProducer(cfg config.Config, log logger.Logger, closers *Closers) (*event.KafkaProducerClient, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := event.NewKafkaProducerClient(cfg, log)
	if err != nil {
		return nil, err
	}
	closers.Add(producer.Close)
	return producer, nil
}

// Relay feeds events written by other processes into the local hub, so SSE
// subscribers on every API instance see worker progress.
func Relay(ctx context.Context, cfg config.Config, hub *event.Hub, producer *event.KafkaProducerClient, log logger.Logger) {
	consumer := event.NewKafkaConsumer(cfg, "pulse-media-relay-"+producer.Origin(), producer.Origin(), log)
	go func() {
		defer consumer.Close()
		err := consumer.Run(ctx, func(ctx context.Context, evt video.Event) error {
			hub.Publish(ctx, evt)
			return nil
		})
		if err != nil {
			log.Error("Event relay stopped", err)
		}
	}()
}
