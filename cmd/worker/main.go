package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/adapters/event"
	"github.com/khoahotran/pulse-media/adapters/prober"
	videoUC "github.com/khoahotran/pulse-media/internal/application/usecase/video"
	"github.com/khoahotran/pulse-media/internal/bootstrap"
	"github.com/khoahotran/pulse-media/internal/config"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/logger"
	"github.com/khoahotran/pulse-media/pkg/tracing"
)

const consumerGroup = "video-processor-group"

func main() {
	fmt.Println("Starting Pulse Media Worker...")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}
	if cfg.DB.DSN == "" || len(cfg.Kafka.Brokers) == 0 {
		log.Fatalf("FATAL: worker requires db.dsn and kafka.brokers")
	}

	appLogger := logger.NewZapLogger(cfg.App.Env).With(zap.String("component", "worker"))
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(cfg, appLogger, "pulse-media-worker")
	if err != nil {
		appLogger.Fatal("Failed to initialize tracing", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			appLogger.Error("Failed to shutdown tracer provider", err)
		}
	}()

	var closers bootstrap.Closers
	defer closers.Close()

	videoRepo, err := bootstrap.VideoRepository(cfg, appLogger, &closers)
	if err != nil {
		appLogger.Fatal("Cannot connect Postgres", err)
	}
	lock, err := bootstrap.ProcessingLock(cfg, appLogger, &closers)
	if err != nil {
		appLogger.Fatal("Cannot connect Redis", err)
	}
	payloads, localThumbs, err := bootstrap.Storage(cfg)
	if err != nil {
		appLogger.Fatal("Cannot open storage root", err, zap.String("root", cfg.Storage.Root))
	}
	thumbs, err := bootstrap.ThumbnailStore(cfg, localThumbs, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize thumbnail store", err)
	}
	producer, err := bootstrap.KafkaProducer(cfg, appLogger, &closers)
	if err != nil {
		appLogger.Fatal("Cannot init Kafka", err)
	}

	ffmpeg := prober.NewFFmpegProber(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, cfg.Processing.Timeout, appLogger)
	processUseCase := videoUC.NewProcessVideoUseCase(videoRepo, payloads, thumbs, ffmpeg, lock, producer, cfg.Processing.Timeout+time.Minute, appLogger)
	processor := videoUC.NewProcessor(processUseCase, cfg.Processing.Workers, appLogger)

	reaper := videoUC.NewReapStaleUseCase(videoRepo, lock, processor, producer, cfg.Processing.StaleAfter, appLogger)
	go reaper.Run(ctx, cfg.Processing.ReapInterval)

	consumer := event.NewKafkaConsumer(cfg, consumerGroup, "", appLogger)
	defer consumer.Close()

	err = consumer.Run(ctx, func(_ context.Context, evt video.Event) error {
		if evt.Type != video.EventCreated {
			return nil
		}
		appLogger.Info("Scheduling video", zap.String("video_id", evt.VideoID.String()))
		processor.Schedule(evt.VideoID)
		return nil
	})
	if err != nil {
		appLogger.Error("Consumer stopped", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := processor.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Processing tasks cancelled on shutdown", zap.Error(err))
	}
	appLogger.Info("Worker exited")
}
