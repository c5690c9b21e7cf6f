package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/adapters/event"
	httpAdapter "github.com/khoahotran/pulse-media/adapters/http"
	"github.com/khoahotran/pulse-media/adapters/prober"
	"github.com/khoahotran/pulse-media/internal/application/service"
	videoUC "github.com/khoahotran/pulse-media/internal/application/usecase/video"
	"github.com/khoahotran/pulse-media/internal/bootstrap"
	"github.com/khoahotran/pulse-media/internal/config"
	"github.com/khoahotran/pulse-media/pkg/auth"
	"github.com/khoahotran/pulse-media/pkg/logger"
	"github.com/khoahotran/pulse-media/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

// deferredScheduler leaves uploads to cmd/worker, which picks them up from
// the created event on Kafka.
type deferredScheduler struct{ logger logger.Logger }

func (s deferredScheduler) Schedule(id uuid.UUID) {
	s.logger.Debug("Processing deferred to worker", zap.String("video_id", id.String()))
}

func main() {
	fmt.Println("Start Pulse Media API Server...")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}

	appLogger := logger.NewZapLogger(cfg.App.Env)
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(cfg, appLogger, "pulse-media-api")
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

	// Events
	hub := event.NewHub(64, appLogger)
	defer hub.Close()
	var publisher service.EventPublisher = hub
	producer, err := bootstrap.KafkaProducer(cfg, appLogger, &closers)
	if err != nil {
		appLogger.Fatal("Cannot init Kafka", err)
	}
	if producer != nil {
		publisher = event.Fanout{hub, producer}
		bootstrap.Relay(ctx, cfg, hub, producer, appLogger)
	}

	// Processing
	var scheduler videoUC.Scheduler = deferredScheduler{logger: appLogger}
	var processor *videoUC.Processor
	if cfg.Processing.Mode == config.ProcessingLocal {
		ffmpeg := prober.NewFFmpegProber(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, cfg.Processing.Timeout, appLogger)
		processUseCase := videoUC.NewProcessVideoUseCase(videoRepo, payloads, thumbs, ffmpeg, lock, publisher, cfg.Processing.Timeout+time.Minute, appLogger)
		processor = videoUC.NewProcessor(processUseCase, cfg.Processing.Workers, appLogger)
		scheduler = processor

		reaper := videoUC.NewReapStaleUseCase(videoRepo, lock, processor, publisher, cfg.Processing.StaleAfter, appLogger)
		go reaper.Run(ctx, cfg.Processing.ReapInterval)
	}

	// Use Cases
	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifespan)
	videoHandler := httpAdapter.NewVideoHandler(
		videoUC.NewUploadVideoUseCase(videoRepo, payloads, publisher, scheduler, appLogger),
		videoUC.NewListVideosUseCase(videoRepo, appLogger),
		videoUC.NewGetVideoUseCase(videoRepo, appLogger),
		videoUC.NewUpdateVideoUseCase(videoRepo, publisher, appLogger),
		videoUC.NewChangeStatusUseCase(videoRepo, publisher, appLogger),
		videoUC.NewVoteVideoUseCase(videoRepo, publisher, appLogger),
		videoUC.NewDeleteVideoUseCase(videoRepo, payloads, thumbs, publisher, appLogger),
		videoUC.NewSyncVideoUseCase(videoRepo, publisher, appLogger),
		cfg.Storage.MaxUploadMB<<20,
		appLogger,
	)
	streamHandler := httpAdapter.NewStreamHandler(
		videoUC.NewStreamVideoUseCase(videoRepo, payloads, appLogger),
		videoUC.NewGetVideoUseCase(videoRepo, appLogger),
		localThumbs,
		appLogger,
	)
	eventsHandler := httpAdapter.NewEventsHandler(hub, 0, appLogger)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpAdapter.NewRouter(httpAdapter.Handlers{
		Video:           videoHandler,
		Stream:          streamHandler,
		Events:          eventsHandler,
		ServeThumbnails: cfg.Thumbnails.Provider == config.ThumbnailsLocal,
	}, jwtSvc, appLogger)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Server running", zap.String("port", cfg.App.Port), zap.String("processing_mode", cfg.Processing.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Cannot run server", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", err)
	}
	if processor != nil {
		if err := processor.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Processing tasks cancelled on shutdown", zap.Error(err))
		}
	}
	appLogger.Info("Server exited")
}
