package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

// Reasons carried by error events. They are machine codes; causes are only
// logged.
const (
	ReasonSourceMissing  = "source_missing"
	ReasonThumbnailStore = "thumbnail_store_failed"
	ReasonInternal       = "internal_error"
	ReasonTimedOut       = "timed_out"
	ReasonProbeFailed    = "probe_failed"
)

type ProcessVideoUseCase struct {
	videoRepo video.Repository
	payloads  service.PayloadStore
	thumbs    service.ThumbnailStore
	prober    service.Prober
	lock      service.ProcessingLock
	publisher service.EventPublisher
	lockTTL   time.Duration
	logger    logger.Logger
}

func NewProcessVideoUseCase(
	r video.Repository,
	p service.PayloadStore,
	t service.ThumbnailStore,
	pr service.Prober,
	l service.ProcessingLock,
	pub service.EventPublisher,
	lockTTL time.Duration,
	log logger.Logger,
) *ProcessVideoUseCase {
	return &ProcessVideoUseCase{
		videoRepo: r,
		payloads:  p,
		thumbs:    t,
		prober:    pr,
		lock:      l,
		publisher: pub,
		lockTTL:   lockTTL,
		logger:    log,
	}
}

// Execute runs the single processing attempt for an asset. Every failure is
// absorbed into the asset's status; the returned error only reports what
// could not be recorded at all.
func (uc *ProcessVideoUseCase) Execute(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "ProcessVideoUseCase.Execute",
		trace.WithAttributes(attribute.String("video_id", id.String())))
	defer span.End()

	l := uc.logger.With(zap.String("video_id", id.String()))

	release, ok, err := uc.lock.Acquire(ctx, id, uc.lockTTL)
	if err != nil {
		span.RecordError(err)
		return apperror.NewInternal("failed to acquire processing lock", err)
	}
	if !ok {
		l.Info("Processing already in flight, skipping")
		return nil
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			l.Error("Processing panicked", fmt.Errorf("%v", r))
			err = uc.reject(context.WithoutCancel(ctx), l, id, ReasonInternal)
		}
	}()

	v, err := uc.videoRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			l.Warn("Video vanished before processing, skipping")
			return nil
		}
		span.RecordError(err)
		return err
	}
	if v.Status != video.StatusProcessing {
		l.Info("Video no longer processing, skipping", zap.String("status", string(v.Status)))
		return nil
	}
	if err := uc.videoRepo.MarkProcessingStarted(ctx, id); err != nil {
		l.Warn("Failed to stamp processing start", zap.Error(err))
	}

	absPath, err := uc.payloads.AbsPath(v.StoragePath)
	if err != nil {
		l.Warn("Source file unavailable", zap.Error(err))
		return uc.reject(ctx, l, id, ReasonSourceMissing)
	}

	res, err := uc.probe(ctx, l, id, absPath)
	if err != nil {
		span.RecordError(err)
		reason := probeFailureReason(err)
		l.Warn("Probe failed", zap.String("reason", reason), zap.Error(err))
		return uc.reject(context.WithoutCancel(ctx), l, id, reason)
	}

	thumbPath, err := uc.thumbs.Put(ctx, id.String(), res.Thumbnail)
	if err != nil {
		span.RecordError(err)
		l.Error("Failed to store thumbnail", err)
		return uc.reject(context.WithoutCancel(ctx), l, id, ReasonThumbnailStore)
	}

	completed, err := uc.videoRepo.CompleteProcessing(ctx, id, video.ProcessingResult{
		DurationSeconds: res.DurationSeconds,
		ThumbnailPath:   thumbPath,
		Title:           video.TitleFromFilename(v.OriginalName),
	})
	if err != nil {
		uc.discardThumbnail(l, id)
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
			l.Info("Video deleted or moved during processing, result discarded")
			return nil
		}
		span.RecordError(err)
		l.Error("Failed to persist processing result", err)
		return err
	}

	uc.publisher.Publish(ctx, video.NewCompletedEvent(completed))
	uc.publisher.Publish(ctx, video.NewUpdatedEvent(completed))
	l.Info("Video processed",
		zap.Float64("duration_seconds", completed.DurationSeconds),
		zap.String("thumbnail_path", completed.ThumbnailPath),
	)
	return nil
}

// probe runs the prober while a separate goroutine persists and publishes
// interim progress. Values that do not advance are dropped.
func (uc *ProcessVideoUseCase) probe(ctx context.Context, l logger.Logger, id uuid.UUID, absPath string) (*service.ProbeResult, error) {
	progress := make(chan int, 16)
	drained := make(chan struct{})

	go func() {
		defer close(drained)
		last := 0
		for pct := range progress {
			pct = video.ClampInterimProgress(pct)
			if pct <= last {
				continue
			}
			last = pct
			if err := uc.videoRepo.UpdateProgress(ctx, id, pct); err != nil {
				l.Warn("Failed to persist progress", zap.Int("progress", pct), zap.Error(err))
				continue
			}
			uc.publisher.Publish(ctx, video.NewProgressEvent(id, pct))
		}
	}()

	defer func() {
		close(progress)
		<-drained
	}()

	res, err := uc.prober.Probe(ctx, absPath, progress)

	if err == nil && (res == nil || len(res.Thumbnail) == 0) {
		err = errors.New("prober returned no thumbnail")
	}
	return res, err
}

func probeFailureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimedOut
	}
	var failure service.ProbeFailure
	if errors.As(err, &failure) && failure.FailureReason() != "" {
		return failure.FailureReason()
	}
	return ReasonProbeFailed
}

// reject moves a processing asset to rejected. An asset that was deleted or
// already left processing is left untouched.
func (uc *ProcessVideoUseCase) reject(ctx context.Context, l logger.Logger, id uuid.UUID, reason string) error {
	rejected, err := uc.videoRepo.Transition(ctx, id,
		video.Sources(video.StatusRejected, video.AuthoritySystem), video.StatusRejected)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
			l.Info("Video deleted or moved during processing, failure discarded")
			return nil
		}
		l.Error("Failed to reject video", err, zap.String("reason", reason))
		return err
	}

	uc.publisher.Publish(ctx, video.NewErrorEvent(id, reason))
	uc.publisher.Publish(ctx, video.NewUpdatedEvent(rejected))
	l.Info("Video rejected", zap.String("reason", reason))
	return nil
}

func (uc *ProcessVideoUseCase) discardThumbnail(l logger.Logger, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := uc.thumbs.Delete(ctx, id.String()); err != nil {
		l.Warn("Failed to remove orphaned thumbnail", zap.Error(err))
	}
}
