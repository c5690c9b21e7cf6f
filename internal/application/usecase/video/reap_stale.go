package video

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const ReasonStale = "stale"

// QueueTracker reports assets scheduled in this process but not finished.
type QueueTracker interface {
	Pending(id uuid.UUID) bool
}

// ReapStaleUseCase rejects assets left in processing past staleAfter, which
// happens when the process running their task dies. Assets whose processing
// lock is held, or which are still queued locally, are skipped.
type ReapStaleUseCase struct {
	videoRepo  video.Repository
	lock       service.ProcessingLock
	queue      QueueTracker
	publisher  service.EventPublisher
	staleAfter time.Duration
	logger     logger.Logger
	now        func() time.Time
}

// NewReapStaleUseCase accepts a nil queue when no processor runs in this process.
func NewReapStaleUseCase(
	r video.Repository,
	lock service.ProcessingLock,
	queue QueueTracker,
	pub service.EventPublisher,
	staleAfter time.Duration,
	log logger.Logger,
) *ReapStaleUseCase {
	return &ReapStaleUseCase{
		videoRepo:  r,
		lock:       lock,
		queue:      queue,
		publisher:  pub,
		staleAfter: staleAfter,
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Execute returns how many assets were rejected.
func (uc *ReapStaleUseCase) Execute(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ReapStaleUseCase.Execute")
	defer span.End()

	stale, err := uc.videoRepo.ListStaleProcessing(ctx, uc.now().Add(-uc.staleAfter))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	reaped := 0
	for _, v := range stale {
		if uc.queue != nil && uc.queue.Pending(v.ID) {
			continue
		}
		held, err := uc.lock.Held(ctx, v.ID)
		if err != nil {
			uc.logger.Error("Failed to check processing lock", err, zap.String("video_id", v.ID.String()))
			continue
		}
		if held {
			continue
		}

		rejected, err := uc.videoRepo.Transition(ctx, v.ID,
			video.Sources(video.StatusRejected, video.AuthoritySystem), video.StatusRejected)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
				continue
			}
			uc.logger.Error("Failed to reap stale video", err, zap.String("video_id", v.ID.String()))
			continue
		}
		reaped++
		uc.publisher.Publish(ctx, video.NewErrorEvent(v.ID, ReasonStale))
		uc.publisher.Publish(ctx, video.NewUpdatedEvent(rejected))
		uc.logger.Warn("Reaped stale processing video",
			zap.String("video_id", v.ID.String()),
			zap.Time("uploaded_at", v.UploadedAt),
			zap.Timep("processing_started_at", v.ProcessingStartedAt),
		)
	}
	return reaped, nil
}

// Run reaps every interval until ctx is done.
func (uc *ReapStaleUseCase) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := uc.Execute(ctx); err != nil && ctx.Err() == nil {
			uc.logger.Error("Reaper pass failed", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
