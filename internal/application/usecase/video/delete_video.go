package video

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

type DeleteVideoUseCase struct {
	videoRepo video.Repository
	payloads  service.PayloadStore
	thumbs    service.ThumbnailStore
	publisher service.EventPublisher
	logger    logger.Logger
}

func NewDeleteVideoUseCase(
	r video.Repository,
	p service.PayloadStore,
	t service.ThumbnailStore,
	pub service.EventPublisher,
	log logger.Logger,
) *DeleteVideoUseCase {
	return &DeleteVideoUseCase{videoRepo: r, payloads: p, thumbs: t, publisher: pub, logger: log}
}

type DeleteVideoInput struct {
	Principal user.Principal
	VideoID   uuid.UUID
}

// Execute succeeds whether or not the asset existed. Editors may only delete
// their own assets; other assets they cannot see are treated as absent.
func (uc *DeleteVideoUseCase) Execute(ctx context.Context, input DeleteVideoInput) error {
	ctx, span := tracer.Start(ctx, "DeleteVideoUseCase.Execute")
	defer span.End()

	if !input.Principal.HasRole(user.RoleAdmin, user.RoleEditor) {
		return apperror.NewPermissionDenied("only admins and editors may delete videos")
	}
	l := uc.logger.With(zap.String("video_id", input.VideoID.String()))

	current, err := uc.videoRepo.FindByID(ctx, input.VideoID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		span.RecordError(err)
		return err
	}
	if !input.Principal.IsAdmin() && !current.OwnedBy(input.Principal.ID) {
		if current.VisibleTo(input.Principal) {
			return apperror.NewPermissionDenied("editors may only delete their own videos")
		}
		return nil
	}

	deleted, err := uc.videoRepo.Delete(ctx, input.VideoID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		span.RecordError(err)
		return err
	}

	if err := uc.payloads.Remove(ctx, deleted.StoragePath); err != nil {
		l.Warn("Failed to remove source file", zap.Error(err))
	}
	if deleted.ThumbnailPath != "" {
		if err := uc.thumbs.Delete(ctx, deleted.ID.String()); err != nil {
			l.Warn("Failed to remove thumbnail", zap.Error(err))
		}
	}

	uc.publisher.Publish(ctx, video.NewDeletedEvent(deleted.ID))
	l.Info("Video deleted", zap.String("by", input.Principal.ID.String()))
	return nil
}
