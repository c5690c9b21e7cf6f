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

type ChangeStatusUseCase struct {
	videoRepo video.Repository
	publisher service.EventPublisher
	logger    logger.Logger
}

func NewChangeStatusUseCase(r video.Repository, pub service.EventPublisher, log logger.Logger) *ChangeStatusUseCase {
	return &ChangeStatusUseCase{videoRepo: r, publisher: pub, logger: log}
}

type ChangeStatusInput struct {
	Principal user.Principal
	VideoID   uuid.UUID
	Status    string
}

func (uc *ChangeStatusUseCase) Execute(ctx context.Context, input ChangeStatusInput) (*video.Video, error) {
	ctx, span := tracer.Start(ctx, "ChangeStatusUseCase.Execute")
	defer span.End()

	target, err := video.ParseStatus(input.Status)
	if err != nil {
		return nil, apperror.NewInvalidInput("status must be one of processing, draft, live, rejected", err)
	}
	if !input.Principal.HasRole(user.RoleAdmin, user.RoleEditor) {
		return nil, apperror.NewPermissionDenied("only admins and editors may change status")
	}

	current, err := uc.videoRepo.FindByID(ctx, input.VideoID)
	if err != nil {
		return nil, err
	}
	if !input.Principal.IsAdmin() && !current.OwnedBy(input.Principal.ID) {
		return nil, apperror.NewNotFound("video", input.VideoID.String())
	}

	switch err := video.CheckManualTransition(input.Principal, current.Status, target); {
	case err == nil:
	case errors.Is(err, video.ErrTransitionForbidden) || !input.Principal.IsAdmin():
		return nil, apperror.NewPermissionDenied("only admins may change video status")
	default:
		return nil, apperror.NewConflict("Status transition not allowed",
			string(current.Status)+" -> "+string(target), err)
	}

	// Compare-and-set against the status validated above.
	updated, err := uc.videoRepo.Transition(ctx, input.VideoID, []video.Status{current.Status}, target)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	uc.publisher.Publish(ctx, video.NewUpdatedEvent(updated))
	uc.logger.Info("Video status changed",
		zap.String("video_id", updated.ID.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("by", input.Principal.ID.String()),
	)
	return updated, nil
}
