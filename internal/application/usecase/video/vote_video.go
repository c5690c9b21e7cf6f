package video

import (
	"context"

	"github.com/google/uuid"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

type VoteVideoUseCase struct {
	videoRepo video.Repository
	publisher service.EventPublisher
	logger    logger.Logger
}

func NewVoteVideoUseCase(r video.Repository, pub service.EventPublisher, log logger.Logger) *VoteVideoUseCase {
	return &VoteVideoUseCase{videoRepo: r, publisher: pub, logger: log}
}

type VoteVideoInput struct {
	Principal user.Principal
	VideoID   uuid.UUID
	Type      string
}

// Execute toggles the principal's vote. Voting the same way twice clears it.
func (uc *VoteVideoUseCase) Execute(ctx context.Context, input VoteVideoInput) (*video.Video, error) {
	ctx, span := tracer.Start(ctx, "VoteVideoUseCase.Execute")
	defer span.End()

	kind, err := video.ParseVoteKind(input.Type)
	if err != nil {
		return nil, apperror.NewInvalidInput("type must be like or dislike", err)
	}
	if _, err := findVisible(ctx, uc.videoRepo, input.Principal, input.VideoID); err != nil {
		return nil, err
	}

	updated, err := uc.videoRepo.ApplyVote(ctx, input.VideoID, input.Principal.ID, kind)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	uc.publisher.Publish(ctx, video.NewUpdatedEvent(updated))
	return updated, nil
}
