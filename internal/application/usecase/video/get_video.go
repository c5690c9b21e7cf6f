package video

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

var tracer = otel.Tracer("pulse-media/usecase/video")

type GetVideoUseCase struct {
	videoRepo video.Repository
	logger    logger.Logger
}

func NewGetVideoUseCase(r video.Repository, log logger.Logger) *GetVideoUseCase {
	return &GetVideoUseCase{videoRepo: r, logger: log}
}

type GetVideoInput struct {
	Principal user.Principal
	VideoID   uuid.UUID
}

func (uc *GetVideoUseCase) Execute(ctx context.Context, input GetVideoInput) (*video.Video, error) {
	ctx, span := tracer.Start(ctx, "GetVideoUseCase.Execute")
	defer span.End()

	v, err := findVisible(ctx, uc.videoRepo, input.Principal, input.VideoID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v, nil
}

// findVisible loads an asset and hides it behind a NotFound when the
// principal may not see it, so hidden assets are indistinguishable from
// missing ones.
func findVisible(ctx context.Context, repo video.Repository, p user.Principal, id uuid.UUID) (*video.Video, error) {
	v, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.VisibleTo(p) {
		return nil, apperror.NewNotFound("video", id.String())
	}
	return v, nil
}
