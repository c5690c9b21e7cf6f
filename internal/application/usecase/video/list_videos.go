package video

import (
	"context"

	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const maxListLimit = 100

type ListVideosUseCase struct {
	videoRepo video.Repository
	logger    logger.Logger
}

func NewListVideosUseCase(r video.Repository, log logger.Logger) *ListVideosUseCase {
	return &ListVideosUseCase{videoRepo: r, logger: log}
}

type ListVideosInput struct {
	Principal user.Principal
	Limit     int
	Offset    int
}

type ListVideosOutput struct {
	Videos []*video.Video
	Limit  int
	Offset int
}

func (uc *ListVideosUseCase) Execute(ctx context.Context, input ListVideosInput) (*ListVideosOutput, error) {
	ctx, span := tracer.Start(ctx, "ListVideosUseCase.Execute")
	defer span.End()

	if input.Limit < 0 || input.Offset < 0 {
		return nil, apperror.NewInvalidInput("limit and offset must not be negative", nil)
	}
	if input.Limit > maxListLimit {
		input.Limit = maxListLimit
	}

	videos, err := uc.videoRepo.List(ctx, video.ListFilter{
		Requester: input.Principal,
		Limit:     input.Limit,
		Offset:    input.Offset,
	})
	if err != nil {
		span.RecordError(err)
		uc.logger.Error("Failed to list videos", err, zap.String("role", string(input.Principal.Role)))
		return nil, err
	}

	return &ListVideosOutput{Videos: videos, Limit: input.Limit, Offset: input.Offset}, nil
}
