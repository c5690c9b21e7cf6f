package video

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

var syncActions = map[string]bool{"play": true, "pause": true, "seek": true}

// SyncVideoUseCase relays a playback action to everyone watching an asset.
type SyncVideoUseCase struct {
	videoRepo video.Repository
	publisher service.EventPublisher
	logger    logger.Logger
}

func NewSyncVideoUseCase(r video.Repository, pub service.EventPublisher, log logger.Logger) *SyncVideoUseCase {
	return &SyncVideoUseCase{videoRepo: r, publisher: pub, logger: log}
}

type SyncVideoInput struct {
	Principal user.Principal
	VideoID   uuid.UUID
	Type      string
	Time      float64
}

func (uc *SyncVideoUseCase) Execute(ctx context.Context, input SyncVideoInput) error {
	if !syncActions[input.Type] {
		return apperror.NewInvalidInput("type must be play, pause or seek", nil)
	}
	if input.Time < 0 || math.IsNaN(input.Time) || math.IsInf(input.Time, 0) {
		return apperror.NewInvalidInput("time must be a non-negative number of seconds", nil)
	}
	if _, err := findVisible(ctx, uc.videoRepo, input.Principal, input.VideoID); err != nil {
		return err
	}

	uc.publisher.Publish(ctx, video.NewSyncEvent(input.VideoID, video.SyncAction{Type: input.Type, Time: input.Time}))
	return nil
}
