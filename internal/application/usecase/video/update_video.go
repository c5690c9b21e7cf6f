package video

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
)

type UpdateVideoUseCase struct {
	videoRepo video.Repository
	publisher service.EventPublisher
	logger    logger.Logger
}

func NewUpdateVideoUseCase(r video.Repository, pub service.EventPublisher, log logger.Logger) *UpdateVideoUseCase {
	return &UpdateVideoUseCase{videoRepo: r, publisher: pub, logger: log}
}

// UpdateVideoInput carries optional replacements; nil fields are kept.
type UpdateVideoInput struct {
	Principal   user.Principal
	VideoID     uuid.UUID
	Title       *string
	Description *string
}

func (uc *UpdateVideoUseCase) Execute(ctx context.Context, input UpdateVideoInput) (*video.Video, error) {
	ctx, span := tracer.Start(ctx, "UpdateVideoUseCase.Execute")
	defer span.End()

	if !input.Principal.HasRole(user.RoleAdmin, user.RoleEditor) {
		return nil, apperror.NewPermissionDenied("only admins and editors may edit videos")
	}

	current, err := findVisible(ctx, uc.videoRepo, input.Principal, input.VideoID)
	if err != nil {
		return nil, err
	}
	if !input.Principal.IsAdmin() && !current.OwnedBy(input.Principal.ID) {
		return nil, apperror.NewPermissionDenied("editors may only edit their own videos")
	}

	var title, description *string
	if input.Title != nil {
		t := strings.TrimSpace(*input.Title)
		if t == "" || utf8.RuneCountInString(t) > maxTitleLen {
			return nil, apperror.NewInvalidInput("title must be 1-200 characters", nil)
		}
		title = &t
	}
	if input.Description != nil {
		d := strings.TrimSpace(*input.Description)
		if utf8.RuneCountInString(d) > maxDescriptionLen {
			return nil, apperror.NewInvalidInput("description is too long", nil)
		}
		description = &d
	}

	updated, err := uc.videoRepo.UpdateDetails(ctx, input.VideoID, title, description)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	uc.publisher.Publish(ctx, video.NewUpdatedEvent(updated))
	return updated, nil
}
