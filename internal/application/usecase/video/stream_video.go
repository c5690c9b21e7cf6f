package video

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/httprange"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

type StreamVideoUseCase struct {
	videoRepo video.Repository
	payloads  service.PayloadStore
	logger    logger.Logger
}

func NewStreamVideoUseCase(r video.Repository, p service.PayloadStore, log logger.Logger) *StreamVideoUseCase {
	return &StreamVideoUseCase{videoRepo: r, payloads: p, logger: log}
}

type StreamVideoInput struct {
	// Principal is nil for anonymous callers, who only reach live assets.
	Principal   *user.Principal
	VideoID     uuid.UUID
	RangeHeader string
}

// StreamVideoOutput hands an open, seekable body to the transport. The
// caller must Close Body.
type StreamVideoOutput struct {
	Video *video.Video
	Body  io.ReadSeekCloser
	Size  int64
	// Range is nil for a full-body response.
	Range *httprange.Range
}

// RangeNotSatisfiableError reports a rejected Range header together with
// the representation size needed for the 416 Content-Range.
type RangeNotSatisfiableError struct {
	Size int64
	Err  *apperror.AppError
}

func (e *RangeNotSatisfiableError) Error() string { return e.Err.Error() }
func (e *RangeNotSatisfiableError) Unwrap() error { return e.Err }

func (uc *StreamVideoUseCase) Execute(ctx context.Context, input StreamVideoInput) (*StreamVideoOutput, error) {
	ctx, span := tracer.Start(ctx, "StreamVideoUseCase.Execute")
	defer span.End()

	v, err := uc.videoRepo.FindByID(ctx, input.VideoID)
	if err != nil {
		return nil, err
	}
	visible := v.Status == video.StatusLive
	if input.Principal != nil {
		visible = v.VisibleTo(*input.Principal)
	}
	if !visible {
		return nil, apperror.NewNotFound("video", input.VideoID.String())
	}

	f, err := uc.payloads.Open(ctx, v.StoragePath)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			uc.logger.Warn("Source file missing for stream", zap.String("video_id", v.ID.String()))
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, apperror.NewInternal("failed to stat source file", err)
	}
	size := info.Size()

	if input.RangeHeader != "" {
		r, err := httprange.Parse(input.RangeHeader, size)
		if err != nil {
			_ = f.Close()
			return nil, &RangeNotSatisfiableError{
				Size: size,
				Err:  apperror.NewRangeNotSatisfiable(input.RangeHeader, err),
			}
		}
		if _, err := f.Seek(r.Start, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, apperror.NewInternal("failed to seek source file", err)
		}
		return &StreamVideoOutput{Video: v, Body: f, Size: size, Range: &r}, nil
	}

	// Only full-body requests count as a view; seeks arrive as ranges.
	counted, err := uc.videoRepo.IncrementViews(ctx, v.ID)
	if err != nil {
		_ = f.Close()
		span.RecordError(err)
		return nil, err
	}
	return &StreamVideoOutput{Video: counted, Body: f, Size: size}, nil
}
