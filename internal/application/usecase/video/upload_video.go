package video

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

// sniffLen matches the detection window of mimetype.
const sniffLen = 3072

// Scheduler queues background processing for an accepted upload.
type Scheduler interface {
	Schedule(id uuid.UUID)
}

type UploadVideoUseCase struct {
	videoRepo video.Repository
	payloads  service.PayloadStore
	publisher service.EventPublisher
	scheduler Scheduler
	logger    logger.Logger
}

func NewUploadVideoUseCase(
	r video.Repository,
	p service.PayloadStore,
	pub service.EventPublisher,
	s Scheduler,
	log logger.Logger,
) *UploadVideoUseCase {
	return &UploadVideoUseCase{videoRepo: r, payloads: p, publisher: pub, scheduler: s, logger: log}
}

type UploadVideoInput struct {
	Principal    user.Principal
	File         io.Reader
	Filename     string
	DeclaredType string
}

type UploadVideoOutput struct {
	Video *video.Video
}

func (uc *UploadVideoUseCase) Execute(ctx context.Context, input UploadVideoInput) (*UploadVideoOutput, error) {
	ctx, span := tracer.Start(ctx, "UploadVideoUseCase.Execute")
	defer span.End()

	if !input.Principal.CanUpload() {
		return nil, apperror.NewPermissionDenied("only admins and editors may upload")
	}
	if input.File == nil {
		return nil, apperror.NewInvalidInput("video file is required", nil)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(input.File, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, uploadReadError(err)
	}
	head = head[:n]
	if n == 0 {
		return nil, apperror.NewInvalidInput("video file is empty", nil)
	}

	mimeType, ext, err := resolveVideoType(head, input.DeclaredType, input.Filename)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	body := io.MultiReader(bytes.NewReader(head), input.File)
	storagePath, size, err := uc.payloads.Save(ctx, id.String(), ext, body)
	if err != nil {
		span.RecordError(err)
		return nil, uploadReadError(err)
	}

	now := time.Now().UTC()
	v := &video.Video{
		ID:                 id,
		OwnerID:            input.Principal.ID,
		StoragePath:        storagePath,
		MimeType:           mimeType,
		ByteSize:           size,
		OriginalName:       filepath.Base(input.Filename),
		Title:              video.TitleFromFilename(input.Filename),
		Status:             video.StatusProcessing,
		ProcessingProgress: 0,
		LikedBy:            []uuid.UUID{},
		DislikedBy:         []uuid.UUID{},
		UploadedAt:         now,
		UpdatedAt:          now,
	}

	if err := uc.videoRepo.Save(ctx, v); err != nil {
		span.RecordError(err)
		if rmErr := uc.payloads.Remove(context.WithoutCancel(ctx), storagePath); rmErr != nil {
			uc.logger.Warn("Failed to remove orphaned payload", zap.String("video_id", id.String()), zap.Error(rmErr))
		}
		return nil, err
	}

	uc.publisher.Publish(ctx, video.NewCreatedEvent(v))
	uc.scheduler.Schedule(v.ID)

	uc.logger.Info("Video accepted",
		zap.String("video_id", id.String()),
		zap.String("owner_id", v.OwnerID.String()),
		zap.String("mime_type", mimeType),
		zap.Int64("byte_size", size),
	)
	return &UploadVideoOutput{Video: v}, nil
}

// resolveVideoType trusts the sniffed content first. A client-declared video
// type is only honoured when sniffing is inconclusive.
func resolveVideoType(head []byte, declared, filename string) (string, string, error) {
	mt := mimetype.Detect(head)
	if strings.HasPrefix(mt.String(), "video/") {
		ext := mt.Extension()
		if ext == "" {
			ext = filepath.Ext(filename)
		}
		return baseType(mt.String()), ext, nil
	}

	declared = baseType(declared)
	if mt.Is("application/octet-stream") && strings.HasPrefix(declared, "video/") {
		return declared, filepath.Ext(filename), nil
	}
	return "", "", apperror.NewInvalidInput("file is not a supported video container ("+mt.String()+")", nil)
}

func baseType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

func uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.NewTooLarge("upload exceeds the configured limit", err)
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.NewInternal("failed to store upload", err)
}
