package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	videoUC "github.com/khoahotran/pulse-media/internal/application/usecase/video"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/httprange"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

// ThumbnailReader serves thumbnails kept by the local provider.
type ThumbnailReader interface {
	Open(ctx context.Context, videoID string) (afero.File, error)
}

type StreamHandler struct {
	streamUC *videoUC.StreamVideoUseCase
	getUC    *videoUC.GetVideoUseCase
	thumbs   ThumbnailReader
	logger   logger.Logger
}

func NewStreamHandler(
	streamUC *videoUC.StreamVideoUseCase,
	getUC *videoUC.GetVideoUseCase,
	thumbs ThumbnailReader,
	log logger.Logger,
) *StreamHandler {
	return &StreamHandler{streamUC: streamUC, getUC: getUC, thumbs: thumbs, logger: log}
}

func (h *StreamHandler) Stream(c *gin.Context) {
	id, ok := videoIDParam(c)
	if !ok {
		return
	}

	input := videoUC.StreamVideoInput{VideoID: id, RangeHeader: c.GetHeader("Range")}
	if p, ok := GetPrincipal(c); ok {
		input.Principal = &p
	}

	out, err := h.streamUC.Execute(c.Request.Context(), input)
	if err != nil {
		var rangeErr *videoUC.RangeNotSatisfiableError
		if errors.As(err, &rangeErr) {
			c.Header("Accept-Ranges", "bytes")
			c.Header("Content-Range", httprange.UnsatisfiedContentRange(rangeErr.Size))
		}
		c.Error(err)
		return
	}
	defer out.Body.Close()

	headers := map[string]string{"Accept-Ranges": "bytes"}
	if out.Range == nil {
		c.DataFromReader(http.StatusOK, out.Size, out.Video.MimeType, out.Body, headers)
		return
	}

	headers["Content-Range"] = out.Range.ContentRange(out.Size)
	length := out.Range.Length()
	c.DataFromReader(http.StatusPartialContent, length, out.Video.MimeType, io.LimitReader(out.Body, length), headers)
}

// Thumbnail follows the visibility of its asset; only live thumbnails are
// publicly cacheable.
func (h *StreamHandler) Thumbnail(c *gin.Context) {
	p, _ := GetPrincipal(c)
	id, ok := videoIDParam(c)
	if !ok {
		return
	}

	v, err := h.getUC.Execute(c.Request.Context(), videoUC.GetVideoInput{Principal: p, VideoID: id})
	if err != nil {
		c.Error(err)
		return
	}

	f, err := h.thumbs.Open(c.Request.Context(), id.String())
	if err != nil {
		c.Error(err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.logger.Warn("Failed to stat thumbnail", zap.String("video_id", id.String()), zap.Error(err))
		c.Error(apperror.NewInternal("failed to stat thumbnail", err))
		return
	}
	cacheControl := "private, no-store"
	if v.Status == video.StatusLive {
		cacheControl = "public, max-age=" + strconv.Itoa(24*60*60)
	}
	c.DataFromReader(http.StatusOK, info.Size(), "image/png", f, map[string]string{
		"Cache-Control": cacheControl,
	})
}
