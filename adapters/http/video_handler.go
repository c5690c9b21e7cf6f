package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	videoUC "github.com/khoahotran/pulse-media/internal/application/usecase/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

// uploadFields are the multipart field names accepted for the video file.
var uploadFields = map[string]bool{"video": true, "file": true}

type VideoHandler struct {
	uploadUC       *videoUC.UploadVideoUseCase
	listUC         *videoUC.ListVideosUseCase
	getUC          *videoUC.GetVideoUseCase
	updateUC       *videoUC.UpdateVideoUseCase
	changeStatusUC *videoUC.ChangeStatusUseCase
	voteUC         *videoUC.VoteVideoUseCase
	deleteUC       *videoUC.DeleteVideoUseCase
	syncUC         *videoUC.SyncVideoUseCase
	maxUploadBytes int64
	logger         logger.Logger
}

func NewVideoHandler(
	uploadUC *videoUC.UploadVideoUseCase,
	listUC *videoUC.ListVideosUseCase,
	getUC *videoUC.GetVideoUseCase,
	updateUC *videoUC.UpdateVideoUseCase,
	changeStatusUC *videoUC.ChangeStatusUseCase,
	voteUC *videoUC.VoteVideoUseCase,
	deleteUC *videoUC.DeleteVideoUseCase,
	syncUC *videoUC.SyncVideoUseCase,
	maxUploadBytes int64,
	log logger.Logger,
) *VideoHandler {
	return &VideoHandler{
		uploadUC:       uploadUC,
		listUC:         listUC,
		getUC:          getUC,
		updateUC:       updateUC,
		changeStatusUC: changeStatusUC,
		voteUC:         voteUC,
		deleteUC:       deleteUC,
		syncUC:         syncUC,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
	}
}

func videoIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(apperror.NewInvalidInput("invalid video ID", err))
		return uuid.Nil, false
	}
	return id, true
}

// Upload streams the multipart file part straight to storage instead of
// buffering the form.
func (h *VideoHandler) Upload(c *gin.Context) {
	p, ok := GetPrincipal(c)
	if !ok {
		c.Error(apperror.NewUnauthorized("principal not found in context", nil))
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	mr, err := c.Request.MultipartReader()
	if err != nil {
		c.Error(apperror.NewInvalidInput("multipart/form-data body is required", err))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			c.Error(apperror.NewInvalidInput("'video' file field is required", nil))
			return
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.Error(apperror.NewTooLarge("upload exceeds the configured limit", err))
				return
			}
			c.Error(apperror.NewInvalidInput("malformed multipart body", err))
			return
		}
		if !uploadFields[part.FormName()] || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		output, err := h.uploadUC.Execute(c.Request.Context(), videoUC.UploadVideoInput{
			Principal:    p,
			File:         part,
			Filename:     part.FileName(),
			DeclaredType: part.Header.Get("Content-Type"),
		})
		_ = part.Close()
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusCreated, ToVideoDTO(output.Video, &p))
		return
	}
}

func (h *VideoHandler) List(c *gin.Context) {
	p, _ := GetPrincipal(c)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.Error(apperror.NewInvalidInput("limit must be an integer", err))
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.Error(apperror.NewInvalidInput("offset must be an integer", err))
		return
	}

	output, err := h.listUC.Execute(c.Request.Context(), videoUC.ListVideosInput{Principal: p, Limit: limit, Offset: offset})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ToVideoDTOs(output.Videos, viewer(c)))
}

func (h *VideoHandler) Get(c *gin.Context) {
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
	c.JSON(http.StatusOK, ToVideoDTO(v, viewer(c)))
}

func (h *VideoHandler) Update(c *gin.Context) {
	p, _ := GetPrincipal(c)
	id, ok := videoIDParam(c)
	if !ok {
		return
	}

	var req UpdateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("invalid request data", err))
		return
	}

	v, err := h.updateUC.Execute(c.Request.Context(), videoUC.UpdateVideoInput{
		Principal:   p,
		VideoID:     id,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ToVideoDTO(v, &p))
}

func (h *VideoHandler) ChangeStatus(c *gin.Context) {
	p, _ := GetPrincipal(c)
	id, ok := videoIDParam(c)
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("'status' is required", err))
		return
	}

	v, err := h.changeStatusUC.Execute(c.Request.Context(), videoUC.ChangeStatusInput{Principal: p, VideoID: id, Status: req.Status})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ToVideoDTO(v, &p))
}

func (h *VideoHandler) Vote(c *gin.Context) {
	p, _ := GetPrincipal(c)
	id, ok := videoIDParam(c)
	if !ok {
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("'type' is required", err))
		return
	}

	v, err := h.voteUC.Execute(c.Request.Context(), videoUC.VoteVideoInput{Principal: p, VideoID: id, Type: req.Type})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ToVideoDTO(v, &p))
}

func (h *VideoHandler) Delete(c *gin.Context) {
	p, _ := GetPrincipal(c)
	id, ok := videoIDParam(c)
	if !ok {
		return
	}

	if err := h.deleteUC.Execute(c.Request.Context(), videoUC.DeleteVideoInput{Principal: p, VideoID: id}); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *VideoHandler) Sync(c *gin.Context) {
	p, _ := GetPrincipal(c)
	id, ok := videoIDParam(c)
	if !ok {
		return
	}

	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("'type' and 'time' are required", err))
		return
	}

	err := h.syncUC.Execute(c.Request.Context(), videoUC.SyncVideoInput{Principal: p, VideoID: id, Type: req.Type, Time: *req.Time})
	if err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}
