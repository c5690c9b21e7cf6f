package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
)

// VideoDTO is the public shape of an asset. Storage paths stay internal.
type VideoDTO struct {
	ID                 uuid.UUID      `json:"id"`
	OwnerID            uuid.UUID      `json:"owner_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	OriginalName       string         `json:"original_name"`
	MimeType           string         `json:"mime_type"`
	ByteSize           int64          `json:"byte_size"`
	ThumbnailPath      string         `json:"thumbnail_path"`
	DurationSeconds    float64        `json:"duration_seconds"`
	Status             video.Status   `json:"status"`
	ProcessingProgress int            `json:"processing_progress"`
	ViewCount          int64          `json:"view_count"`
	LikedBy            []uuid.UUID    `json:"liked_by"`
	DislikedBy         []uuid.UUID    `json:"disliked_by"`
	LikeCount          int            `json:"like_count"`
	DislikeCount       int            `json:"dislike_count"`
	MyVote             video.VoteKind `json:"my_vote,omitempty"`
	UploadedAt         time.Time      `json:"uploaded_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func ToVideoDTO(v *video.Video, viewer *user.Principal) VideoDTO {
	dto := VideoDTO{
		ID:                 v.ID,
		OwnerID:            v.OwnerID,
		Title:              v.Title,
		Description:        v.Description,
		OriginalName:       v.OriginalName,
		MimeType:           v.MimeType,
		ByteSize:           v.ByteSize,
		ThumbnailPath:      v.ThumbnailPath,
		DurationSeconds:    v.DurationSeconds,
		Status:             v.Status,
		ProcessingProgress: v.ProcessingProgress,
		ViewCount:          v.ViewCount,
		LikedBy:            v.LikedBy,
		DislikedBy:         v.DislikedBy,
		LikeCount:          len(v.LikedBy),
		DislikeCount:       len(v.DislikedBy),
		UploadedAt:         v.UploadedAt,
		UpdatedAt:          v.UpdatedAt,
	}
	if dto.LikedBy == nil {
		dto.LikedBy = []uuid.UUID{}
	}
	if dto.DislikedBy == nil {
		dto.DislikedBy = []uuid.UUID{}
	}
	if viewer != nil {
		dto.MyVote = v.VoteOf(viewer.ID)
	}
	return dto
}

func ToVideoDTOs(videos []*video.Video, viewer *user.Principal) []VideoDTO {
	out := make([]VideoDTO, len(videos))
	for i, v := range videos {
		out[i] = ToVideoDTO(v, viewer)
	}
	return out
}

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type VoteRequest struct {
	Type string `json:"type" binding:"required"`
}

type UpdateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type SyncRequest struct {
	Type string   `json:"type" binding:"required"`
	Time *float64 `json:"time" binding:"required"`
}

// EventDTO is what SSE subscribers receive.
type EventDTO struct {
	Type       video.EventType   `json:"type"`
	VideoID    uuid.UUID         `json:"video_id"`
	Video      *VideoDTO         `json:"video,omitempty"`
	Progress   *int              `json:"progress,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Sync       *video.SyncAction `json:"sync,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ToEventDTO projects an event for one subscriber. An asset the subscriber
// may not see is reduced to its id so clients re-fetch instead of reading
// hidden fields.
func ToEventDTO(evt video.Event, p user.Principal) EventDTO {
	dto := EventDTO{
		Type:       evt.Type,
		VideoID:    evt.VideoID,
		Progress:   evt.Progress,
		Reason:     evt.Reason,
		Sync:       evt.Sync,
		OccurredAt: evt.OccurredAt,
	}
	if evt.Video != nil && evt.Video.VisibleTo(p) {
		v := ToVideoDTO(evt.Video, &p)
		dto.Video = &v
	}
	return dto
}
