package video

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/pulse-media/internal/domain/user"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusDraft      Status = "draft"
	StatusLive       Status = "live"
	StatusRejected   Status = "rejected"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusProcessing, StatusDraft, StatusLive, StatusRejected:
		return st, nil
	}
	return "", ErrInvalidStatus
}

type VoteKind string

const (
	VoteLike    VoteKind = "like"
	VoteDislike VoteKind = "dislike"
	VoteNone    VoteKind = "none"
)

func ParseVoteKind(s string) (VoteKind, error) {
	switch k := VoteKind(strings.ToLower(strings.TrimSpace(s))); k {
	case VoteLike, VoteDislike:
		return k, nil
	}
	return "", ErrInvalidVote
}

const (
	// MaxInterimProgress caps progress reported while the prober is still running.
	MaxInterimProgress = 90
	ProgressDone       = 100
)

var (
	ErrVideoNotFound       = errors.New("video not found")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidVote         = errors.New("vote type must be like or dislike")
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrTransitionForbidden = errors.New("caller may not trigger this transition")
)

type Video struct {
	ID                 uuid.UUID   `json:"id"`
	OwnerID            uuid.UUID   `json:"owner_id"`
	StoragePath        string      `json:"storage_path"`
	MimeType           string      `json:"mime_type"`
	ByteSize           int64       `json:"byte_size"`
	OriginalName       string      `json:"original_name"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	ThumbnailPath      string      `json:"thumbnail_path"`
	DurationSeconds    float64     `json:"duration_seconds"`
	Status             Status      `json:"status"`
	ProcessingProgress int         `json:"processing_progress"`
	ViewCount          int64       `json:"view_count"`
	LikedBy            []uuid.UUID `json:"liked_by"`
	DislikedBy         []uuid.UUID `json:"disliked_by"`
	UploadedAt         time.Time   `json:"uploaded_at"`
	UpdatedAt          time.Time   `json:"updated_at"`

	// ProcessingStartedAt is set when a worker starts on the asset.
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
}

// ProcessingResult is what a successful probe contributes to the asset.
type ProcessingResult struct {
	DurationSeconds float64
	ThumbnailPath   string
	Title           string
}

// TitleFromFilename strips the final extension from an uploaded file name.
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if title == "" {
		return base
	}
	return title
}

// ClampInterimProgress bounds a prober percentage to [0, MaxInterimProgress].
func ClampInterimProgress(p int) int {
	return min(max(p, 0), MaxInterimProgress)
}

// ApplyVote toggles principal's membership in the set matching kind and
// removes it from the opposite set. The two sets never share a member.
func (v *Video) ApplyVote(principal uuid.UUID, kind VoteKind) {
	target, opposite := &v.LikedBy, &v.DislikedBy
	if kind == VoteDislike {
		target, opposite = &v.DislikedBy, &v.LikedBy
	}
	*opposite = slices.DeleteFunc(*opposite, func(id uuid.UUID) bool { return id == principal })
	if slices.Contains(*target, principal) {
		*target = slices.DeleteFunc(*target, func(id uuid.UUID) bool { return id == principal })
		return
	}
	*target = append(*target, principal)
}

func (v *Video) VoteOf(principal uuid.UUID) VoteKind {
	switch {
	case slices.Contains(v.LikedBy, principal):
		return VoteLike
	case slices.Contains(v.DislikedBy, principal):
		return VoteDislike
	}
	return VoteNone
}

// VisibleTo is the visibility projection: viewers see live assets, editors
// additionally see their own, admins see everything.
func (v *Video) VisibleTo(p user.Principal) bool {
	switch p.Role {
	case user.RoleAdmin:
		return true
	case user.RoleEditor:
		return v.Status == StatusLive || v.OwnerID == p.ID
	default:
		return v.Status == StatusLive
	}
}

func (v *Video) OwnedBy(id uuid.UUID) bool { return v.OwnerID == id }

// Clone returns a deep copy safe to hand out of a store.
func (v *Video) Clone() *Video {
	c := *v
	c.LikedBy = slices.Clone(v.LikedBy)
	c.DislikedBy = slices.Clone(v.DislikedBy)
	if v.ProcessingStartedAt != nil {
		t := *v.ProcessingStartedAt
		c.ProcessingStartedAt = &t
	}
	if c.LikedBy == nil {
		c.LikedBy = []uuid.UUID{}
	}
	if c.DislikedBy == nil {
		c.DislikedBy = []uuid.UUID{}
	}
	return &c
}

// ListFilter carries the requester identity the listing is projected for.
type ListFilter struct {
	Requester user.Principal
	Limit     int
	Offset    int
}

type Repository interface {
	Save(ctx context.Context, v *Video) error
	FindByID(ctx context.Context, id uuid.UUID) (*Video, error)
	List(ctx context.Context, filter ListFilter) ([]*Video, error)
	// UpdateDetails writes only the non-nil fields.
	UpdateDetails(ctx context.Context, id uuid.UUID, title, description *string) (*Video, error)
	// UpdateProgress raises processing_progress while the asset is still
	// processing; lower values are ignored.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	// CompleteProcessing moves a processing asset to draft in one write.
	CompleteProcessing(ctx context.Context, id uuid.UUID, res ProcessingResult) (*Video, error)
	// MarkProcessingStarted stamps processing_started_at on a processing asset.
	MarkProcessingStarted(ctx context.Context, id uuid.UUID) error
	// Transition sets status to `to` only if the current status is one of from.
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Video, error)
	ApplyVote(ctx context.Context, id uuid.UUID, principal uuid.UUID, kind VoteKind) (*Video, error)
	IncrementViews(ctx context.Context, id uuid.UUID) (*Video, error)
	Delete(ctx context.Context, id uuid.UUID) (*Video, error)
	// ListStaleProcessing returns processing assets whose work started, or
	// which were uploaded when never started, before the cutoff.
	ListStaleProcessing(ctx context.Context, before time.Time) ([]*Video, error)
}
