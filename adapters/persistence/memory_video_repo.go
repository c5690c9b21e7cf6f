package persistence

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
)

// memoryVideoRepo keeps records in process memory. It backs local runs
// without a database and the use case tests; every mutation holds the lock
// for its whole read-modify-write.
type memoryVideoRepo struct {
	mu     sync.Mutex
	videos map[uuid.UUID]*video.Video
	now    func() time.Time
}

func NewMemoryVideoRepo() video.Repository {
	return &memoryVideoRepo{
		videos: make(map[uuid.UUID]*video.Video),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *memoryVideoRepo) Save(_ context.Context, v *video.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.videos[v.ID]; exists {
		return apperror.NewConflict("video conflict", fmt.Sprintf("video %s already exists", v.ID), nil)
	}
	r.videos[v.ID] = v.Clone()
	return nil
}

func (r *memoryVideoRepo) FindByID(_ context.Context, id uuid.UUID) (*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, apperror.NewNotFound("video", id.String())
	}
	return v.Clone(), nil
}

func (r *memoryVideoRepo) List(_ context.Context, filter video.ListFilter) ([]*video.Video, error) {
	r.mu.Lock()
	out := make([]*video.Video, 0, len(r.videos))
	for _, v := range r.videos {
		if v.VisibleTo(filter.Requester) {
			out = append(out, v.Clone())
		}
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *video.Video) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*video.Video{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// mutate applies fn to the stored record under the lock and returns a copy.
func (r *memoryVideoRepo) mutate(id uuid.UUID, fn func(v *video.Video) error) (*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, apperror.NewNotFound("video", id.String())
	}
	if err := fn(v); err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

func (r *memoryVideoRepo) UpdateDetails(_ context.Context, id uuid.UUID, title, description *string) (*video.Video, error) {
	return r.mutate(id, func(v *video.Video) error {
		if title != nil {
			v.Title = *title
		}
		if description != nil {
			v.Description = *description
		}
		v.UpdatedAt = r.now()
		return nil
	})
}

func (r *memoryVideoRepo) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	_, err := r.mutate(id, func(v *video.Video) error {
		if v.Status == video.StatusProcessing && progress > v.ProcessingProgress {
			v.ProcessingProgress = progress
			v.UpdatedAt = r.now()
		}
		return nil
	})
	return err
}

func statusConflict(v *video.Video) error {
	return apperror.NewConflict("invalid status transition",
		fmt.Sprintf("video %s is %s", v.ID, v.Status), video.ErrInvalidTransition)
}

func (r *memoryVideoRepo) CompleteProcessing(_ context.Context, id uuid.UUID, res video.ProcessingResult) (*video.Video, error) {
	return r.mutate(id, func(v *video.Video) error {
		if v.Status != video.StatusProcessing {
			return statusConflict(v)
		}
		v.DurationSeconds = res.DurationSeconds
		v.ThumbnailPath = res.ThumbnailPath
		v.Title = res.Title
		v.ProcessingProgress = video.ProgressDone
		v.Status = video.StatusDraft
		v.UpdatedAt = r.now()
		return nil
	})
}

func (r *memoryVideoRepo) Transition(_ context.Context, id uuid.UUID, from []video.Status, to video.Status) (*video.Video, error) {
	return r.mutate(id, func(v *video.Video) error {
		if !slices.Contains(from, v.Status) {
			return statusConflict(v)
		}
		v.Status = to
		v.UpdatedAt = r.now()
		return nil
	})
}

func (r *memoryVideoRepo) ApplyVote(_ context.Context, id uuid.UUID, principal uuid.UUID, kind video.VoteKind) (*video.Video, error) {
	return r.mutate(id, func(v *video.Video) error {
		v.ApplyVote(principal, kind)
		v.UpdatedAt = r.now()
		return nil
	})
}

func (r *memoryVideoRepo) IncrementViews(_ context.Context, id uuid.UUID) (*video.Video, error) {
	return r.mutate(id, func(v *video.Video) error {
		v.ViewCount++
		return nil
	})
}

func (r *memoryVideoRepo) Delete(_ context.Context, id uuid.UUID) (*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, apperror.NewNotFound("video", id.String())
	}
	delete(r.videos, id)
	return v, nil
}

func (r *memoryVideoRepo) MarkProcessingStarted(_ context.Context, id uuid.UUID) error {
	_, err := r.mutate(id, func(v *video.Video) error {
		if v.Status != video.StatusProcessing {
			return nil
		}
		now := r.now()
		v.ProcessingStartedAt = &now
		v.UpdatedAt = now
		return nil
	})
	return err
}

func (r *memoryVideoRepo) ListStaleProcessing(_ context.Context, before time.Time) ([]*video.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*video.Video, 0)
	for _, v := range r.videos {
		if v.Status == video.StatusProcessing && staleSince(v).Before(before) {
			out = append(out, v.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *video.Video) int { return staleSince(a).Compare(staleSince(b)) })
	return out, nil
}

func staleSince(v *video.Video) time.Time {
	if v.ProcessingStartedAt != nil {
		return *v.ProcessingStartedAt
	}
	return v.UploadedAt
}
