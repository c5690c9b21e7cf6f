package video

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
)

func TestStreamVideo_RangeDoesNotCountView(t *testing.T) {
	f := newFixture()
	v := f.seed(t, f.editor.ID, video.StatusLive, 4096)
	uc := NewStreamVideoUseCase(f.repo, f.payloads, f.log)

	out, err := uc.Execute(context.Background(), StreamVideoInput{Principal: &f.viewer, VideoID: v.ID, RangeHeader: "bytes=0-999"})
	require.NoError(t, err)
	defer out.Body.Close()

	require.NotNil(t, out.Range)
	assert.EqualValues(t, 0, out.Range.Start)
	assert.EqualValues(t, 999, out.Range.End)
	assert.EqualValues(t, 4096, out.Size)
	assert.Equal(t, "bytes 0-999/4096", out.Range.ContentRange(out.Size))

	body, err := io.ReadAll(io.LimitReader(out.Body, out.Range.Length()))
	require.NoError(t, err)
	assert.Len(t, body, 1000)
	assert.Equal(t, mp4Header, body[:len(mp4Header)])

	stored, err := f.repo.FindByID(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ViewCount)
}

func TestStreamVideo_FullBodyCountsOneView(t *testing.T) {
	f := newFixture()
	v := f.seed(t, f.editor.ID, video.StatusLive, 128)
	uc := NewStreamVideoUseCase(f.repo, f.payloads, f.log)

	out, err := uc.Execute(context.Background(), StreamVideoInput{VideoID: v.ID})
	require.NoError(t, err)
	defer out.Body.Close()

	assert.Nil(t, out.Range)
	assert.EqualValues(t, 1, out.Video.ViewCount)
	assert.EqualValues(t, 128, out.Size)
}

func TestStreamVideo_OffsetRangeSeeks(t *testing.T) {
	f := newFixture()
	v := f.seed(t, f.editor.ID, video.StatusLive, 64)
	uc := NewStreamVideoUseCase(f.repo, f.payloads, f.log)

	out, err := uc.Execute(context.Background(), StreamVideoInput{VideoID: v.ID, RangeHeader: "bytes=4-"})
	require.NoError(t, err)
	defer out.Body.Close()

	assert.EqualValues(t, 63, out.Range.End)
	head := make([]byte, 4)
	_, err = io.ReadFull(out.Body, head)
	require.NoError(t, err)
	assert.Equal(t, []byte("ftyp"), head)
}

func TestStreamVideo_BadRange(t *testing.T) {
	f := newFixture()
	v := f.seed(t, f.editor.ID, video.StatusLive, 100)
	uc := NewStreamVideoUseCase(f.repo, f.payloads, f.log)

	for _, header := range []string{"bytes=abc-", "bytes=500-600", "items=0-1", "bytes=-10"} {
		_, err := uc.Execute(context.Background(), StreamVideoInput{VideoID: v.ID, RangeHeader: header})
		var rangeErr *RangeNotSatisfiableError
		require.True(t, errors.As(err, &rangeErr), header)
		assert.EqualValues(t, 100, rangeErr.Size)
		assert.ErrorIs(t, err, apperror.ErrRangeNotSatisfiable)
	}
}

func TestStreamVideo_Visibility(t *testing.T) {
	f := newFixture()
	draft := f.seed(t, f.editor.ID, video.StatusDraft, 64)
	uc := NewStreamVideoUseCase(f.repo, f.payloads, f.log)
	ctx := context.Background()

	_, err := uc.Execute(ctx, StreamVideoInput{VideoID: draft.ID})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = uc.Execute(ctx, StreamVideoInput{Principal: &f.viewer, VideoID: draft.ID})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	owner := user.Principal{ID: f.editor.ID, Role: user.RoleEditor}
	out, err := uc.Execute(ctx, StreamVideoInput{Principal: &owner, VideoID: draft.ID})
	require.NoError(t, err)
	_ = out.Body.Close()
}

func TestStreamVideo_MissingFileIsNotFound(t *testing.T) {
	f := newFixture()
	v := f.seed(t, f.editor.ID, video.StatusLive, 64)
	require.NoError(t, f.payloads.Remove(context.Background(), v.StoragePath))

	_, err := NewStreamVideoUseCase(f.repo, f.payloads, f.log).Execute(context.Background(), StreamVideoInput{VideoID: v.ID})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	stored, err := f.repo.FindByID(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ViewCount)
}
