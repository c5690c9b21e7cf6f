package video

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
)

func TestUploadVideo_AcceptsSniffedVideo(t *testing.T) {
	f := newFixture()
	sched := &recordingScheduler{}
	uc := NewUploadVideoUseCase(f.repo, f.payloads, f.hub, sched, f.log)
	events, cancel := f.hub.Subscribe(uuid.Nil)
	defer cancel()

	out, err := uc.Execute(context.Background(), UploadVideoInput{
		Principal:    f.editor,
		File:         bytes.NewReader(mp4Payload(5000)),
		Filename:     "holiday.clip.mp4",
		DeclaredType: "application/octet-stream",
	})
	require.NoError(t, err)

	v := out.Video
	assert.Equal(t, video.StatusProcessing, v.Status)
	assert.Equal(t, 0, v.ProcessingProgress)
	assert.Equal(t, "video/mp4", v.MimeType)
	assert.EqualValues(t, 5000, v.ByteSize)
	assert.Equal(t, "holiday.clip", v.Title)
	assert.Equal(t, f.editor.ID, v.OwnerID)
	assert.Equal(t, []uuid.UUID{v.ID}, sched.ids)

	stored, err := f.repo.FindByID(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.StoragePath, stored.StoragePath)

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, video.EventCreated, got[0].Type)
	assert.Equal(t, v.ID, got[0].VideoID)
}

func TestUploadVideo_Rejections(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name      string
		principal user.Principal
		body      []byte
		wantErr   error
	}{
		{"viewer", f.viewer, mp4Payload(100), apperror.ErrPermission},
		{"text declared as video", f.editor, []byte("just some text, not a video"), apperror.ErrInvalidInput},
		{"empty file", f.editor, nil, apperror.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &recordingScheduler{}
			uc := NewUploadVideoUseCase(f.repo, f.payloads, f.hub, sched, f.log)

			_, err := uc.Execute(context.Background(), UploadVideoInput{
				Principal:    tt.principal,
				File:         bytes.NewReader(tt.body),
				Filename:     "clip.mp4",
				DeclaredType: "video/mp4",
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, sched.ids)
		})
	}
}

func TestResolveVideoType_InconclusiveSniffNeedsDeclaredVideo(t *testing.T) {
	head := bytes.Repeat([]byte{0x00, 0x13, 0xff, 0x42}, 100)

	mt, ext, err := resolveVideoType(head, "video/x-custom; codecs=foo", "clip.raw")
	require.NoError(t, err)
	assert.Equal(t, "video/x-custom", mt)
	assert.Equal(t, ".raw", ext)

	_, _, err = resolveVideoType(head, "image/png", "clip.raw")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestUploadVideo_SizeLimitIsTooLarge(t *testing.T) {
	f := newFixture()
	sched := &recordingScheduler{}
	uc := NewUploadVideoUseCase(f.repo, f.payloads, f.hub, sched, f.log)

	limited := http.MaxBytesReader(httptest.NewRecorder(), io.NopCloser(bytes.NewReader(mp4Payload(10000))), 4096)
	_, err := uc.Execute(context.Background(), UploadVideoInput{
		Principal: f.admin,
		File:      limited,
		Filename:  "big.mp4",
	})
	assert.ErrorIs(t, err, apperror.ErrTooLarge)
	assert.Empty(t, sched.ids)

	all, err := f.repo.List(context.Background(), video.ListFilter{Requester: f.admin})
	require.NoError(t, err)
	assert.Empty(t, all)
}
