package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/khoahotran/pulse-media/adapters/event"
	"github.com/khoahotran/pulse-media/adapters/media_storage"
	"github.com/khoahotran/pulse-media/adapters/persistence"
	"github.com/khoahotran/pulse-media/internal/application/service"
	videoUC "github.com/khoahotran/pulse-media/internal/application/usecase/video"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/auth"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

var sampleMP4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '1',
}

type stubProber struct{}

func (stubProber) Probe(_ context.Context, _ string, progress chan<- int) (*service.ProbeResult, error) {
	progress <- 50
	return &service.ProbeResult{DurationSeconds: 10, Thumbnail: []byte{0x89, 'P', 'N', 'G'}}, nil
}

type queueScheduler struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (s *queueScheduler) Schedule(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
}

type VideoE2ETestSuite struct {
	suite.Suite
	Router    *gin.Engine
	repo      video.Repository
	payloads  *media_storage.LocalStore
	process   *videoUC.ProcessVideoUseCase
	scheduler *queueScheduler
	jwtSvc    *auth.JWTService

	admin  user.Principal
	editor user.Principal
	viewer user.Principal
}

func (s *VideoE2ETestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	appLogger := logger.NewNopLogger()

	s.repo = persistence.NewMemoryVideoRepo()
	s.payloads = media_storage.NewMemLocalStore("/data")
	thumbs := media_storage.NewLocalThumbnails(s.payloads)
	hub := event.NewHub(64, appLogger)
	s.scheduler = &queueScheduler{}
	s.jwtSvc = auth.NewJWTService("e2e-secret", time.Hour)

	s.process = videoUC.NewProcessVideoUseCase(s.repo, s.payloads, thumbs, stubProber{},
		persistence.NewMemoryProcessingLock(), hub, time.Minute, appLogger)

	videoHandler := NewVideoHandler(
		videoUC.NewUploadVideoUseCase(s.repo, s.payloads, hub, s.scheduler, appLogger),
		videoUC.NewListVideosUseCase(s.repo, appLogger),
		videoUC.NewGetVideoUseCase(s.repo, appLogger),
		videoUC.NewUpdateVideoUseCase(s.repo, hub, appLogger),
		videoUC.NewChangeStatusUseCase(s.repo, hub, appLogger),
		videoUC.NewVoteVideoUseCase(s.repo, hub, appLogger),
		videoUC.NewDeleteVideoUseCase(s.repo, s.payloads, thumbs, hub, appLogger),
		videoUC.NewSyncVideoUseCase(s.repo, hub, appLogger),
		1<<20,
		appLogger,
	)
	streamHandler := NewStreamHandler(
		videoUC.NewStreamVideoUseCase(s.repo, s.payloads, appLogger),
		videoUC.NewGetVideoUseCase(s.repo, appLogger),
		thumbs,
		appLogger,
	)
	eventsHandler := NewEventsHandler(hub, time.Minute, appLogger)

	s.Router = NewRouter(Handlers{
		Video:           videoHandler,
		Stream:          streamHandler,
		Events:          eventsHandler,
		ServeThumbnails: true,
	}, s.jwtSvc, appLogger)

	s.admin = user.Principal{ID: uuid.New(), Role: user.RoleAdmin}
	s.editor = user.Principal{ID: uuid.New(), Role: user.RoleEditor}
	s.viewer = user.Principal{ID: uuid.New(), Role: user.RoleViewer}
}

func TestVideoE2E(t *testing.T) {
	suite.Run(t, new(VideoE2ETestSuite))
}

func (s *VideoE2ETestSuite) token(p user.Principal) string {
	tok, err := s.jwtSvc.GenerateToken(p)
	s.Require().NoError(err)
	return tok
}

func (s *VideoE2ETestSuite) do(method, path string, p *user.Principal, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*p))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func (s *VideoE2ETestSuite) doJSON(method, path string, p *user.Principal, payload any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(payload)
	return s.do(method, path, p, bytes.NewReader(b), map[string]string{"Content-Type": "application/json"})
}

func (s *VideoE2ETestSuite) upload(p *user.Principal, field, filename string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "ignored")
	part, err := mw.CreateFormFile(field, filename)
	s.Require().NoError(err)
	_, _ = part.Write(content)
	s.Require().NoError(mw.Close())
	return s.do(http.MethodPost, "/api/videos", p, &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
}

func (s *VideoE2ETestSuite) decodeVideo(w *httptest.ResponseRecorder) VideoDTO {
	var dto VideoDTO
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &dto))
	return dto
}

func samplePayload(size int) []byte {
	out := make([]byte, size)
	copy(out, sampleMP4Header)
	for i := len(sampleMP4Header); i < size; i++ {
		out[i] = byte(i % 251)
	}
	return out
}

// uploadProcessed uploads as the editor and runs processing to completion.
func (s *VideoE2ETestSuite) uploadProcessed(size int) VideoDTO {
	w := s.upload(&s.editor, "video", "sample.mp4", samplePayload(size))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	created := s.decodeVideo(w)
	s.Require().NoError(s.process.Execute(context.Background(), created.ID))
	return created
}

func (s *VideoE2ETestSuite) TestUploadProcessModerateStream() {
	payload := samplePayload(5000)

	w := s.upload(&s.editor, "video", "sample.mp4", payload)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	created := s.decodeVideo(w)
	s.Equal(video.StatusProcessing, created.Status)
	s.Equal(0, created.ProcessingProgress)
	s.Equal("video/mp4", created.MimeType)
	s.Equal(int64(len(payload)), created.ByteSize)
	s.Equal([]uuid.UUID{created.ID}, s.scheduler.ids)

	s.Require().NoError(s.process.Execute(context.Background(), created.ID))

	w = s.do(http.MethodGet, "/api/videos/"+created.ID.String(), &s.editor, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	processed := s.decodeVideo(w)
	s.Equal(video.StatusDraft, processed.Status)
	s.InDelta(10, processed.DurationSeconds, 0.5)
	s.NotEmpty(processed.ThumbnailPath)

	w = s.do(http.MethodGet, "/api/videos", &s.viewer, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`[]`, w.Body.String())

	w = s.doJSON(http.MethodPatch, "/api/videos/"+created.ID.String()+"/status", &s.admin, gin.H{"status": "live"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(video.StatusLive, s.decodeVideo(w).Status)

	w = s.do(http.MethodGet, "/api/videos", &s.viewer, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var listed []VideoDTO
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &listed))
	s.Require().Len(listed, 1)
	s.Equal(created.ID, listed[0].ID)

	streamPath := "/api/videos/" + created.ID.String() + "/stream"
	w = s.do(http.MethodGet, streamPath, &s.viewer, nil, map[string]string{"Range": "bytes=0-999"})
	s.Require().Equal(http.StatusPartialContent, w.Code)
	s.Equal("bytes 0-999/5000", w.Header().Get("Content-Range"))
	s.Equal("bytes", w.Header().Get("Accept-Ranges"))
	s.Equal("1000", w.Header().Get("Content-Length"))
	s.Equal("video/mp4", w.Header().Get("Content-Type"))
	s.Equal(payload[:1000], w.Body.Bytes())

	w = s.do(http.MethodGet, "/api/videos/"+created.ID.String(), &s.admin, nil, nil)
	s.Equal(int64(0), s.decodeVideo(w).ViewCount)

	w = s.do(http.MethodGet, streamPath, nil, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(payload, w.Body.Bytes())

	w = s.do(http.MethodGet, "/api/videos/"+created.ID.String(), &s.admin, nil, nil)
	s.Equal(int64(1), s.decodeVideo(w).ViewCount)
}

func (s *VideoE2ETestSuite) TestUploadRejections() {
	w := s.upload(nil, "video", "sample.mp4", samplePayload(100))
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.upload(&s.viewer, "video", "sample.mp4", samplePayload(100))
	s.Equal(http.StatusForbidden, w.Code)

	w = s.upload(&s.editor, "video", "notes.txt", []byte("just some plain text, definitely not a video"))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(w.Body.String(), "invalid_input")

	w = s.upload(&s.editor, "attachment", "sample.mp4", samplePayload(100))
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.upload(&s.editor, "file", "sample.mp4", samplePayload(2<<20))
	s.Equal(http.StatusRequestEntityTooLarge, w.Code)
}

func (s *VideoE2ETestSuite) TestStreamErrors() {
	created := s.uploadProcessed(2000)
	streamPath := "/api/videos/" + created.ID.String() + "/stream"

	w := s.do(http.MethodGet, streamPath, nil, nil, nil)
	s.Equal(http.StatusNotFound, w.Code, "anonymous callers only reach live assets")

	w = s.do(http.MethodGet, streamPath, &s.admin, nil, map[string]string{"Range": "bytes=5000-"})
	s.Equal(http.StatusRequestedRangeNotSatisfiable, w.Code)
	s.Equal("bytes */2000", w.Header().Get("Content-Range"))

	w = s.do(http.MethodGet, streamPath, &s.admin, nil, map[string]string{"Range": "bytes=-100"})
	s.Equal(http.StatusRequestedRangeNotSatisfiable, w.Code)

	w = s.do(http.MethodGet, streamPath, &s.admin, nil, map[string]string{"Range": "bytes=1500-99999"})
	s.Require().Equal(http.StatusPartialContent, w.Code)
	s.Equal("bytes 1500-1999/2000", w.Header().Get("Content-Range"))

	v, err := s.repo.FindByID(context.Background(), created.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.payloads.Remove(context.Background(), v.StoragePath))
	w = s.do(http.MethodGet, streamPath, &s.admin, nil, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/videos/not-a-uuid/stream", &s.admin, nil, nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *VideoE2ETestSuite) TestAccessTokenQueryParam() {
	created := s.uploadProcessed(500)
	path := "/api/videos/" + created.ID.String() + "/stream?access_token=" + s.token(s.editor)
	w := s.do(http.MethodGet, path, nil, nil, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/videos", nil, nil, map[string]string{"Authorization": "Bearer garbage"})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *VideoE2ETestSuite) TestModerationRules() {
	created := s.uploadProcessed(500)
	statusPath := "/api/videos/" + created.ID.String() + "/status"

	w := s.doJSON(http.MethodPatch, statusPath, &s.viewer, gin.H{"status": "live"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.doJSON(http.MethodPatch, statusPath, &s.editor, gin.H{"status": "live"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.doJSON(http.MethodPatch, statusPath, &s.admin, gin.H{"status": "processing"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.doJSON(http.MethodPatch, statusPath, &s.admin, gin.H{"status": "published"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPatch, statusPath, &s.admin, gin.H{"status": "rejected"})
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.doJSON(http.MethodPatch, statusPath, &s.admin, gin.H{"status": "live"})
	s.Equal(http.StatusConflict, w.Code)
}

func (s *VideoE2ETestSuite) TestVoteToggle() {
	created := s.uploadProcessed(500)
	s.Require().Equal(http.StatusOK,
		s.doJSON(http.MethodPatch, "/api/videos/"+created.ID.String()+"/status", &s.admin, gin.H{"status": "live"}).Code)
	votePath := "/api/videos/" + created.ID.String() + "/vote"

	w := s.doJSON(http.MethodPatch, votePath, &s.viewer, gin.H{"type": "like"})
	s.Require().Equal(http.StatusOK, w.Code)
	dto := s.decodeVideo(w)
	s.Equal([]uuid.UUID{s.viewer.ID}, dto.LikedBy)
	s.Equal(video.VoteLike, dto.MyVote)

	w = s.doJSON(http.MethodPatch, votePath, &s.viewer, gin.H{"type": "dislike"})
	dto = s.decodeVideo(w)
	s.Empty(dto.LikedBy)
	s.Equal([]uuid.UUID{s.viewer.ID}, dto.DislikedBy)

	w = s.doJSON(http.MethodPatch, votePath, &s.viewer, gin.H{"type": "dislike"})
	dto = s.decodeVideo(w)
	s.Empty(dto.DislikedBy)
	s.Equal(0, dto.DislikeCount)

	w = s.doJSON(http.MethodPatch, votePath, &s.viewer, gin.H{"type": "love"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPatch, votePath, nil, gin.H{"type": "like"})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *VideoE2ETestSuite) TestThumbnailFollowsVisibility() {
	created := s.uploadProcessed(500)
	thumbPath := "/api/thumbnails/" + created.ID.String()

	w := s.do(http.MethodGet, thumbPath, nil, nil, nil)
	s.Equal(http.StatusNotFound, w.Code)
	w = s.do(http.MethodGet, thumbPath, &s.viewer, nil, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, thumbPath, &s.editor, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("image/png", w.Header().Get("Content-Type"))
	s.Equal("private, no-store", w.Header().Get("Cache-Control"))

	w = s.do(http.MethodGet, thumbPath+"?access_token="+s.token(s.editor), nil, nil, nil)
	s.Equal(http.StatusOK, w.Code)

	s.Require().Equal(http.StatusOK,
		s.doJSON(http.MethodPatch, "/api/videos/"+created.ID.String()+"/status", &s.admin, gin.H{"status": "live"}).Code)

	w = s.do(http.MethodGet, thumbPath, nil, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("public, max-age=86400", w.Header().Get("Cache-Control"))
}

func (s *VideoE2ETestSuite) TestDeleteAndThumbnail() {
	created := s.uploadProcessed(500)

	w := s.do(http.MethodGet, "/api/thumbnails/"+created.ID.String(), &s.editor, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/api/videos/"+created.ID.String(), &s.viewer, nil, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodDelete, "/api/videos/"+created.ID.String(), &s.editor, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"success":true}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/thumbnails/"+created.ID.String(), &s.editor, nil, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, "/api/videos/"+uuid.NewString(), &s.admin, nil, nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *VideoE2ETestSuite) TestUpdateDetails() {
	created := s.uploadProcessed(500)
	path := "/api/videos/" + created.ID.String()

	w := s.doJSON(http.MethodPatch, path, &s.editor, gin.H{"title": "Holiday", "description": "beach"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	dto := s.decodeVideo(w)
	s.Equal("Holiday", dto.Title)
	s.Equal("beach", dto.Description)

	w = s.doJSON(http.MethodPatch, path, &s.editor, gin.H{"title": ""})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *VideoE2ETestSuite) TestMe() {
	w := s.do(http.MethodGet, "/api/auth/me", &s.editor, nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"id":"`+s.editor.ID.String()+`","role":"editor"}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/auth/me", nil, nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/health", nil, nil, nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *VideoE2ETestSuite) TestEventStream() {
	created := s.uploadProcessed(500)
	s.Require().Equal(http.StatusOK,
		s.doJSON(http.MethodPatch, "/api/videos/"+created.ID.String()+"/status", &s.admin, gin.H{"status": "live"}).Code)

	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/events?video_id="+created.ID.String()+"&access_token="+s.token(s.viewer), nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		s.FailNow("stream ended before " + prefix)
		return ""
	}
	waitFor("event:ready")

	w := s.doJSON(http.MethodPost, "/api/videos/"+created.ID.String()+"/sync", &s.viewer, gin.H{"type": "seek", "time": 12.5})
	s.Require().Equal(http.StatusAccepted, w.Code)

	waitFor("event:sync")
	data := strings.TrimPrefix(waitFor("data:"), "data:")
	var evt EventDTO
	s.Require().NoError(json.Unmarshal([]byte(data), &evt))
	s.Equal(created.ID, evt.VideoID)
	s.Require().NotNil(evt.Sync)
	s.InDelta(12.5, evt.Sync.Time, 0.001)
}
