package video

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/pulse-media/adapters/event"
	"github.com/khoahotran/pulse-media/adapters/media_storage"
	"github.com/khoahotran/pulse-media/adapters/persistence"
	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

// mp4Header is enough for content sniffing to report video/mp4.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '1',
}

func mp4Payload(size int) []byte {
	out := make([]byte, size)
	copy(out, mp4Header)
	return out
}

type fakeProber struct {
	steps    []int
	result   *service.ProbeResult
	err      error
	panicMsg string
	hook     func()
	block    chan struct{}

	mu      sync.Mutex
	running int
	maxSeen int
	calls   int
}

func (f *fakeProber) Probe(ctx context.Context, _ string, progress chan<- int) (*service.ProbeResult, error) {
	f.mu.Lock()
	f.calls++
	f.running++
	f.maxSeen = max(f.maxSeen, f.running)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	for _, s := range f.steps {
		progress <- s
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.hook != nil {
		f.hook()
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result, f.err
}

func okResult() *service.ProbeResult {
	return &service.ProbeResult{DurationSeconds: 10, Thumbnail: []byte{0x89, 'P', 'N', 'G'}}
}

type recordingScheduler struct{ ids []uuid.UUID }

func (s *recordingScheduler) Schedule(id uuid.UUID) { s.ids = append(s.ids, id) }

type fixture struct {
	repo     video.Repository
	payloads *media_storage.LocalStore
	thumbs   *media_storage.LocalThumbnails
	hub      *event.Hub
	lock     service.ProcessingLock
	log      logger.Logger

	admin  user.Principal
	editor user.Principal
	viewer user.Principal
}

func newFixture() *fixture {
	payloads := media_storage.NewMemLocalStore("/data")
	return &fixture{
		repo:     persistence.NewMemoryVideoRepo(),
		payloads: payloads,
		thumbs:   media_storage.NewLocalThumbnails(payloads),
		hub:      event.NewHub(64, logger.NewNopLogger()),
		lock:     persistence.NewMemoryProcessingLock(),
		log:      logger.NewNopLogger(),
		admin:    user.Principal{ID: uuid.New(), Role: user.RoleAdmin},
		editor:   user.Principal{ID: uuid.New(), Role: user.RoleEditor},
		viewer:   user.Principal{ID: uuid.New(), Role: user.RoleViewer},
	}
}

func (f *fixture) processUseCase(p service.Prober) *ProcessVideoUseCase {
	return NewProcessVideoUseCase(f.repo, f.payloads, f.thumbs, p, f.lock, f.hub, time.Minute, f.log)
}

// seed stores a payload and a record owned by owner in the given status.
func (f *fixture) seed(t *testing.T, owner uuid.UUID, status video.Status, size int) *video.Video {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	path, n, err := f.payloads.Save(ctx, id.String(), ".mp4", bytes.NewReader(mp4Payload(size)))
	require.NoError(t, err)

	now := time.Now().UTC()
	v := &video.Video{
		ID:           id,
		OwnerID:      owner,
		StoragePath:  path,
		MimeType:     "video/mp4",
		ByteSize:     n,
		OriginalName: "sample.mp4",
		Title:        "sample",
		Status:       status,
		UploadedAt:   now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.repo.Save(ctx, v))
	return v
}

// drain collects whatever is buffered on ch without blocking.
func drain(ch <-chan video.Event) []video.Event {
	var out []video.Event
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(evts []video.Event) []video.EventType {
	out := make([]video.EventType, len(evts))
	for i, e := range evts {
		out[i] = e.Type
	}
	return out
}
