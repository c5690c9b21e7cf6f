package event

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

func TestHub_BroadcastsToAllSubscribers(t *testing.T) {
	hub := NewHub(4, logger.NewNopLogger())
	a, cancelA := hub.Subscribe(uuid.Nil)
	defer cancelA()
	b, cancelB := hub.Subscribe(uuid.Nil)
	defer cancelB()

	id := uuid.New()
	hub.Publish(context.Background(), video.NewProgressEvent(id, 40))

	for _, ch := range []<-chan video.Event{a, b} {
		evt := <-ch
		assert.Equal(t, video.EventProgress, evt.Type)
		require.NotNil(t, evt.Progress)
		assert.Equal(t, 40, *evt.Progress)
	}
}

func TestHub_FilterByVideo(t *testing.T) {
	hub := NewHub(4, logger.NewNopLogger())
	watched := uuid.New()
	ch, cancel := hub.Subscribe(watched)
	defer cancel()

	hub.Publish(context.Background(), video.NewDeletedEvent(uuid.New()))
	hub.Publish(context.Background(), video.NewDeletedEvent(watched))

	evt := <-ch
	assert.Equal(t, watched, evt.VideoID)
	assert.Len(t, ch, 0)
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1, logger.NewNopLogger())
	ch, cancel := hub.Subscribe(uuid.Nil)
	defer cancel()

	id := uuid.New()
	hub.Publish(context.Background(), video.NewProgressEvent(id, 10))
	hub.Publish(context.Background(), video.NewProgressEvent(id, 20))

	evt := <-ch
	assert.Equal(t, 10, *evt.Progress)
	assert.Len(t, ch, 0)
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := NewHub(1, logger.NewNopLogger())
	ch, cancel := hub.Subscribe(uuid.Nil)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount())

	hub.Publish(context.Background(), video.NewDeletedEvent(uuid.New()))
}

type recordingPublisher struct{ got []video.EventType }

func (r *recordingPublisher) Publish(_ context.Context, evt video.Event) {
	r.got = append(r.got, evt.Type)
}

func TestFanout(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{}
	Fanout{a, b}.Publish(context.Background(), video.NewErrorEvent(uuid.New(), "processing_failed"))

	assert.Equal(t, []video.EventType{video.EventError}, a.got)
	assert.Equal(t, []video.EventType{video.EventError}, b.got)
}
