package event

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const DefaultSubscriberBuffer = 64

// Hub is the in-process broadcast channel behind the SSE endpoint. There is
// no backlog: a subscriber whose buffer is full misses the event and must
// reconcile by re-fetching.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
	closed bool
	logger logger.Logger
}

type subscription struct {
	ch     chan video.Event
	filter uuid.UUID
}

func NewHub(buffer int, log logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{subs: make(map[uint64]*subscription), buffer: buffer, logger: log}
}

// Subscribe registers an observer. A non-nil filter restricts delivery to
// events about that video. The returned cancel func closes the channel.
func (h *Hub) Subscribe(filter uuid.UUID) (<-chan video.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscription{ch: make(chan video.Event, h.buffer), filter: filter}
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
}

func (h *Hub) Publish(_ context.Context, evt video.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.filter != uuid.Nil && sub.filter != evt.VideoID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			h.logger.Debug("Dropped event for slow subscriber",
				zap.String("video_id", evt.VideoID.String()), zap.String("event_type", string(evt.Type)))
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
	h.closed = true
}

// Fanout delivers each event to every publisher in order.
type Fanout []service.EventPublisher

func (f Fanout) Publish(ctx context.Context, evt video.Event) {
	for _, p := range f {
		p.Publish(ctx, evt)
	}
}
