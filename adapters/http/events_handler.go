package http

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/adapters/event"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const defaultKeepAlive = 25 * time.Second

type EventsHandler struct {
	hub       *event.Hub
	keepAlive time.Duration
	logger    logger.Logger
}

func NewEventsHandler(hub *event.Hub, keepAlive time.Duration, log logger.Logger) *EventsHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &EventsHandler{hub: hub, keepAlive: keepAlive, logger: log}
}

// Stream pushes video events as server-sent events until the client leaves.
// ?video_id= narrows the stream to one asset.
func (h *EventsHandler) Stream(c *gin.Context) {
	p, _ := GetPrincipal(c)

	filter := uuid.Nil
	if raw := c.Query("video_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.Error(apperror.NewInvalidInput("invalid video_id", err))
			return
		}
		filter = id
	}

	events, cancel := h.hub.Subscribe(filter)
	defer cancel()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.logger.Debug("Event subscriber connected", zap.String("principal_id", p.ID.String()), zap.Int("subscribers", h.hub.SubscriberCount()))
	c.SSEvent("ready", gin.H{"video_id": filter})
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(evt.Type), ToEventDTO(evt, p))
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
