package video

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventDeleted   EventType = "deleted"
	EventCompleted EventType = "completed"
	EventProgress  EventType = "progress"
	EventError     EventType = "error"
	EventSync      EventType = "sync"
)

// SyncAction is a playback control relayed between viewers of one asset.
type SyncAction struct {
	Type string  `json:"type"`
	Time float64 `json:"time"`
}

// Event is the payload fanned out to observers. Build it through the
// constructors below so each variant carries exactly its own fields.
type Event struct {
	Type       EventType   `json:"type"`
	VideoID    uuid.UUID   `json:"video_id"`
	Video      *Video      `json:"video,omitempty"`
	Progress   *int        `json:"progress,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Sync       *SyncAction `json:"sync,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func newEvent(t EventType, id uuid.UUID) Event {
	return Event{Type: t, VideoID: id, OccurredAt: time.Now().UTC()}
}

func NewCreatedEvent(v *Video) Event {
	e := newEvent(EventCreated, v.ID)
	e.Video = v.Clone()
	return e
}

func NewUpdatedEvent(v *Video) Event {
	e := newEvent(EventUpdated, v.ID)
	e.Video = v.Clone()
	return e
}

func NewCompletedEvent(v *Video) Event {
	e := newEvent(EventCompleted, v.ID)
	e.Video = v.Clone()
	return e
}

func NewDeletedEvent(id uuid.UUID) Event {
	return newEvent(EventDeleted, id)
}

func NewProgressEvent(id uuid.UUID, progress int) Event {
	e := newEvent(EventProgress, id)
	e.Progress = &progress
	return e
}

func NewErrorEvent(id uuid.UUID, reason string) Event {
	e := newEvent(EventError, id)
	e.Reason = reason
	return e
}

func NewSyncEvent(id uuid.UUID, action SyncAction) Event {
	e := newEvent(EventSync, id)
	e.Sync = &action
	return e
}
