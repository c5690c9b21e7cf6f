package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/pulse-media/internal/domain/video"
)

// EventPublisher broadcasts video events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, evt video.Event)
}

// ProcessingLock grants exclusive processing of one asset across instances.
type ProcessingLock interface {
	Acquire(ctx context.Context, id uuid.UUID, ttl time.Duration) (release func(), ok bool, err error)
	// Held reports whether some instance currently holds the lock for id.
	Held(ctx context.Context, id uuid.UUID) (bool, error)
}
