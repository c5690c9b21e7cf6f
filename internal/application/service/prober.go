package service

import (
	"context"
)

// ProbeResult is the metadata and still frame extracted from a source file.
type ProbeResult struct {
	DurationSeconds float64
	Thumbnail       []byte
}

// Prober inspects a media file. Implementations report interim percentages
// on progress (never closing it) and must honour ctx cancellation.
type Prober interface {
	Probe(ctx context.Context, absPath string, progress chan<- int) (*ProbeResult, error)
}

// ProbeFailure is implemented by prober errors that know why the input was
// refused. FailureReason is a short code safe to show to any observer.
type ProbeFailure interface {
	error
	FailureReason() string
}
