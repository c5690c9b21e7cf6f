package service

import (
	"context"
	"io"

	"github.com/spf13/afero"
)

// PayloadStore keeps uploaded source files on a local, seekable filesystem
// so that the prober can read them by path and streams can seek.
type PayloadStore interface {
	// Save writes r under a fresh name derived from key and returns the
	// relative storage path and the number of bytes written.
	Save(ctx context.Context, key string, ext string, r io.Reader) (string, int64, error)
	Open(ctx context.Context, storagePath string) (afero.File, error)
	AbsPath(storagePath string) (string, error)
	Remove(ctx context.Context, storagePath string) error
}

// ThumbnailStore publishes the still frame extracted during processing.
// Put returns the path or URL clients use to fetch it.
type ThumbnailStore interface {
	Put(ctx context.Context, videoID string, data []byte) (string, error)
	Delete(ctx context.Context, videoID string) error
}
