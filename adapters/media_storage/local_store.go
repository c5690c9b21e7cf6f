package media_storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/pkg/apperror"
)

// LocalStore keeps source payloads and locally served thumbnails under a
// single root directory.
type LocalStore struct {
	fs   afero.Fs
	root string
}

// NewLocalStore roots a store at dir, creating it when missing.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := afero.NewOsFs().MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{fs: afero.NewBasePathFs(afero.NewOsFs(), abs), root: abs}, nil
}

// NewMemLocalStore is backed by an in-memory filesystem. AbsPath still
// resolves under root, so it only suits code that never shells out.
func NewMemLocalStore(root string) *LocalStore {
	return &LocalStore{fs: afero.NewMemMapFs(), root: root}
}

var _ service.PayloadStore = (*LocalStore)(nil)

func cleanKey(p string) (string, error) {
	clean := filepath.Clean("/" + p)
	if clean == "/" || strings.Contains(p, "..") {
		return "", apperror.NewInvalidInput(fmt.Sprintf("invalid storage path %q", p), nil)
	}
	return clean, nil
}

func (s *LocalStore) Save(_ context.Context, key, ext string, r io.Reader) (string, int64, error) {
	if key == "" {
		key = uuid.NewString()
	}
	name := key + strings.ToLower(ext)
	p, err := cleanKey(name)
	if err != nil {
		return "", 0, err
	}

	f, err := s.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, apperror.NewInternal("failed to create payload file", err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = s.fs.Remove(p)
		return "", 0, errors.Join(copyErr, closeErr)
	}
	return strings.TrimPrefix(p, "/"), n, nil
}

func (s *LocalStore) Open(_ context.Context, storagePath string) (afero.File, error) {
	p, err := cleanKey(storagePath)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.NewNotFound("payload", storagePath)
		}
		return nil, apperror.NewInternal("failed to open payload", err)
	}
	return f, nil
}

func (s *LocalStore) AbsPath(storagePath string) (string, error) {
	p, err := cleanKey(storagePath)
	if err != nil {
		return "", err
	}
	if _, err := s.fs.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperror.NewNotFound("payload", storagePath)
		}
		return "", apperror.NewInternal("failed to stat payload", err)
	}
	return filepath.Join(s.root, filepath.FromSlash(p)), nil
}

// Remove treats an already missing file as removed.
func (s *LocalStore) Remove(_ context.Context, storagePath string) error {
	p, err := cleanKey(storagePath)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperror.NewInternal("failed to remove payload", err)
	}
	return nil
}

// LocalThumbnails writes thumbnails next to payloads and serves them from
// the API under /api/thumbnails/:id.
type LocalThumbnails struct {
	store *LocalStore
}

func NewLocalThumbnails(store *LocalStore) *LocalThumbnails {
	return &LocalThumbnails{store: store}
}

var _ service.ThumbnailStore = (*LocalThumbnails)(nil)

func thumbName(videoID string) string { return "thumb-" + videoID + ".png" }

func (t *LocalThumbnails) Put(_ context.Context, videoID string, data []byte) (string, error) {
	p, err := cleanKey(thumbName(videoID))
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(t.store.fs, p, data, 0o644); err != nil {
		return "", apperror.NewInternal("failed to write thumbnail", err)
	}
	return "/api/thumbnails/" + videoID, nil
}

func (t *LocalThumbnails) Delete(ctx context.Context, videoID string) error {
	return t.store.Remove(ctx, thumbName(videoID))
}

// Open returns the stored PNG for videoID.
func (t *LocalThumbnails) Open(ctx context.Context, videoID string) (afero.File, error) {
	return t.store.Open(ctx, thumbName(videoID))
}
