package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ThumbnailsLocal, cfg.Thumbnails.Provider)
	assert.Equal(t, ProcessingLocal, cfg.Processing.Mode)
	assert.Equal(t, 2, cfg.Processing.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Processing.Timeout)
	assert.Equal(t, "ffprobe", cfg.Processing.FFprobePath)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("app:\n  port: \"8080\"\nprocessing:\n  workers: 4\n  timeout: 30s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PROCESSING_WORKERS", "6")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 6, cfg.Processing.Workers)
	assert.Equal(t, 30*time.Second, cfg.Processing.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_ProcessingMode(t *testing.T) {
	t.Setenv("PROCESSING_MODE", "worker")
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err, "worker mode without brokers")

	t.Setenv("KAFKA_BROKERS", "k1:9092")
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ProcessingWorker, cfg.Processing.Mode)

	t.Setenv("PROCESSING_MODE", "cluster")
	_, err = LoadConfig(t.TempDir())
	assert.Error(t, err)
}
