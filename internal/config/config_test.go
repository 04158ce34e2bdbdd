package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, 10, cfg.Limits.MaxFiles)
	assert.Equal(t, ByteSize(25<<20), cfg.Limits.MaxFileBytes)
	assert.Equal(t, 30*time.Second, cfg.Limits.Timeout)
	assert.False(t, cfg.Limits.RequireFile)
	assert.Contains(t, cfg.AllowedTypes, "application/pdf")
	assert.Len(t, cfg.SigningSecret, 32)
	assert.Equal(t, "streamdrop-raw", cfg.S3.RawBucket)
	assert.Equal(t, "upload.events", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streamdrop.yaml")
	body := `
address: ":9090"
signingSecret: from-file
limits:
  maxFiles: 3
  maxFileBytes: 2MB
  maxFieldBytes: "4096"
  timeout: 5s
  requireFile: true
s3:
  endpoint: minio:9000
  rawBucket: raw
kafka:
  brokers: [kafka-1:9092, kafka-2:9092]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("STREAMDROP_S3_ENDPOINT", "override:9000")
	t.Setenv("STREAMDROP_MAX_FILES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, []byte("from-file"), cfg.SigningSecret)
	assert.Equal(t, 7, cfg.Limits.MaxFiles)
	assert.Equal(t, ByteSize(2<<20), cfg.Limits.MaxFileBytes)
	assert.Equal(t, ByteSize(4096), cfg.Limits.MaxFieldBytes)
	assert.Equal(t, 5*time.Second, cfg.Limits.Timeout)
	assert.True(t, cfg.Limits.RequireFile)
	assert.Equal(t, "override:9000", cfg.S3.Endpoint)
	assert.Equal(t, "raw", cfg.S3.RawBucket)
	assert.Equal(t, "streamdrop-processed", cfg.S3.ProcessedBucket)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: \":7000\"\n"), 0o600))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Address)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("STREAMDROP_MAX_FILE_BYTES", "lots")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAMDROP_MAX_FILE_BYTES")
}

func TestEnvLists(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("STREAMDROP_ALLOWED_TYPES", " text/plain , ,image/png")
	t.Setenv("STREAMDROP_WORKERS", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"text/plain", "image/png"}, cfg.AllowedTypes)
	assert.Equal(t, 2, cfg.ProcessingPool)
}

func TestForm(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("STREAMDROP_MAX_FILE_BYTES", "1KiB")
	t.Setenv("STREAMDROP_REQUIRE_FILE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	form := cfg.Form()
	assert.Equal(t, int64(1024), form.MaxFileSize)
	assert.Equal(t, 10, form.MaxFileCount)
	assert.True(t, form.RequireFile)
	assert.Equal(t, int64(2*1024*10+1<<20), cfg.MaxRequestBytes())
}

func TestMaxRequestBytesOverride(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("STREAMDROP_MAX_REQUEST_BYTES", "64MiB")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(64<<20), cfg.MaxRequestBytes())

	t.Setenv("STREAMDROP_MAX_REQUEST_BYTES", "lots")
	_, err = Load("")
	assert.ErrorContains(t, err, "STREAMDROP_MAX_REQUEST_BYTES")
}
