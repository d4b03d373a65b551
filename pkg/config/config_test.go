package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelight/tracelight/pkg/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture-hub.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"nats_url": "nats://localhost:4222",
		"stream_name": "capture-events",
		"subject_prefix": "capture.events",
		"bucket": "capture-objects",
		"listen_addr": ":8080",
		"broadcast_interval": "500ms",
		"flush_interval": "30s"
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "capture-events", cfg.StreamName)
	assert.Equal(t, "capture.events", cfg.SubjectPrefix)
	assert.Equal(t, "capture-objects", cfg.Bucket)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, models.Duration(500*time.Millisecond), cfg.BroadcastInterval)
	assert.Equal(t, models.Duration(30*time.Second), cfg.FlushInterval)
}

func TestLoadFromFile_IntervalDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"nats_url": "nats://localhost:4222",
		"stream_name": "capture-events",
		"subject_prefix": "capture.events",
		"listen_addr": ":8080"
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, models.Duration(DefaultBroadcastInterval), cfg.BroadcastInterval)
	assert.Equal(t, models.Duration(DefaultFlushInterval), cfg.FlushInterval)
}

func TestLoadFromFile_BucketOptional(t *testing.T) {
	path := writeConfigFile(t, `{
		"nats_url": "nats://localhost:4222",
		"stream_name": "capture-events",
		"subject_prefix": "capture.events",
		"listen_addr": ":8080"
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Bucket)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{"nats_url": `)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestValidate(t *testing.T) {
	valid := func() CaptureConfig {
		return CaptureConfig{
			NATSURL:       "nats://localhost:4222",
			StreamName:    "capture-events",
			SubjectPrefix: "capture.events",
			ListenAddr:    ":8080",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CaptureConfig)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*CaptureConfig) {},
		},
		{
			name:    "missing nats url",
			mutate:  func(c *CaptureConfig) { c.NATSURL = "" },
			wantErr: ErrMissingNATSURL,
		},
		{
			name:    "missing stream name",
			mutate:  func(c *CaptureConfig) { c.StreamName = "" },
			wantErr: ErrMissingStreamName,
		},
		{
			name:    "missing subject prefix",
			mutate:  func(c *CaptureConfig) { c.SubjectPrefix = "" },
			wantErr: ErrMissingSubjectPrefix,
		},
		{
			name:    "missing listen addr",
			mutate:  func(c *CaptureConfig) { c.ListenAddr = "" },
			wantErr: ErrMissingListenAddr,
		},
		{
			name:    "negative interval",
			mutate:  func(c *CaptureConfig) { c.BroadcastInterval = models.Duration(-time.Second) },
			wantErr: ErrNegativeInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	err := (&CaptureConfig{}).Validate()
	require.Error(t, err)

	for _, want := range []error{
		ErrMissingNATSURL, ErrMissingStreamName,
		ErrMissingSubjectPrefix, ErrMissingListenAddr,
	} {
		assert.ErrorIs(t, err, want)
	}
}
