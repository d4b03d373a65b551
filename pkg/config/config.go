// Package config loads and validates capture-hub configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tracelight/tracelight/pkg/models"
)

var (
	ErrMissingNATSURL       = errors.New("nats_url is required")
	ErrMissingStreamName    = errors.New("stream_name is required")
	ErrMissingSubjectPrefix = errors.New("subject_prefix is required")
	ErrMissingListenAddr    = errors.New("listen_addr is required")
	ErrNegativeInterval     = errors.New("intervals must be positive")
	ErrInvalidJSON          = errors.New("failed to unmarshal JSON configuration")
)

// Defaults applied when the file leaves tuning knobs unset.
const (
	DefaultBroadcastInterval = time.Second
	DefaultFlushInterval     = 10 * time.Second
)

// CaptureConfig holds everything a capture hub needs to run one session.
// Bucket is optional: without it the object-store sink is disabled and
// events flow to the durable stream and live clients only.
type CaptureConfig struct {
	NATSURL           string          `json:"nats_url"`
	StreamName        string          `json:"stream_name"`
	SubjectPrefix     string          `json:"subject_prefix"`
	Bucket            string          `json:"bucket,omitempty"`
	ListenAddr        string          `json:"listen_addr"`
	BroadcastInterval models.Duration `json:"broadcast_interval,omitempty"`
	FlushInterval     models.Duration `json:"flush_interval,omitempty"`
}

// Validate checks the configuration for required fields.
func (c *CaptureConfig) Validate() error {
	var errs []error

	if c.NATSURL == "" {
		errs = append(errs, ErrMissingNATSURL)
	}

	if c.StreamName == "" {
		errs = append(errs, ErrMissingStreamName)
	}

	if c.SubjectPrefix == "" {
		errs = append(errs, ErrMissingSubjectPrefix)
	}

	if c.ListenAddr == "" {
		errs = append(errs, ErrMissingListenAddr)
	}

	if c.BroadcastInterval < 0 || c.FlushInterval < 0 {
		errs = append(errs, ErrNegativeInterval)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// LoadFromFile reads, parses and validates a JSON configuration file,
// filling interval defaults for unset fields.
func LoadFromFile(path string) (*CaptureConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg CaptureConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Join(ErrInvalidJSON, err)
	}

	if cfg.BroadcastInterval == 0 {
		cfg.BroadcastInterval = models.Duration(DefaultBroadcastInterval)
	}

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = models.Duration(DefaultFlushInterval)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
