package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/pddbwire/internal/transport/frame"
)

var ErrInvalidConfig = errors.New("stream: invalid config")

// BackoffConfig defines dial retry behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines stream timeouts, retry and frame limits.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Backoff          BackoffConfig
	// MaxConnectAttempts <= 0 retries until the context ends.
	MaxConnectAttempts int
	Limits             frame.Limits
	TLS                TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		MaxConnectAttempts: 5,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = d.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = d.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = d.Backoff.MaxDelay
	}
	if c.Limits.MaxPages == 0 {
		c.Limits = d.Limits
	}
	return c
}

func (c Config) Validate() error {
	if c.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("%w: backoff multiplier %.2f < 1", ErrInvalidConfig, c.Backoff.Multiplier)
	}
	if c.Backoff.MaxDelay > 0 && c.Backoff.MaxDelay < c.Backoff.InitialDelay {
		return fmt.Errorf("%w: backoff max_delay < initial_delay", ErrInvalidConfig)
	}
	if c.Limits.MaxPages == 0 {
		return fmt.Errorf("%w: max_pages must be > 0", ErrInvalidConfig)
	}
	return nil
}
