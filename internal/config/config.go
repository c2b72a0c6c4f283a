package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/pddbwire/internal/pddb"
	"github.com/danmuck/pddbwire/internal/transport/stream"
)

var ErrInvalidConfig = errors.New("config: invalid client config")

// ClientConfig is everything needed to reach a database service.
type ClientConfig struct {
	Service string
	// Address of a stream server; empty means the caller supplies a transport.
	Address      string
	BufferPages  int
	DefaultBasis string
	Opcodes      pddb.Opcodes
	Stream       stream.Config
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Service:      "pddb",
		BufferPages:  1,
		DefaultBasis: ".System",
		Opcodes:      pddb.DefaultOpcodes(),
		Stream:       stream.DefaultConfig(),
	}
}

type fileConfig struct {
	Service            string       `toml:"service"`
	Address            string       `toml:"address"`
	BufferPages        int          `toml:"buffer_pages"`
	DefaultBasis       string       `toml:"default_basis"`
	ConnectTimeout     string       `toml:"connect_timeout"`
	HandshakeTimeout   string       `toml:"handshake_timeout"`
	ReadTimeout        string       `toml:"read_timeout"`
	WriteTimeout       string       `toml:"write_timeout"`
	MaxConnectAttempts int          `toml:"max_connect_attempts"`
	MaxPages           uint16       `toml:"max_pages"`
	Opcodes            pddb.Opcodes `toml:"opcodes"`
	TLS                fileTLS      `toml:"tls"`
}

type fileTLS struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Load reads a TOML file and applies every key it defines on top of
// DefaultClientConfig. Unknown keys are rejected.
func Load(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	raw := fileConfig{Opcodes: cfg.Opcodes}
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return ClientConfig{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	if meta.IsDefined("service") {
		cfg.Service = strings.TrimSpace(raw.Service)
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("buffer_pages") {
		cfg.BufferPages = raw.BufferPages
	}
	if meta.IsDefined("default_basis") {
		cfg.DefaultBasis = strings.TrimSpace(raw.DefaultBasis)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Stream.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Stream.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Stream.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Stream.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return ClientConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Stream.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("max_pages") {
		cfg.Stream.Limits.MaxPages = raw.MaxPages
	}
	if meta.IsDefined("opcodes") {
		cfg.Opcodes = raw.Opcodes
	}
	if meta.IsDefined("tls") {
		cfg.Stream.TLS = stream.TLSConfig{
			Enabled:            raw.TLS.Enabled,
			Mutual:             raw.TLS.Mutual,
			CAFile:             strings.TrimSpace(raw.TLS.CAFile),
			CertFile:           strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.TLS.KeyFile),
			ServerName:         strings.TrimSpace(raw.TLS.ServerName),
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
		}
	}

	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Service) == "" {
		return fmt.Errorf("%w: service is required", ErrInvalidConfig)
	}
	if c.BufferPages <= 0 {
		return fmt.Errorf("%w: buffer_pages must be > 0", ErrInvalidConfig)
	}
	if c.Address != "" && c.BufferPages > int(c.Stream.Limits.MaxPages) {
		return fmt.Errorf("%w: buffer_pages %d exceeds max_pages %d", ErrInvalidConfig, c.BufferPages, c.Stream.Limits.MaxPages)
	}
	if strings.Contains(c.DefaultBasis, ":") {
		return fmt.Errorf("%w: default_basis %q contains a separator", ErrInvalidConfig, c.DefaultBasis)
	}
	if err := c.Opcodes.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Stream.TLS.ValidateClient(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
