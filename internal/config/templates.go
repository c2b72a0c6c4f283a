package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders DefaultClientConfig as a config file.
func Template() (string, error) {
	d := DefaultClientConfig()
	out, err := toml.Marshal(fileConfig{
		Service:            d.Service,
		Address:            "127.0.0.1:7400",
		BufferPages:        d.BufferPages,
		DefaultBasis:       d.DefaultBasis,
		ConnectTimeout:     d.Stream.ConnectTimeout.String(),
		HandshakeTimeout:   d.Stream.HandshakeTimeout.String(),
		ReadTimeout:        d.Stream.ReadTimeout.String(),
		WriteTimeout:       d.Stream.WriteTimeout.String(),
		MaxConnectAttempts: d.Stream.MaxConnectAttempts,
		MaxPages:           d.Stream.Limits.MaxPages,
		Opcodes:            d.Opcodes,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
