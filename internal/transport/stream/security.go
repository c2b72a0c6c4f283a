package stream

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	ErrTLSRequired             = errors.New("stream: tls required")
	ErrTLSCertFileRequired     = errors.New("stream: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("stream: tls key file required")
	ErrTLSCAFileRequired       = errors.New("stream: tls ca file required")
	ErrTLSInsecureSkipNotAllow = errors.New("stream: insecure skip verify not allowed with mutual tls")
)

// TLSConfig secures the stream. Mutual requires both sides to present
// certificates signed by CAFile.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

func (c TLSConfig) ValidateClient() error {
	if c.Mutual && !c.Enabled {
		return ErrTLSRequired
	}
	if !c.Enabled {
		return nil
	}
	if c.Mutual && c.InsecureSkipVerify {
		return ErrTLSInsecureSkipNotAllow
	}
	if strings.TrimSpace(c.CAFile) == "" && !c.InsecureSkipVerify {
		return ErrTLSCAFileRequired
	}
	if c.Mutual {
		if strings.TrimSpace(c.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}

func (c TLSConfig) ValidateServer() error {
	if c.Mutual && !c.Enabled {
		return ErrTLSRequired
	}
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.CertFile) == "" {
		return ErrTLSCertFileRequired
	}
	if strings.TrimSpace(c.KeyFile) == "" {
		return ErrTLSKeyFileRequired
	}
	if c.Mutual && strings.TrimSpace(c.CAFile) == "" {
		return ErrTLSCAFileRequired
	}
	return nil
}

// clientTLS builds the dial-side config; addr supplies the server name
// when none is configured.
func (c TLSConfig) clientTLS(addr string) (*tls.Config, error) {
	if err := c.ValidateClient(); err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	serverName := strings.TrimSpace(c.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if strings.TrimSpace(c.CAFile) != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if c.Mutual {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func (c TLSConfig) serverTLS() (*tls.Config, error) {
	if err := c.ValidateServer(); err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if c.Mutual {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("stream: parse tls ca bundle: %s", path)
	}
	return pool, nil
}
