package config

import (
	"context"
	"fmt"

	"github.com/danmuck/pddbwire/internal/path"
	"github.com/danmuck/pddbwire/internal/pddb"
	"github.com/danmuck/pddbwire/internal/transport"
	"github.com/danmuck/pddbwire/internal/transport/stream"
	"github.com/danmuck/pddbwire/internal/wire"
)

// Parser resolves "::" paths to DefaultBasis; an empty DefaultBasis leaves
// the choice to the service.
func (c ClientConfig) Parser() path.Parser {
	name := c.DefaultBasis
	return path.Parser{DefaultBasis: func() (string, bool) {
		return name, name != ""
	}}
}

func (c ClientConfig) Options() []pddb.Option {
	return []pddb.Option{
		pddb.WithOpcodes(c.Opcodes),
		pddb.WithBufferSize(c.BufferPages * wire.PageSize),
		pddb.WithParser(c.Parser()),
	}
}

// NewClient builds a pddb client over an existing transport with metrics
// and logging attached.
func (c ClientConfig) NewClient(t transport.Transport, conn transport.ConnectionID) (*pddb.Client, error) {
	return pddb.New(transport.Instrument(t, c.Service), conn, c.Options()...)
}

// Dial connects to Address and returns a client plus the stream to close
// when done.
func (c ClientConfig) Dial(ctx context.Context) (*pddb.Client, *stream.Client, error) {
	if c.Address == "" {
		return nil, nil, fmt.Errorf("%w: address is required to dial", ErrInvalidConfig)
	}
	sc, err := stream.Dial(ctx, c.Address, c.Service, c.Stream)
	if err != nil {
		return nil, nil, err
	}
	client, err := c.NewClient(sc, sc.Connection())
	if err != nil {
		_ = sc.Close()
		return nil, nil, err
	}
	return client, sc, nil
}
