package transport

import (
	"errors"
	"fmt"

	"github.com/danmuck/pddbwire/internal/wire"
)

var (
	ErrNotReturned    = errors.New("transport: remote did not return the memory")
	ErrNoConnection   = errors.New("transport: unknown connection")
	ErrUnknownService = errors.New("transport: unknown service name")
	ErrInvalidMode    = errors.New("transport: invalid lend mode")
)

// ConnectionID identifies an established connection to a named service.
type ConnectionID uint32

// Opcode selects the remote operation. Values come from the server's table.
type Opcode uint32

// Mode is how the buffer is lent to the remote.
type Mode uint8

const (
	// ModeLendMut lets the remote overwrite the buffer; the caller must
	// decode the reply with a fresh Reader.
	ModeLendMut Mode = 1
	// ModeLend lets the remote read the buffer only.
	ModeLend Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeLendMut:
		return "lend-mut"
	case ModeLend:
		return "lend"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func (m Mode) Valid() bool {
	return m == ModeLendMut || m == ModeLend
}

// Transport exchanges one buffer with a remote endpoint. It returns the
// buffer (the same memory for ModeLendMut, now holding the reply) and the
// number of valid bytes the remote wrote.
type Transport interface {
	Transfer(buf *wire.Buffer, conn ConnectionID, op Opcode, mode Mode) (*wire.Buffer, int, error)
}

// TransferFunc adapts a plain function to Transport.
type TransferFunc func(buf *wire.Buffer, conn ConnectionID, op Opcode, mode Mode) (*wire.Buffer, int, error)

func (f TransferFunc) Transfer(buf *wire.Buffer, conn ConnectionID, op Opcode, mode Mode) (*wire.Buffer, int, error) {
	return f(buf, conn, op, mode)
}

// Handler is the remote side of a transfer. buf.Len() is the number of
// request bytes; for ModeLendMut the handler may rewrite buf and returns
// the reply's valid length.
type Handler interface {
	Serve(op Opcode, mode Mode, buf *wire.Buffer) (int, error)
}

type HandlerFunc func(op Opcode, mode Mode, buf *wire.Buffer) (int, error)

func (f HandlerFunc) Serve(op Opcode, mode Mode, buf *wire.Buffer) (int, error) {
	return f(op, mode, buf)
}
