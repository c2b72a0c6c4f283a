package pddb

import (
	"fmt"

	"github.com/danmuck/pddbwire/internal/observability"
	"github.com/danmuck/pddbwire/internal/path"
	"github.com/danmuck/pddbwire/internal/transport"
	"github.com/danmuck/pddbwire/internal/wire"
	"github.com/rs/zerolog/log"
)

// Fixed bytes around the payload of the largest read/write message:
// marker, tag, token, offset and the payload length prefix.
const ioOverhead = 4 + 4 + 12 + 8 + 4

// MaxPayload is the largest read or write chunk a buffer of size bytes can carry.
func MaxPayload(size int) int {
	return size - ioOverhead
}

// Client issues database operations over one transport connection.
type Client struct {
	t          transport.Transport
	conn       transport.ConnectionID
	ops        Opcodes
	bufferSize int
	parser     path.Parser
	keys       *registry
}

type Option func(*Client)

func WithOpcodes(ops Opcodes) Option {
	return func(c *Client) { c.ops = ops }
}

// WithBufferSize sets the request buffer size; it must be a whole number of pages.
func WithBufferSize(n int) Option {
	return func(c *Client) { c.bufferSize = n }
}

// WithParser sets the parser used for path arguments, usually to supply a
// default basis name.
func WithParser(p path.Parser) Option {
	return func(c *Client) { c.parser = p }
}

func New(t transport.Transport, conn transport.ConnectionID, opts ...Option) (*Client, error) {
	c := &Client{
		t:          t,
		conn:       conn,
		ops:        DefaultOpcodes(),
		bufferSize: wire.PageSize,
		keys:       newRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidInput)
	}
	if c.bufferSize <= 0 || c.bufferSize%wire.PageSize != 0 {
		return nil, fmt.Errorf("%w: %d is not a whole number of pages", ErrBufferSize, c.bufferSize)
	}
	if err := c.ops.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Outstanding lists the keys opened through c and not yet released.
func (c *Client) Outstanding() []OpenKey {
	return c.keys.list()
}

// BufferSize is the size of every request buffer this client allocates.
func (c *Client) BufferSize() int {
	return c.bufferSize
}

func (c *Client) opcode(f Family) transport.Opcode {
	switch f {
	case FamilyListBases:
		return c.ops.ListBases
	case FamilyListDicts:
		return c.ops.ListDicts
	case FamilyListKeys:
		return c.ops.ListKeys
	case FamilyListPath:
		return c.ops.ListPath
	case FamilyOpen:
		return c.ops.Open
	case FamilyRead:
		return c.ops.Read
	case FamilyWrite:
		return c.ops.Write
	case FamilyFlush:
		return c.ops.Flush
	default:
		return c.ops.Release
	}
}

// call encodes a request with build, transfers it and returns a reader
// positioned after an OK status byte.
func (c *Client) call(f Family, build func(w *wire.Writer)) (*wire.Reader, error) {
	buf, err := wire.NewBuffer(c.bufferSize)
	if err != nil {
		return nil, err
	}
	w := wire.NewTaggedWriter(buf, f.Request)
	if build != nil {
		build(w)
	}
	if buf, err = w.Finish(); err != nil {
		return nil, fmt.Errorf("pddb: %s: encode request: %w", f.Name, err)
	}

	out, n, err := c.t.Transfer(buf, c.conn, c.opcode(f), transport.ModeLendMut)
	if err != nil {
		return nil, fmt.Errorf("pddb: %s: %w", f.Name, err)
	}
	r, err := wire.NewTaggedReader(out, f.Response)
	if err != nil {
		return nil, fmt.Errorf("pddb: %s: decode response: %w", f.Name, err)
	}
	code, err := r.GetU8()
	if err != nil {
		return nil, fmt.Errorf("pddb: %s: decode status: %w", f.Name, err)
	}
	st := ParseStatus(code)
	observability.RecordStatus(f.Name, st.String())
	if st != StatusOK {
		log.Debug().Msgf("pddb.Client op=%s status=%s raw=%d", f.Name, st, code)
		return nil, &StatusError{Op: f.Name, Status: st}
	}
	log.Trace().Msgf("pddb.Client op=%s valid=%d", f.Name, n)
	return r, nil
}
