package stream

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/pddbwire/internal/transport"
	"github.com/danmuck/pddbwire/internal/transport/frame"
	"github.com/danmuck/pddbwire/internal/wire"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("stream: address required")
	ErrServiceRequired = errors.New("stream: service required")
	ErrConnectRejected = errors.New("stream: connect rejected")
	ErrClosed          = errors.New("stream: client closed")
	ErrUnexpectedReply = errors.New("stream: unexpected reply")
)

// Client is a transport.Transport over one stream connection. Transfers
// are serialized; each waits for its reply before the next is sent.
type Client struct {
	cfg        Config
	service    string
	connection transport.ConnectionID

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64
	err    error
}

var _ transport.Transport = (*Client)(nil)

// Dial connects to addr over TCP and opens service, retrying with backoff.
func Dial(ctx context.Context, addr, service string, cfg Config) (*Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.TLS.ValidateClient(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		conn, err := dial(ctx, addr, cfg)
		if err == nil {
			c, herr := NewClient(conn, service, cfg)
			if herr == nil {
				return c, nil
			}
			_ = conn.Close()
			err = herr
			if errors.Is(err, ErrConnectRejected) || errors.Is(err, ErrServiceRequired) {
				return nil, err
			}
		}
		log.Warn().Msgf("stream.Dial attempt=%d addr=%q service=%q err=%v", attempt, addr, service, err)
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, err
		}
		timer := time.NewTimer(NextBackoffDelay(cfg.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func dial(ctx context.Context, addr string, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if !cfg.TLS.Enabled {
		return raw, nil
	}
	tlsCfg, err := cfg.TLS.clientTLS(addr)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	conn := tls.Client(raw, tlsCfg)
	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}

// NewClient performs the connect handshake on an established conn.
func NewClient(conn net.Conn, service string, cfg Config) (*Client, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return nil, ErrServiceRequired
	}
	cfg = cfg.WithDefaults()

	_ = conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	if err := WriteHello(conn, Hello{Service: service}); err != nil {
		return nil, err
	}
	ack, err := ReadHelloAck(reader)
	if err != nil {
		return nil, err
	}
	if ack.Status != AckStatusAccepted {
		return nil, fmt.Errorf("%w: service=%q %s", ErrConnectRejected, service, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})

	log.Debug().Msgf("stream.Client connected service=%q conn=%d", service, ack.Connection)
	return &Client{
		cfg:        cfg,
		service:    service,
		connection: transport.ConnectionID(ack.Connection),
		conn:       conn,
		reader:     reader,
	}, nil
}

// Connection is the ID the server assigned to the opened service.
func (c *Client) Connection() transport.ConnectionID {
	return c.connection
}

func (c *Client) Transfer(buf *wire.Buffer, conn transport.ConnectionID, op transport.Opcode, mode transport.Mode) (*wire.Buffer, int, error) {
	var flags uint16
	switch mode {
	case transport.ModeLend:
		flags = frame.FlagLend
	case transport.ModeLendMut:
		flags = frame.FlagLendMut
	default:
		return nil, 0, fmt.Errorf("%w: %s", transport.ErrInvalidMode, mode)
	}
	pages := buf.Cap() / wire.PageSize
	if pages > int(c.cfg.Limits.MaxPages) {
		return nil, 0, fmt.Errorf("%w: %d", frame.ErrTooManyPages, pages)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, 0, c.err
	}

	c.nextID++
	id := c.nextID
	req := frame.Frame{
		Header: frame.Header{
			MessageID:  id,
			Opcode:     uint32(op),
			Connection: uint32(conn),
			Flags:      flags,
			Pages:      uint16(pages),
		},
		Payload: buf.Bytes(),
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := frame.WriteFrame(c.conn, req, c.cfg.Limits); err != nil {
		return nil, 0, c.fail(err)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	reply, err := frame.ReadFrame(c.reader, c.cfg.Limits)
	if err != nil {
		return nil, 0, c.fail(err)
	}
	if !reply.Has(frame.FlagResponse) || reply.Header.MessageID != id {
		return nil, 0, c.fail(fmt.Errorf("%w: message_id=%d want=%d", ErrUnexpectedReply, reply.Header.MessageID, id))
	}
	if reply.Has(frame.FlagError) {
		return nil, 0, fmt.Errorf("%w: %s", transport.ErrNotReturned, reply.Payload)
	}

	if mode == transport.ModeLend {
		return buf, 0, nil
	}
	if len(reply.Payload) > buf.Cap() {
		return nil, 0, c.fail(fmt.Errorf("%w: reply=%d cap=%d", ErrUnexpectedReply, len(reply.Payload), buf.Cap()))
	}
	raw := buf.Raw()
	n := copy(raw, reply.Payload)
	clear(raw[n:])
	if err := buf.SetLen(n); err != nil {
		return nil, 0, err
	}
	return buf, n, nil
}

// fail closes the connection; every later transfer reports the cause.
func (c *Client) fail(err error) error {
	c.err = fmt.Errorf("%w: %w: %w", transport.ErrNotReturned, ErrClosed, err)
	_ = c.conn.Close()
	log.Warn().Msgf("stream.Client service=%q failed err=%v", c.service, err)
	return c.err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil
	}
	c.err = fmt.Errorf("%w: %w", transport.ErrNotReturned, ErrClosed)
	return c.conn.Close()
}
