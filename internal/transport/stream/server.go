package stream

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/danmuck/pddbwire/internal/observability"
	"github.com/danmuck/pddbwire/internal/transport"
	"github.com/danmuck/pddbwire/internal/transport/frame"
	"github.com/danmuck/pddbwire/internal/wire"
	"github.com/rs/zerolog/log"
)

const metricsNode = "stream"

var ErrWrongConnection = errors.New("stream: frame addressed to a connection not opened on this stream")

// Server exposes the services registered on a Loopback to stream clients.
type Server struct {
	lb     *transport.Loopback
	cfg    Config
	active atomic.Int64
}

func NewServer(lb *transport.Loopback, cfg Config) *Server {
	return &Server{lb: lb, cfg: cfg.WithDefaults()}
}

// Serve accepts connections until ctx ends or the listener fails. With
// TLS enabled every accepted connection is wrapped before the handshake.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.TLS.Enabled {
		tlsCfg, err := s.cfg.TLS.serverTLS()
		if err != nil {
			_ = ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsCfg)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	log.Info().Msgf("stream.Server listening addr=%q", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			if err := s.ServeConn(conn); err != nil {
				log.Warn().Msgf("stream.Server conn remote=%q err=%v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// Active is the number of connections currently being served.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// ServeConn runs the handshake and then answers frames until the peer
// disconnects. A clean disconnect returns nil.
func (s *Server) ServeConn(conn net.Conn) error {
	defer conn.Close()
	active := s.active.Add(1)
	observability.SetActiveStreams(metricsNode, active)
	defer func() {
		observability.SetActiveStreams(metricsNode, s.active.Add(-1))
	}()

	_ = conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	hello, err := ReadHello(reader)
	if err != nil {
		return err
	}
	id, err := s.lb.Connect(hello.Service)
	if err != nil {
		_ = WriteHelloAck(conn, HelloAck{Status: AckStatusRejected, Message: err.Error()})
		return err
	}
	if err := WriteHelloAck(conn, HelloAck{Status: AckStatusAccepted, Connection: uint32(id)}); err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Time{})
	log.Debug().Msgf("stream.Server connected service=%q conn=%d active=%d", hello.Service, id, active)

	for {
		req, err := frame.ReadFrame(reader, s.cfg.Limits)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		reply := s.dispatch(id, req)
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := frame.WriteFrame(conn, reply, s.cfg.Limits); err != nil {
			return err
		}
	}
}

func (s *Server) dispatch(opened transport.ConnectionID, req frame.Frame) frame.Frame {
	h := req.Header
	reply := frame.Frame{Header: frame.Header{
		MessageID:  h.MessageID,
		Opcode:     h.Opcode,
		Connection: h.Connection,
		Flags:      frame.FlagResponse | (h.Flags & (frame.FlagLend | frame.FlagLendMut)),
		Pages:      h.Pages,
	}}
	fail := func(err error) frame.Frame {
		reply.Header.Flags |= frame.FlagError
		reply.Payload = []byte(err.Error())
		return reply
	}

	if transport.ConnectionID(h.Connection) != opened {
		return fail(fmt.Errorf("%w: %d", ErrWrongConnection, h.Connection))
	}
	mode := transport.ModeLendMut
	if req.Has(frame.FlagLend) {
		mode = transport.ModeLend
	}
	pages := int(h.Pages)
	if pages == 0 {
		pages = 1
	}
	buf, err := wire.NewBuffer(pages * wire.PageSize)
	if err != nil {
		return fail(err)
	}
	if len(req.Payload) > buf.Cap() {
		return fail(fmt.Errorf("%w: payload=%d cap=%d", frame.ErrPayloadTooLarge, len(req.Payload), buf.Cap()))
	}
	copy(buf.Raw(), req.Payload)
	if err := buf.SetLen(len(req.Payload)); err != nil {
		return fail(err)
	}

	out, n, err := s.lb.Transfer(buf, opened, transport.Opcode(h.Opcode), mode)
	if err != nil {
		return fail(err)
	}
	if mode == transport.ModeLendMut {
		reply.Payload = out.Bytes()[:n]
	}
	return reply
}
