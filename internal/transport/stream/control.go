package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	controlTypeHello    = "connect"
	controlTypeHelloAck = "connect.ack"

	AckStatusAccepted = "accepted"
	AckStatusRejected = "rejected"

	maxControlLine = 16 * 1024
)

var (
	ErrInvalidHello           = errors.New("stream: invalid hello")
	ErrInvalidHelloAck        = errors.New("stream: invalid hello ack")
	ErrControlMessageTooLarge = errors.New("stream: control message too large")
)

// Hello asks the server for a connection to one named service.
type Hello struct {
	Service string `json:"service"`
	Client  string `json:"client,omitempty"`
}

func (h Hello) Validate() error {
	if strings.TrimSpace(h.Service) == "" {
		return fmt.Errorf("%w: missing service", ErrInvalidHello)
	}
	return nil
}

// HelloAck answers a Hello with the connection ID to address frames to.
type HelloAck struct {
	Status     string `json:"status"`
	Connection uint32 `json:"connection,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (a HelloAck) Validate() error {
	switch strings.TrimSpace(a.Status) {
	case AckStatusAccepted:
		if a.Connection == 0 {
			return fmt.Errorf("%w: missing connection", ErrInvalidHelloAck)
		}
		return nil
	case AckStatusRejected:
		return nil
	default:
		return fmt.Errorf("%w: invalid status %q", ErrInvalidHelloAck, a.Status)
	}
}

type controlEnvelope struct {
	Type  string    `json:"type"`
	Hello *Hello    `json:"hello,omitempty"`
	Ack   *HelloAck `json:"ack,omitempty"`
}

func WriteHello(w io.Writer, h Hello) error {
	if err := h.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypeHello, Hello: &h})
}

func ReadHello(r *bufio.Reader) (Hello, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return Hello{}, err
	}
	if env.Type != controlTypeHello || env.Hello == nil {
		return Hello{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidHello, env.Type)
	}
	if err := env.Hello.Validate(); err != nil {
		return Hello{}, err
	}
	return *env.Hello, nil
}

func WriteHelloAck(w io.Writer, ack HelloAck) error {
	if err := ack.Validate(); err != nil {
		return err
	}
	return writeControlEnvelope(w, controlEnvelope{Type: controlTypeHelloAck, Ack: &ack})
}

func ReadHelloAck(r *bufio.Reader) (HelloAck, error) {
	env, err := readControlEnvelope(r)
	if err != nil {
		return HelloAck{}, err
	}
	if env.Type != controlTypeHelloAck || env.Ack == nil {
		return HelloAck{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidHelloAck, env.Type)
	}
	if err := env.Ack.Validate(); err != nil {
		return HelloAck{}, err
	}
	return *env.Ack, nil
}

func writeControlEnvelope(w io.Writer, env controlEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

func readControlEnvelope(r *bufio.Reader) (controlEnvelope, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxControlLine {
			return controlEnvelope{}, ErrControlMessageTooLarge
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return controlEnvelope{}, err
		}
	}
	var env controlEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return controlEnvelope{}, err
	}
	return env, nil
}
