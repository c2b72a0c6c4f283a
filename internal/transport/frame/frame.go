package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0x50444246
	Version        uint16 = 1
	FixedHeaderLen uint16 = 32

	FlagLend     uint16 = 0x01
	FlagLendMut  uint16 = 0x02
	FlagResponse uint16 = 0x04
	FlagError    uint16 = 0x08
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrInvalidMagic       = errors.New("frame: invalid magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrHeaderLenMismatch  = errors.New("frame: header_len mismatch")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
	ErrTooManyPages       = errors.New("frame: page count exceeds limit")
	ErrTruncatedPayload   = errors.New("frame: truncated payload")
)

// Header is the fixed wire header carried in front of every transfer.
type Header struct {
	Magic      uint32
	Version    uint16
	HeaderLen  uint16
	MessageID  uint64
	Opcode     uint32
	Connection uint32
	Flags      uint16
	// Pages is the capacity of the lent buffer in 4096-byte pages.
	Pages      uint16
	PayloadLen uint32
}

// Frame is one request or reply on the stream.
type Frame struct {
	Header  Header
	Payload []byte
}

func (f Frame) Has(flag uint16) bool {
	return f.Header.Flags&flag != 0
}

// Limits constrains frame decode memory use.
type Limits struct {
	MaxPages uint16
}

func DefaultLimits() Limits {
	return Limits{MaxPages: 16}
}

func (l Limits) maxPayload() uint32 {
	return uint32(l.MaxPages) * 4096
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Pages > limits.MaxPages {
		return Frame{}, fmt.Errorf("%w: %d", ErrTooManyPages, h.Pages)
	}
	if h.PayloadLen > limits.maxPayload() {
		return Frame{}, fmt.Errorf("%w: %d", ErrPayloadTooLarge, h.PayloadLen)
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrTruncatedPayload, err)
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > uint64(limits.maxPayload()) {
		return ErrPayloadTooLarge
	}
	if f.Header.Pages > limits.MaxPages {
		return ErrTooManyPages
	}

	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = FixedHeaderLen
	h.PayloadLen = uint32(payloadLen)

	// one write per frame keeps concurrent writers on a shared conn from interleaving
	out := make([]byte, 0, int(FixedHeaderLen)+len(f.Payload))
	out = append(out, EncodeHeader(h)...)
	out = append(out, f.Payload...)
	_, err := w.Write(out)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint32(buf[16:20], h.Opcode)
	binary.BigEndian.PutUint32(buf[20:24], h.Connection)
	binary.BigEndian.PutUint16(buf[24:26], h.Flags)
	binary.BigEndian.PutUint16(buf[26:28], h.Pages)
	binary.BigEndian.PutUint32(buf[28:32], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:  binary.BigEndian.Uint16(b[6:8]),
		MessageID:  binary.BigEndian.Uint64(b[8:16]),
		Opcode:     binary.BigEndian.Uint32(b[16:20]),
		Connection: binary.BigEndian.Uint32(b[20:24]),
		Flags:      binary.BigEndian.Uint16(b[24:26]),
		Pages:      binary.BigEndian.Uint16(b[26:28]),
		PayloadLen: binary.BigEndian.Uint32(b[28:32]),
	}
	if h.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Header{}, ErrUnsupportedVersion
	}
	if h.HeaderLen != FixedHeaderLen {
		return Header{}, ErrHeaderLenMismatch
	}
	return h, nil
}
