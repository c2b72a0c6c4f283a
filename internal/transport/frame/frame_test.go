package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/pddbwire/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Frame{
		Header:  Header{MessageID: 42, Opcode: 26, Connection: 3, Flags: FlagLendMut, Pages: 1},
		Payload: []byte("page bytes"),
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.MessageID != 42 || out.Header.Opcode != 26 || out.Header.Connection != 3 || out.Header.Pages != 1 {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if !out.Has(FlagLendMut) || out.Has(FlagResponse) {
		t.Fatalf("flags mismatch: %#x", out.Header.Flags)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameInvalidMagic(t *testing.T) {
	testlog.Start(t)
	h := EncodeHeader(Header{Magic: 1, Version: Version, HeaderLen: FixedHeaderLen})
	_, err := ReadFrame(bytes.NewReader(h), DefaultLimits())
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	testlog.Start(t)
	h := EncodeHeader(Header{Magic: Magic, Version: Version, HeaderLen: FixedHeaderLen, Pages: 1, PayloadLen: 1 << 30})
	_, err := ReadFrame(bytes.NewReader(h), DefaultLimits())
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	testlog.Start(t)
	h := EncodeHeader(Header{Magic: Magic, Version: Version, HeaderLen: FixedHeaderLen, Pages: 1, PayloadLen: 10})
	_, err := ReadFrame(bytes.NewReader(append(h, 1, 2)), DefaultLimits())
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

func TestWriteFrameRejectsTooManyPages(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{Header: Header{Pages: 17}}, DefaultLimits())
	if !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("expected ErrTooManyPages, got %v", err)
	}
}
