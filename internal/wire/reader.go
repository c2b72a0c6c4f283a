package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Reader decodes values from the valid prefix of a Buffer.
//
// A failed read leaves the cursor at the start of the offending field and
// poisons the reader; the buffer should be discarded.
type Reader struct {
	buf *Buffer
	off int
	end int
	err error
}

// NewReader validates the format marker before exposing any field.
func NewReader(buf *Buffer) (*Reader, error) {
	if buf == nil || buf.valid < markerLen {
		return nil, fmt.Errorf("%w: %w", ErrBadMarker, ErrTruncated)
	}
	if got := binary.LittleEndian.Uint32(buf.data[0:markerLen]); got != Marker {
		return nil, fmt.Errorf("%w: 0x%08x", ErrBadMarker, got)
	}
	return &Reader{buf: buf, off: markerLen, end: buf.valid}, nil
}

// NewTaggedReader validates the marker and the expected tag.
func NewTaggedReader(buf *Buffer, want Tag) (*Reader, error) {
	r, err := NewReader(buf)
	if err != nil {
		return nil, err
	}
	if r.end < markerLen+tagLen {
		return nil, fmt.Errorf("%w: %w", ErrTagMismatch, ErrTruncated)
	}
	var got Tag
	copy(got[:], buf.data[markerLen:markerLen+tagLen])
	if got != want {
		return nil, &TagMismatchError{Want: want, Got: got}
	}
	r.off += tagLen
	return r, nil
}

// Offset is the cursor position measured from the start of the buffer.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining is the count of undecoded valid bytes.
func (r *Reader) Remaining() int {
	return r.end - r.off
}

func (r *Reader) Err() error {
	return r.err
}

// Buffer is the buffer views from this reader borrow from.
func (r *Reader) Buffer() *Buffer {
	return r.buf
}

func (r *Reader) fail(start int, err error) error {
	r.off = start
	r.err = &FieldError{Offset: start, Err: err}
	return r.err
}

func (r *Reader) take(start, n int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if n > r.end-r.off {
		return nil, r.fail(start, fmt.Errorf("%w: need=%d remaining=%d", ErrTruncated, n, r.end-r.off))
	}
	b := r.buf.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) count(start int) (uint32, error) {
	b, err := r.take(start, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) presence(start int) (bool, error) {
	b, err := r.take(start, 1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, r.fail(start, ErrInvalidOption)
	}
}

func (r *Reader) GetU8() (uint8, error)   { return Get[uint8](r) }
func (r *Reader) GetI8() (int8, error)    { return Get[int8](r) }
func (r *Reader) GetU16() (uint16, error) { return Get[uint16](r) }
func (r *Reader) GetI16() (int16, error)  { return Get[int16](r) }
func (r *Reader) GetU32() (uint32, error) { return Get[uint32](r) }
func (r *Reader) GetI32() (int32, error)  { return Get[int32](r) }
func (r *Reader) GetU64() (uint64, error) { return Get[uint64](r) }
func (r *Reader) GetI64() (int64, error)  { return Get[int64](r) }

// GetBool decodes a u8 that must be 0 or 1.
func (r *Reader) GetBool() (bool, error) {
	start := r.off
	b, err := r.take(start, 1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, r.fail(start, ErrInvalidBool)
	}
}

// GetStringRef decodes a string as a view into the buffer without copying.
func (r *Reader) GetStringRef() (View, error) {
	start := r.off
	v, err := r.bytesRef(start)
	if err != nil {
		return View{}, err
	}
	if !utf8.Valid(r.buf.data[v.off : v.off+v.n]) {
		return View{}, r.fail(start, ErrInvalidUTF8)
	}
	return v, nil
}

// GetString decodes an owned copy of a string.
func (r *Reader) GetString() (string, error) {
	v, err := r.GetStringRef()
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// GetBytesRef decodes a u8 sequence as a view into the buffer without copying.
func (r *Reader) GetBytesRef() (View, error) {
	return r.bytesRef(r.off)
}

// GetBytes decodes an owned copy of a u8 sequence.
func (r *Reader) GetBytes() ([]byte, error) {
	v, err := r.GetBytesRef()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.Bytes()...), nil
}

func (r *Reader) bytesRef(start int) (View, error) {
	n, err := r.count(start)
	if err != nil {
		return View{}, err
	}
	if uint64(n) > uint64(r.end-r.off) {
		return View{}, r.fail(start, fmt.Errorf("%w: declared=%d remaining=%d", ErrInvalidLength, n, r.end-r.off))
	}
	v := View{buf: r.buf, gen: r.buf.gen, off: r.off, n: int(n)}
	r.off += int(n)
	return v, nil
}

// GetStrings decodes a sequence of owned strings.
func (r *Reader) GetStrings() ([]string, error) {
	start := r.off
	n, err := r.count(start)
	if err != nil {
		return nil, err
	}
	// every element carries at least its own length prefix
	if uint64(n)*4 > uint64(r.end-r.off) {
		return nil, r.fail(start, ErrInvalidLength)
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.GetString()
		if err != nil {
			r.off = start
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// GetOptionalString decodes a presence byte and, when present, a string.
func (r *Reader) GetOptionalString() (*string, error) {
	return GetOption(r, (*Reader).GetString)
}

// GetValue lets a composite type decode itself.
func (r *Reader) GetValue(v Decoder) error {
	if r.err != nil {
		return r.err
	}
	start := r.off
	if err := v.DecodeFrom(r); err != nil {
		r.off = start
		if r.err == nil {
			r.err = &FieldError{Offset: start, Err: err}
		}
		return r.err
	}
	return nil
}
